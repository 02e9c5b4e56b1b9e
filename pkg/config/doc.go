// Package config provides configuration management for Shepherd export runs.
//
// A run is described by a single Config organized into sections:
//
//   - Source: which system is migrated (rest, postgres, mysql) and how to reach it
//   - Extraction: watermark, date range, window overlap and the page-loop ceiling
//   - Reliability: throttle margin, client-side pacing and setup retries
//   - Security: authentication mode and credentials
//   - Output: interchange directory, format and compression
//   - Attachments: download workers and size limit
//   - Observability: log level, metrics endpoint and tracing
//
// # Loading
//
//	cfg, err := config.LoadFile("migration.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// LoadFile starts from Default(), overlays the YAML file and validates the
// result.
//
// # Environment Variable Substitution
//
// Any ${VAR_NAME} in the YAML file is replaced with the value of the
// environment variable before parsing, so secrets stay out of the file:
//
//	security:
//	  auth_type: basic
//	  credentials:
//	    username: ${SHEPHERD_APP_ID}
//	    password: ${SHEPHERD_SECRET}
//
// Unset variables are replaced with the empty string.
package config
