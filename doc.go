// Package shepherd migrates congregational records (people, households,
// groups, contributions, attendance and attachments) out of a
// church-management system into flat interchange files.
//
// An export runs as a sequence of phases against one source. A REST source
// walks a paginated JSON:API and a legacy database source reads the
// application's tables directly. Every phase shares the state of one run:
//
//   - a Deduplicator so a record reached through two paths is written once
//   - per-kind identity assigners that keep natural ids and derive stable
//     surrogate ids for records that have none
//   - a household representative cache so contributions made by a household
//     are credited to one person
//
// Runs can be incremental. A watermark stops traversal of newest-first
// collections at the first unchanged record, and a date range splits dated
// collections into calendar-month windows.
//
// # Quick Start
//
//	shepherd export --config migration.yaml
//	shepherd export --config migration.yaml --since 2024-05-01 --phases people,households
//	shepherd phases --config migration.yaml
//
// A minimal configuration:
//
//	source:
//	  type: rest
//	  base_url: https://api.example.org/v2/
//	security:
//	  auth_type: bearer
//	  credentials:
//	    token: ${SHEPHERD_API_TOKEN}
//	output:
//	  directory: export
//	  format: csv
//
// # Key Packages
//
//	pkg/extract      - Paginator, relationship resolver, deduplicator, identities, representatives
//	pkg/clients      - HTTP client, rate-limit governor, OAuth2
//	pkg/jsonapi      - JSON:API document decoding
//	pkg/connector    - Source and destination connectors
//	pkg/attachments  - Bounded attachment downloads
//	pkg/config       - YAML configuration with ${VAR} substitution
//	pkg/errors       - Typed errors
//	pkg/logger       - Structured logging
//	pkg/metrics      - Prometheus metrics
//	internal/pipeline - Export orchestration and per-phase results
package shepherd
