package config_test

import (
	"fmt"
	"log"

	"github.com/ajitpratap0/shepherd/pkg/config"
)

// ExampleDefault demonstrates the defaults applied before a file is read.
func ExampleDefault() {
	cfg := config.Default()

	fmt.Printf("Page Size: %d\n", cfg.Source.PageSize)
	fmt.Printf("Throttle Margin: %s\n", cfg.Reliability.ThrottleMargin)
	fmt.Printf("Iteration Ceiling: %d\n", cfg.Extraction.IterationCeiling)

	// Output:
	// Page Size: 100
	// Throttle Margin: 1s
	// Iteration Ceiling: 100000000
}

// ExampleConfig_Validate shows how to validate a configuration
// before using it.
func ExampleConfig_Validate() {
	cfg := config.Default()
	cfg.Source.BaseURL = "https://api.example.org/people/v2"
	cfg.Extraction.Watermark = "2024-01-01T00:00:00Z"

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Println("Configuration is valid!")

	// Output:
	// Configuration is valid!
}
