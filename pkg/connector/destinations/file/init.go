package file

import (
	"github.com/ajitpratap0/shepherd/pkg/connector/core"
	"github.com/ajitpratap0/shepherd/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterDestination("file", NewFromConfig)

	_ = registry.RegisterConnectorInfo(&core.ConnectorMetadata{
		Name:        "file",
		Type:        core.ConnectorTypeDestination,
		Description: "One interchange file per record kind (csv or jsonl, optionally gzip/zstd/lz4)",
		Capabilities: []string{
			"csv",
			"jsonl",
			"compression",
		},
	})
}
