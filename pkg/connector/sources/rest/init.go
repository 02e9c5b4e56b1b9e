package rest

import (
	"github.com/ajitpratap0/shepherd/pkg/connector/core"
	"github.com/ajitpratap0/shepherd/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSource("rest", NewSourceFromConfig)

	_ = registry.RegisterConnectorInfo(&core.ConnectorMetadata{
		Name:        "rest",
		Type:        core.ConnectorTypeSource,
		Description: "Church-management REST API paging JSON:API documents",
		Capabilities: []string{
			"incremental",
			"sideloading",
			"throttling",
			"attachments",
		},
	})
}
