package legacydb

import (
	"github.com/ajitpratap0/shepherd/pkg/connector/core"
	"github.com/ajitpratap0/shepherd/pkg/connector/registry"
)

func init() {
	descriptions := map[string]string{
		DialectPostgres: "Legacy church-management database on PostgreSQL",
		DialectMySQL:    "Legacy church-management database on MySQL",
		DialectSQLite:   "Legacy church-management database file (SQLite)",
	}
	for dialect, description := range descriptions {
		_ = registry.RegisterSource(dialect, factory(dialect))
		_ = registry.RegisterConnectorInfo(&core.ConnectorMetadata{
			Name:         dialect,
			Type:         core.ConnectorTypeSource,
			Description:  description,
			Capabilities: []string{"incremental", "synthetic_ids"},
		})
	}
}
