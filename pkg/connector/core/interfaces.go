package core

import (
	"context"
	"time"

	"github.com/ajitpratap0/shepherd/pkg/extract"
	"github.com/ajitpratap0/shepherd/pkg/models"
)

// ConnectorType represents the type of connector
type ConnectorType string

const (
	ConnectorTypeSource      ConnectorType = "source"
	ConnectorTypeDestination ConnectorType = "destination"
)

// Phase names. A phase extracts one family of records.
const (
	PhasePeople        = "people"
	PhaseHouseholds    = "households"
	PhaseGroups        = "groups"
	PhaseContributions = "contributions"
	PhaseAttendance    = "attendance"
	PhaseAttachments   = "attachments"
)

// AllPhases lists every phase in execution order. Households precede
// contributions so donor fallback can use cached representatives.
var AllPhases = []string{
	PhasePeople,
	PhaseHouseholds,
	PhaseGroups,
	PhaseContributions,
	PhaseAttendance,
	PhaseAttachments,
}

// RecordWriter receives normalized records. Implementations must accept
// records of any kind in any order.
type RecordWriter interface {
	WriteRecord(rec models.Record) error
	Close() error
}

// RecordWriterFunc adapts a function to RecordWriter. Close is a no-op.
type RecordWriterFunc func(rec models.Record) error

// WriteRecord calls f(rec).
func (f RecordWriterFunc) WriteRecord(rec models.Record) error { return f(rec) }

// Close does nothing.
func (f RecordWriterFunc) Close() error { return nil }

// Source is the interface that all source connectors must implement.
type Source interface {
	// Name returns the registered type name of the source
	Name() string

	// Initialize opens connections and verifies credentials
	Initialize(ctx context.Context) error

	// Phases returns the phases the source can run, in execution order
	Phases() []string

	// RunPhase extracts one phase into w using the shared state of run
	RunPhase(ctx context.Context, run *extract.Run, phase string, w RecordWriter) error

	// Health checks that the source is reachable
	Health(ctx context.Context) error

	// Close releases connections
	Close(ctx context.Context) error
}

// ThrottleReporter is implemented by sources that can be throttled by the
// remote system.
type ThrottleReporter interface {
	ThrottledFor() time.Duration
}

// ConnectorMetadata describes a registered connector.
type ConnectorMetadata struct {
	Name         string        `json:"name"`
	Type         ConnectorType `json:"type"`
	Description  string        `json:"description"`
	Capabilities []string      `json:"capabilities"`
}
