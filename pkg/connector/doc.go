// Package connector groups the source and destination connectors of an
// export.
//
// # Architecture Overview
//
//   - core: the Source and RecordWriter interfaces and the phase names.
//     A source extracts one phase at a time into a RecordWriter, sharing an
//     extract.Run across phases.
//
//   - base: BaseConnector, embedded by every source. It checks phases
//     against the configuration, retries connection setup, traces phases
//     and reports progress.
//
//   - sources: rest (paginated JSON:API behind a rate-limit governor) and
//     legacydb (postgres, mysql and sqlite dialects of the legacy schema).
//
//   - destinations: file, one interchange file per record kind in csv or
//     jsonl, optionally compressed.
//
//   - registry: name-to-factory lookup. Connectors register themselves in
//     init; import the sources and destinations packages to link them all.
//
// # Writing a Source
//
// A source embeds BaseConnector and implements RunPhase:
//
//	func (s *Source) RunPhase(ctx context.Context, run *extract.Run, phase string, w core.RecordWriter) error {
//	    if err := s.CheckPhase(phase, Phases); err != nil {
//	        return err
//	    }
//	    return s.TracePhase(ctx, run, phase, func(ctx context.Context, progress *base.ProgressReporter) error {
//	        // read records, consult run.Dedup, write to w
//	    })
//	}
//
// Register it from init:
//
//	func init() {
//	    _ = registry.RegisterSource("mysource", NewSourceFromConfig)
//	}
package connector
