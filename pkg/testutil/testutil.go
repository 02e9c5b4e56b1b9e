// Package testutil provides testing utilities shared by the connector and
// pipeline tests.
package testutil

import (
	"sync"

	"github.com/ajitpratap0/shepherd/pkg/models"
)

// Collector is an in-memory RecordWriter. It is safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	records []models.Record
	closed  bool
}

// WriteRecord appends rec.
func (c *Collector) WriteRecord(rec models.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	return nil
}

// Close marks the collector closed. Records are kept.
func (c *Collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *Collector) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Records returns every record written so far, in write order.
func (c *Collector) Records() []models.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Record(nil), c.records...)
}

// OfKind returns the records of one kind, in write order.
func (c *Collector) OfKind(kind string) []models.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.Record
	for _, r := range c.records {
		if r.Kind() == kind {
			out = append(out, r)
		}
	}
	return out
}
