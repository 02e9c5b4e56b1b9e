package extract

import (
	"strconv"
	"strings"
)

// DedupKey names one logical record.
type DedupKey string

// KeyOf builds the key of a record identified by its remote type and id.
func KeyOf(kind string, id int64) DedupKey {
	return DedupKey(kind + ":" + strconv.FormatInt(id, 10))
}

// CompositeKey builds a key from several identifying fields.
func CompositeKey(parts ...string) DedupKey {
	return DedupKey(strings.Join(parts, fieldSeparator))
}

// Deduplicator guarantees each logical record reaches the writer once per
// run, whether the repeat came from an overlapping page or an overlapping
// time window. The seen set only grows.
type Deduplicator struct {
	seen    map[DedupKey]struct{}
	dropped int
}

// NewDeduplicator returns an empty deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[DedupKey]struct{})}
}

// ShouldProcess returns true the first time key is offered and marks it seen.
func (d *Deduplicator) ShouldProcess(key DedupKey) bool {
	if _, ok := d.seen[key]; ok {
		d.dropped++
		return false
	}
	d.seen[key] = struct{}{}
	return true
}

// Seen returns the number of distinct keys offered.
func (d *Deduplicator) Seen() int { return len(d.seen) }

// Dropped returns the number of repeats suppressed.
func (d *Deduplicator) Dropped() int { return d.dropped }
