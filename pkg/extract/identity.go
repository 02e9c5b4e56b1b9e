package extract

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"github.com/ajitpratap0/shepherd/pkg/errors"
	"github.com/ajitpratap0/shepherd/pkg/metrics"
	"go.uber.org/zap"
)

// fieldSeparator joins identifying fields before hashing. It cannot occur in
// ordinary field values.
const fieldSeparator = "\x1f"

// maxCollisionAttempts bounds the salted re-derivation loop.
const maxCollisionAttempts = 1 << 16

// SurrogateID is a synthetic, non-negative 32-bit record id.
type SurrogateID int32

// HashFunc digests identifying fields. The digest must be at least 4 bytes.
type HashFunc func(data []byte) []byte

// SHA256 is the default HashFunc.
func SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// Collision records a synthetic id candidate that was already taken and the
// id assigned instead.
type Collision struct {
	Fields    []string
	Candidate SurrogateID
	Assigned  SurrogateID
	Attempts  int
}

// IdentityAssigner mints deterministic surrogate ids for records without a
// natural key. Explicit ids must be reserved before the first Assign so a
// synthetic id can never shadow a real one. When a candidate is taken, the
// same fields are re-hashed with an attempt counter until a free id is found,
// so the fallback is itself deterministic for a fixed input order.
type IdentityAssigner struct {
	kind         string
	hash         HashFunc
	logger       *zap.Logger
	reserved     map[SurrogateID]struct{}
	assigned     map[string]SurrogateID
	collisions   []Collision
	synthesizing bool
}

// IdentityOption configures an IdentityAssigner.
type IdentityOption func(*IdentityAssigner)

// WithHash replaces the digest used to derive candidates.
func WithHash(h HashFunc) IdentityOption {
	return func(a *IdentityAssigner) { a.hash = h }
}

// NewIdentityAssigner returns an assigner for one record kind.
func NewIdentityAssigner(kind string, logger *zap.Logger, opts ...IdentityOption) *IdentityAssigner {
	a := &IdentityAssigner{
		kind:     kind,
		hash:     SHA256,
		logger:   logger.With(zap.String("component", "identity_assigner"), zap.String("kind", kind)),
		reserved: make(map[SurrogateID]struct{}),
		assigned: make(map[string]SurrogateID),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Reserve marks an explicit id as taken. Ids above the 32-bit range cannot
// collide with a surrogate and are accepted without effect.
func (a *IdentityAssigner) Reserve(id int64) error {
	if a.synthesizing {
		return errors.New(errors.ErrorTypeValidation, "cannot reserve ids after synthesis has started").
			WithDetail("kind", a.kind).
			WithDetail("id", id)
	}
	if id < 0 {
		return errors.New(errors.ErrorTypeValidation, "explicit ids must be non-negative").
			WithDetail("kind", a.kind).
			WithDetail("id", id)
	}
	if id > math.MaxInt32 {
		return nil
	}
	a.reserved[SurrogateID(id)] = struct{}{}
	return nil
}

// Assign returns the surrogate id for the given identifying fields. Identical
// fields always receive the same id within a run.
func (a *IdentityAssigner) Assign(fields ...string) (SurrogateID, error) {
	a.synthesizing = true

	joined := strings.Join(fields, fieldSeparator)
	if id, ok := a.assigned[joined]; ok {
		return id, nil
	}

	candidate, err := a.derive(joined, 0)
	if err != nil {
		return 0, err
	}
	id := candidate
	attempts := 0
	for a.isReserved(id) {
		attempts++
		if attempts > maxCollisionAttempts {
			return 0, errors.New(errors.ErrorTypeInternal, "no free surrogate id found").
				WithDetail("kind", a.kind).
				WithDetail("fields", joined)
		}
		if id, err = a.derive(joined, attempts); err != nil {
			return 0, err
		}
	}

	if attempts > 0 {
		c := Collision{
			Fields:    append([]string(nil), fields...),
			Candidate: candidate,
			Assigned:  id,
			Attempts:  attempts,
		}
		a.collisions = append(a.collisions, c)
		metrics.CollisionFallbacks.Inc()
		a.logger.Info("surrogate id collision, re-derived",
			zap.Strings("fields", fields),
			zap.Int32("candidate", int32(candidate)),
			zap.Int32("assigned", int32(id)),
			zap.Int("attempts", attempts))
	}

	a.reserved[id] = struct{}{}
	a.assigned[joined] = id
	return id, nil
}

// IsReserved reports whether id is taken by an explicit or synthetic record.
func (a *IdentityAssigner) IsReserved(id SurrogateID) bool {
	return a.isReserved(id)
}

// Collisions returns the audit trail of re-derived ids.
func (a *IdentityAssigner) Collisions() []Collision {
	out := make([]Collision, len(a.collisions))
	copy(out, a.collisions)
	return out
}

func (a *IdentityAssigner) isReserved(id SurrogateID) bool {
	_, ok := a.reserved[id]
	return ok
}

func (a *IdentityAssigner) derive(joined string, attempt int) (SurrogateID, error) {
	data := joined
	if attempt > 0 {
		data = joined + fieldSeparator + "#" + strconv.Itoa(attempt)
	}
	digest := a.hash([]byte(data))
	if len(digest) < 4 {
		return 0, errors.New(errors.ErrorTypeInternal, "digest shorter than 4 bytes")
	}
	v := int32(binary.BigEndian.Uint32(digest[:4]))
	switch {
	case v == math.MinInt32:
		// no positive counterpart
		return 0, nil
	case v < 0:
		return SurrogateID(-v), nil
	default:
		return SurrogateID(v), nil
	}
}

// Identifiable is a record that either carries a natural id or can be
// identified by a stable list of fields.
type Identifiable interface {
	NaturalID() (int64, bool)
	IdentityFields() []string
}

// AssignAll runs both phases over records: every natural id is reserved
// first, then records without one are assigned surrogates in input order.
// The result holds the final id of each record, index for index.
func AssignAll[T Identifiable](a *IdentityAssigner, records []T) ([]int64, error) {
	ids := make([]int64, len(records))
	for i, rec := range records {
		if id, ok := rec.NaturalID(); ok {
			if err := a.Reserve(id); err != nil {
				return nil, err
			}
			ids[i] = id
		}
	}
	for i, rec := range records {
		if _, ok := rec.NaturalID(); ok {
			continue
		}
		id, err := a.Assign(rec.IdentityFields()...)
		if err != nil {
			return nil, err
		}
		ids[i] = int64(id)
	}
	return ids, nil
}
