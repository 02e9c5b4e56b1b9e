package extract

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/ajitpratap0/shepherd/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type checkIn struct {
	id       int64
	hasID    bool
	personID string
	eventID  string
	start    string
}

func (c checkIn) NaturalID() (int64, bool)   { return c.id, c.hasID }
func (c checkIn) IdentityFields() []string { return []string{c.personID, c.eventID, c.start} }

func TestAssignIsDeterministicAcrossRuns(t *testing.T) {
	logger := zaptest.NewLogger(t)
	fields := []string{"42", "7", "2024-03-01T09:00:00Z"}

	first, err := NewIdentityAssigner("attendance", logger).Assign(fields...)
	require.NoError(t, err)
	second, err := NewIdentityAssigner("attendance", logger).Assign(fields...)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.GreaterOrEqual(t, int32(first), int32(0))
}

func TestAssignMemoizesIdenticalFields(t *testing.T) {
	a := NewIdentityAssigner("attendance", zaptest.NewLogger(t))

	id1, err := a.Assign("1", "2", "3")
	require.NoError(t, err)
	id2, err := a.Assign("1", "2", "3")
	require.NoError(t, err)
	other, err := a.Assign("1", "23")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, other, "field boundaries are part of the identity")
	assert.Empty(t, a.Collisions())
}

// constantHash derives the same candidate for every unsalted input and a
// distinct value per salted attempt.
func constantHash(candidate uint32) HashFunc {
	return func(data []byte) []byte {
		if containsSalt(data) {
			return SHA256(data)
		}
		out := make([]byte, 4)
		binary.BigEndian.PutUint32(out, candidate)
		return out
	}
}

func containsSalt(data []byte) bool {
	for i := 0; i+1 < len(data); i++ {
		if data[i] == fieldSeparator[0] && data[i+1] == '#' {
			return true
		}
	}
	return false
}

func TestAssignCollisionFallback(t *testing.T) {
	a := NewIdentityAssigner("attendance", zaptest.NewLogger(t), WithHash(constantHash(1234)))
	require.NoError(t, a.Reserve(1234))

	x, err := a.Assign("person-1", "event-1")
	require.NoError(t, err)
	y, err := a.Assign("person-2", "event-2")
	require.NoError(t, err)

	assert.NotEqual(t, SurrogateID(1234), x)
	assert.NotEqual(t, SurrogateID(1234), y)
	assert.NotEqual(t, x, y)
	assert.True(t, a.IsReserved(x))
	assert.True(t, a.IsReserved(y))

	collisions := a.Collisions()
	require.Len(t, collisions, 2)
	assert.Equal(t, SurrogateID(1234), collisions[0].Candidate)
	assert.Equal(t, x, collisions[0].Assigned)
	assert.Equal(t, []string{"person-1", "event-1"}, collisions[0].Fields)
	assert.Equal(t, 1, collisions[0].Attempts)
}

func TestAssignCollisionIsDeterministic(t *testing.T) {
	assign := func() SurrogateID {
		a := NewIdentityAssigner("attendance", zaptest.NewLogger(t), WithHash(constantHash(99)))
		require.NoError(t, a.Reserve(99))
		id, err := a.Assign("a", "b")
		require.NoError(t, err)
		return id
	}
	assert.Equal(t, assign(), assign())
}

func TestReserveAfterAssignFails(t *testing.T) {
	a := NewIdentityAssigner("attendance", zaptest.NewLogger(t))
	_, err := a.Assign("x")
	require.NoError(t, err)

	err = a.Reserve(10)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestReserveBounds(t *testing.T) {
	a := NewIdentityAssigner("attendance", zaptest.NewLogger(t))

	err := a.Reserve(-5)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	require.NoError(t, a.Reserve(math.MaxInt32+10))
	require.NoError(t, a.Reserve(0))
	assert.True(t, a.IsReserved(0))
}

func TestDeriveMinInt32MapsToZero(t *testing.T) {
	minHash := func([]byte) []byte {
		out := make([]byte, 4)
		binary.BigEndian.PutUint32(out, 0x80000000)
		return out
	}
	a := NewIdentityAssigner("attendance", zaptest.NewLogger(t), WithHash(minHash))
	id, err := a.Assign("anything")
	require.NoError(t, err)
	assert.Equal(t, SurrogateID(0), id)
}

func TestDeriveNegativeIsFolded(t *testing.T) {
	negHash := func([]byte) []byte {
		out := make([]byte, 4)
		binary.BigEndian.PutUint32(out, 0xFFFFFFFF) // -1
		return out
	}
	a := NewIdentityAssigner("attendance", zaptest.NewLogger(t), WithHash(negHash))
	id, err := a.Assign("anything")
	require.NoError(t, err)
	assert.Equal(t, SurrogateID(1), id)
}

func TestShortDigestIsAnError(t *testing.T) {
	a := NewIdentityAssigner("attendance", zaptest.NewLogger(t), WithHash(func([]byte) []byte { return []byte{1} }))
	_, err := a.Assign("x")
	assert.True(t, errors.IsType(err, errors.ErrorTypeInternal))
}

func TestAssignAllReservesNaturalIDsFirst(t *testing.T) {
	// the synthetic record comes first but its candidate must still avoid
	// the natural id that follows it
	fields := []string{"9", "3", "2024-01-07"}
	probe, err := NewIdentityAssigner("attendance", zaptest.NewLogger(t)).Assign(fields...)
	require.NoError(t, err)

	records := []checkIn{
		{personID: "9", eventID: "3", start: "2024-01-07"},
		{id: int64(probe), hasID: true},
		{id: 5, hasID: true},
	}
	a := NewIdentityAssigner("attendance", zaptest.NewLogger(t))
	ids, err := AssignAll(a, records)
	require.NoError(t, err)

	require.Len(t, ids, 3)
	assert.Equal(t, int64(probe), ids[1])
	assert.Equal(t, int64(5), ids[2])
	assert.NotEqual(t, int64(probe), ids[0])
	assert.Len(t, a.Collisions(), 1)
}
