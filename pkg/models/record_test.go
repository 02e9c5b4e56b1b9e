package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRowsMatchHeaders(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	records := []Record{
		Person{ID: 1, FirstName: "Ada", Birthdate: &now, HouseholdID: ID(3), UpdatedAt: &now},
		Household{ID: 3, Name: "Lovelace", MemberIDs: []int64{1, 2}, RepresentativeID: ID(1)},
		Group{ID: 4, Name: "Choir"},
		GroupMember{ID: 5, GroupID: 4, PersonID: 1, Role: "leader"},
		Fund{ID: 6, Name: "General"},
		Contribution{ID: 7, FundID: ID(6), AmountCents: 2500, ReceivedAt: now},
		Attendance{ID: 8, PersonID: 1, StartsAt: now, Synthetic: true},
		Attachment{OwnerKind: KindPerson, OwnerID: 1, Path: "attachments/person-1.jpg", Bytes: 10},
	}

	seen := map[string]bool{}
	for _, r := range records {
		assert.Len(t, r.Row(), len(r.Header()), r.Kind())
		seen[r.Kind()] = true
	}
	assert.Len(t, seen, len(Kinds))
}

func TestRowFormatting(t *testing.T) {
	born := time.Date(1990, 12, 10, 0, 0, 0, 0, time.UTC)
	p := Person{ID: 1, FirstName: "Ada", LastName: "Lovelace", Birthdate: &born}
	assert.Equal(t, []string{"1", "Ada", "Lovelace", "1990-12-10", "", "", "", "", ""}, p.Row())

	h := Household{ID: 3, Name: "Lovelace", MemberIDs: []int64{1, 2, 9}}
	assert.Equal(t, []string{"3", "Lovelace", "1;2;9", ""}, h.Row())

	c := Contribution{ID: 7, PersonID: ID(1), AmountCents: -150, ReceivedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))}
	assert.Equal(t, "2024-01-02T02:04:05Z", c.Row()[7])
	assert.Equal(t, "-150", c.Row()[4])
}

func TestAttendanceIdentity(t *testing.T) {
	starts := time.Date(2024, 3, 3, 10, 30, 0, 0, time.FixedZone("x", -5*3600))

	real := &Attendance{ID: 40, PersonID: 1, GroupID: ID(5), StartsAt: starts}
	id, ok := real.NaturalID()
	assert.True(t, ok)
	assert.Equal(t, int64(40), id)

	synthetic := &Attendance{PersonID: 1, StartsAt: starts, Synthetic: true}
	_, ok = synthetic.NaturalID()
	assert.False(t, ok)
	assert.Equal(t, []string{"1", "", "2024-03-03T15:30:00Z"}, synthetic.IdentityFields())

	// the same visit in another zone has the same identity
	utc := &Attendance{PersonID: 1, StartsAt: starts.UTC(), Synthetic: true}
	assert.Equal(t, synthetic.IdentityFields(), utc.IdentityFields())
}
