// Package models defines the normalized records Shepherd emits. Every source
// maps its remote representation onto these types and every destination
// serializes them through the Record interface.
package models

import (
	"strconv"
	"time"
)

// Record kinds. Destinations write one file per kind.
const (
	KindPerson       = "person"
	KindHousehold    = "household"
	KindGroup        = "group"
	KindGroupMember  = "group_member"
	KindFund         = "fund"
	KindContribution = "contribution"
	KindAttendance   = "attendance"
	KindAttachment   = "attachment"
)

// Kinds lists every record kind in the order phases produce them.
var Kinds = []string{
	KindPerson,
	KindHousehold,
	KindGroup,
	KindGroupMember,
	KindFund,
	KindContribution,
	KindAttendance,
	KindAttachment,
}

// Record is one normalized row.
type Record interface {
	// Kind names the record family, one of the Kind constants
	Kind() string
	// Header returns the column names for tabular formats
	Header() []string
	// Row returns the values in Header order
	Row() []string
}

// Person is an individual.
type Person struct {
	ID          int64      `json:"id"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Birthdate   *time.Time `json:"birthdate,omitempty"`
	Gender      string     `json:"gender,omitempty"`
	Status      string     `json:"status,omitempty"`
	Email       string     `json:"email,omitempty"`
	HouseholdID *int64     `json:"household_id,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

func (Person) Kind() string { return KindPerson }

func (Person) Header() []string {
	return []string{"id", "first_name", "last_name", "birthdate", "gender", "status", "email", "household_id", "updated_at"}
}

func (p Person) Row() []string {
	return []string{
		formatID(p.ID), p.FirstName, p.LastName, formatDate(p.Birthdate), p.Gender,
		p.Status, p.Email, formatOptID(p.HouseholdID), formatTime(p.UpdatedAt),
	}
}

// Household is a family unit. RepresentativeID is the member chosen to stand
// for the household on records that reference it.
type Household struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	MemberIDs        []int64 `json:"member_ids,omitempty"`
	RepresentativeID *int64  `json:"representative_id,omitempty"`
}

func (Household) Kind() string { return KindHousehold }

func (Household) Header() []string {
	return []string{"id", "name", "member_ids", "representative_id"}
}

func (h Household) Row() []string {
	return []string{formatID(h.ID), h.Name, formatIDs(h.MemberIDs), formatOptID(h.RepresentativeID)}
}

// Group is a small group, class or team.
type Group struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	GroupType   string `json:"group_type,omitempty"`
}

func (Group) Kind() string { return KindGroup }

func (Group) Header() []string { return []string{"id", "name", "description", "group_type"} }

func (g Group) Row() []string {
	return []string{formatID(g.ID), g.Name, g.Description, g.GroupType}
}

// GroupMember links a person to a group.
type GroupMember struct {
	ID       int64      `json:"id"`
	GroupID  int64      `json:"group_id"`
	PersonID int64      `json:"person_id"`
	Role     string     `json:"role,omitempty"`
	JoinedAt *time.Time `json:"joined_at,omitempty"`
}

func (GroupMember) Kind() string { return KindGroupMember }

func (GroupMember) Header() []string {
	return []string{"id", "group_id", "person_id", "role", "joined_at"}
}

func (m GroupMember) Row() []string {
	return []string{formatID(m.ID), formatID(m.GroupID), formatID(m.PersonID), m.Role, formatDate(m.JoinedAt)}
}

// Fund is a designation contributions are given to.
type Fund struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (Fund) Kind() string { return KindFund }

func (Fund) Header() []string { return []string{"id", "name"} }

func (f Fund) Row() []string { return []string{formatID(f.ID), f.Name} }

// Contribution is a single gift. Amounts are in minor currency units.
type Contribution struct {
	ID          int64     `json:"id"`
	PersonID    *int64    `json:"person_id,omitempty"`
	HouseholdID *int64    `json:"household_id,omitempty"`
	FundID      *int64    `json:"fund_id,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency,omitempty"`
	Method      string    `json:"method,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
}

func (Contribution) Kind() string { return KindContribution }

func (Contribution) Header() []string {
	return []string{"id", "person_id", "household_id", "fund_id", "amount_cents", "currency", "method", "received_at"}
}

func (c Contribution) Row() []string {
	return []string{
		formatID(c.ID), formatOptID(c.PersonID), formatOptID(c.HouseholdID), formatOptID(c.FundID),
		strconv.FormatInt(c.AmountCents, 10), c.Currency, c.Method, formatTime(&c.ReceivedAt),
	}
}

// Attendance is one check-in of a person at a group meeting. Synthetic is
// set when the source had no id for it.
type Attendance struct {
	ID        int64     `json:"id"`
	PersonID  int64     `json:"person_id"`
	GroupID   *int64    `json:"group_id,omitempty"`
	StartsAt  time.Time `json:"starts_at"`
	Synthetic bool      `json:"synthetic,omitempty"`
}

func (Attendance) Kind() string { return KindAttendance }

func (Attendance) Header() []string {
	return []string{"id", "person_id", "group_id", "starts_at", "synthetic"}
}

func (a Attendance) Row() []string {
	return []string{
		formatID(a.ID), formatID(a.PersonID), formatOptID(a.GroupID),
		formatTime(&a.StartsAt), strconv.FormatBool(a.Synthetic),
	}
}

// NaturalID returns the source id unless the record awaits a surrogate.
func (a *Attendance) NaturalID() (int64, bool) { return a.ID, !a.Synthetic }

// IdentityFields identifies a visit by person, group and start time.
func (a *Attendance) IdentityFields() []string {
	return []string{formatID(a.PersonID), formatOptID(a.GroupID), a.StartsAt.UTC().Format(time.RFC3339Nano)}
}

// Attachment is a file downloaded for a record, such as an avatar.
type Attachment struct {
	OwnerKind string `json:"owner_kind"`
	OwnerID   int64  `json:"owner_id"`
	SourceURL string `json:"source_url"`
	Path      string `json:"path"`
	Bytes     int64  `json:"bytes"`
}

func (Attachment) Kind() string { return KindAttachment }

func (Attachment) Header() []string {
	return []string{"owner_kind", "owner_id", "source_url", "path", "bytes"}
}

func (a Attachment) Row() []string {
	return []string{a.OwnerKind, formatID(a.OwnerID), a.SourceURL, a.Path, strconv.FormatInt(a.Bytes, 10)}
}

// ID returns a pointer to v, for optional references.
func ID(v int64) *int64 { return &v }

func formatID(v int64) string { return strconv.FormatInt(v, 10) }

func formatOptID(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func formatIDs(ids []int64) string {
	buf := make([]byte, 0, len(ids)*6)
	for i, id := range ids {
		if i > 0 {
			buf = append(buf, ';')
		}
		buf = strconv.AppendInt(buf, id, 10)
	}
	return string(buf)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
