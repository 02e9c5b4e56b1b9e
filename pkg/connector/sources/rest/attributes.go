package rest

import (
	"time"

	"github.com/ajitpratap0/shepherd/pkg/jsonapi"
)

// Remote resource types.
const (
	typePerson     = "Person"
	typeEmail      = "Email"
	typeHousehold  = "Household"
	typeGroup      = "Group"
	typeMembership = "Membership"
	typeFund       = "Fund"
	typeDonation   = "Donation"
	typeAttendance = "Attendance"
)

// Attribute shapes. Pointer fields distinguish absent from empty.

type personAttributes struct {
	FirstName     *string `json:"first_name"`
	LastName      *string `json:"last_name"`
	Birthdate     *string `json:"birthdate"`
	Gender        *string `json:"gender"`
	Status        *string `json:"status"`
	Avatar        *string `json:"avatar"`
	HouseholdRole *string `json:"household_role"`
}

type emailAttributes struct {
	Address *string `json:"address"`
	Primary *bool   `json:"primary"`
}

type householdAttributes struct {
	Name *string `json:"name"`
}

type groupAttributes struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	GroupType   *string `json:"group_type"`
}

type membershipAttributes struct {
	Role     *string `json:"role"`
	JoinedAt *string `json:"joined_at"`
}

type fundAttributes struct {
	Name *string `json:"name"`
}

type donationAttributes struct {
	AmountCents    *int64  `json:"amount_cents"`
	AmountCurrency *string `json:"amount_currency"`
	PaymentMethod  *string `json:"payment_method"`
	ReceivedAt     *string `json:"received_at"`
}

type attendanceAttributes struct {
	StartsAt *string `json:"starts_at"`
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// timestamp parses an optional timestamp attribute. Unparseable values
// count as absent.
func timestamp(p *string) *time.Time {
	if p == nil {
		return nil
	}
	t, ok := jsonapi.ParseTimestamp(*p)
	if !ok {
		return nil
	}
	return &t
}

// relatedID returns the id of a to-one relationship when it is assigned.
func relatedID(res jsonapi.Resource, relationship string) *int64 {
	key, ok := res.RelatedOne(relationship)
	if !ok || !key.Assigned() {
		return nil
	}
	id := key.ID
	return &id
}
