package extract

import "strings"

// Member is one member of a group (for example a person in a household).
type Member struct {
	ID      int64
	GroupID int64
	Role    string
}

var roleRanks = map[string]int{
	"head":    10,
	"primary": 10,
	"spouse":  8,
	"child":   6,
	"other":   4,
	"adult":   4,
	"visitor": 2,
}

// RoleRank maps a role name to its priority. Unrecognized roles rank 0.
func RoleRank(role string) int {
	return roleRanks[strings.ToLower(strings.TrimSpace(role))]
}

// SelectRepresentative returns the highest-ranked member. Ties go to the
// member that appears first.
func SelectRepresentative(members []Member) (Member, bool) {
	if len(members) == 0 {
		return Member{}, false
	}
	best := members[0]
	bestRank := RoleRank(best.Role)
	for _, m := range members[1:] {
		if r := RoleRank(m.Role); r > bestRank {
			best, bestRank = m, r
		}
	}
	return best, true
}

// HasRoles reports whether any member carries a recognized role. Without
// one, SelectRepresentative falls back to list order.
func HasRoles(members []Member) bool {
	for _, m := range members {
		if RoleRank(m.Role) > 0 {
			return true
		}
	}
	return false
}

// RepresentativeSelector caches one representative per group for a run so
// every record that references a group resolves to the same member.
type RepresentativeSelector struct {
	cache map[int64]Member
}

// NewRepresentativeSelector returns an empty selector.
func NewRepresentativeSelector() *RepresentativeSelector {
	return &RepresentativeSelector{cache: make(map[int64]Member)}
}

// ForGroup selects and caches the representative of groupID. Once a group
// has a representative, later calls return it unchanged.
func (s *RepresentativeSelector) ForGroup(groupID int64, members []Member) (Member, bool) {
	if m, ok := s.cache[groupID]; ok {
		return m, true
	}
	m, ok := SelectRepresentative(members)
	if !ok {
		return Member{}, false
	}
	m.GroupID = groupID
	s.cache[groupID] = m
	return m, true
}

// Lookup returns the cached representative of groupID.
func (s *RepresentativeSelector) Lookup(groupID int64) (Member, bool) {
	m, ok := s.cache[groupID]
	return m, ok
}

// Len returns the number of groups with a representative.
func (s *RepresentativeSelector) Len() int {
	return len(s.cache)
}
