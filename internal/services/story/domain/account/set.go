package account

import (
	"encoding/json"
	"sort"
)

// Set is an immutable-by-convention string set. Mutating helpers return a
// copy so aggregate snapshots can be compared and persisted safely.
type Set map[string]struct{}

// NewSet builds a set from the given members.
func NewSet(members ...string) Set {
	s := make(Set, len(members))
	for _, m := range members {
		s[m] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s Set) Has(member string) bool {
	_, ok := s[member]
	return ok
}

// With returns a copy of the set including member.
func (s Set) With(member string) Set {
	out := make(Set, len(s)+1)
	for k := range s {
		out[k] = struct{}{}
	}
	out[member] = struct{}{}
	return out
}

// Without returns a copy of the set excluding member.
func (s Set) Without(member string) Set {
	out := make(Set, len(s))
	for k := range s {
		if k != member {
			out[k] = struct{}{}
		}
	}
	return out
}

// Len returns the number of members.
func (s Set) Len() int {
	return len(s)
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as a sorted JSON array.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes a JSON array into the set.
func (s *Set) UnmarshalJSON(data []byte) error {
	var members []string
	if err := json.Unmarshal(data, &members); err != nil {
		return err
	}
	*s = NewSet(members...)
	return nil
}
