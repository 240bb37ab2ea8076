// Package vlan implements set algebra over VLAN ID ranges.
//
// NSI topology documents and reservation requests express VLAN labels as
// compact range strings such as "3,4,6-9". Ranges normalizes any mix of
// overlapping, unordered or duplicated input to a canonical sorted form and
// supports the usual set operations.
package vlan

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MinVlan and MaxVlan bound what a range string may contain. Values usable
// for reservations are stricter (2..4094); the parser accepts the full
// 802.1Q label space so topology documents round-trip unchanged.
const (
	MinVlan = 0
	MaxVlan = 4096
)

// Ranges is an immutable set of VLAN IDs stored as sorted, non-adjacent,
// inclusive [start, end] intervals.
type Ranges struct {
	spans [][2]int
}

// Parse converts a range string like "3, 4, 6-9" to a Ranges value.
// Overlaps and reversed bounds are normalized; values outside [0, 4096]
// are rejected. The empty string parses to the empty set.
func Parse(s string) (Ranges, error) {
	if strings.TrimSpace(s) == "" {
		return Ranges{}, nil
	}
	var spans [][2]int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		bounds := strings.SplitN(part, "-", 2)
		start, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
		if err != nil {
			return Ranges{}, fmt.Errorf("%q could not be converted to a VLAN range", s)
		}
		end := start
		if len(bounds) == 2 {
			end, err = strconv.Atoi(strings.TrimSpace(bounds[1]))
			if err != nil {
				return Ranges{}, fmt.Errorf("%q could not be converted to a VLAN range", s)
			}
		}
		if end < start {
			start, end = end, start
		}
		if start < MinVlan || end > MaxVlan {
			return Ranges{}, fmt.Errorf("%q is out of range (%d-%d)", s, MinVlan, MaxVlan)
		}
		spans = append(spans, [2]int{start, end})
	}
	return Ranges{spans: normalize(spans)}, nil
}

// MustParse is Parse for literals known to be valid; it panics otherwise.
func MustParse(s string) Ranges {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

// New builds a Ranges from individual VLAN IDs.
func New(vlans ...int) Ranges {
	spans := make([][2]int, 0, len(vlans))
	for _, v := range vlans {
		spans = append(spans, [2]int{v, v})
	}
	return Ranges{spans: normalize(spans)}
}

// normalize sorts spans and merges overlapping or adjacent ones.
func normalize(spans [][2]int) [][2]int {
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i][0] != spans[j][0] {
			return spans[i][0] < spans[j][0]
		}
		return spans[i][1] < spans[j][1]
	})
	merged := [][2]int{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s[0] <= last[1]+1 {
			if s[1] > last[1] {
				last[1] = s[1]
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// Contains reports whether the set includes the given VLAN.
func (r Ranges) Contains(vlan int) bool {
	i := sort.Search(len(r.spans), func(i int) bool { return r.spans[i][1] >= vlan })
	return i < len(r.spans) && r.spans[i][0] <= vlan
}

// IsEmpty reports whether the set has no members.
func (r Ranges) IsEmpty() bool {
	return len(r.spans) == 0
}

// Len returns the number of VLANs in the set.
func (r Ranges) Len() int {
	n := 0
	for _, s := range r.spans {
		n += s[1] - s[0] + 1
	}
	return n
}

// Values returns all member VLANs in ascending order.
func (r Ranges) Values() []int {
	vlans := make([]int, 0, r.Len())
	for _, s := range r.spans {
		for v := s[0]; v <= s[1]; v++ {
			vlans = append(vlans, v)
		}
	}
	return vlans
}

// Spans returns the inclusive [start, end] intervals of the set.
func (r Ranges) Spans() [][2]int {
	spans := make([][2]int, len(r.spans))
	copy(spans, r.spans)
	return spans
}

// String renders the canonical compact form, e.g. "1-10" or "3,6-9".
func (r Ranges) String() string {
	parts := make([]string, 0, len(r.spans))
	for _, s := range r.spans {
		if s[0] == s[1] {
			parts = append(parts, strconv.Itoa(s[0]))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", s[0], s[1]))
		}
	}
	return strings.Join(parts, ",")
}

// Equal reports set equality.
func (r Ranges) Equal(other Ranges) bool {
	if len(r.spans) != len(other.spans) {
		return false
	}
	for i := range r.spans {
		if r.spans[i] != other.spans[i] {
			return false
		}
	}
	return true
}

// Union returns the set of VLANs in either operand.
func (r Ranges) Union(other Ranges) Ranges {
	return Ranges{spans: normalize(append(r.Spans(), other.spans...))}
}

// Intersect returns the set of VLANs present in both operands.
func (r Ranges) Intersect(other Ranges) Ranges {
	var spans [][2]int
	i, j := 0, 0
	for i < len(r.spans) && j < len(other.spans) {
		lo := max(r.spans[i][0], other.spans[j][0])
		hi := min(r.spans[i][1], other.spans[j][1])
		if lo <= hi {
			spans = append(spans, [2]int{lo, hi})
		}
		if r.spans[i][1] < other.spans[j][1] {
			i++
		} else {
			j++
		}
	}
	return Ranges{spans: normalize(spans)}
}

// Difference returns the VLANs in r that are not in other.
func (r Ranges) Difference(other Ranges) Ranges {
	var spans [][2]int
	for _, s := range r.spans {
		lo := s[0]
		for _, o := range other.spans {
			if o[1] < lo {
				continue
			}
			if o[0] > s[1] {
				break
			}
			if o[0] > lo {
				spans = append(spans, [2]int{lo, o[0] - 1})
			}
			lo = o[1] + 1
			if lo > s[1] {
				break
			}
		}
		if lo <= s[1] {
			spans = append(spans, [2]int{lo, s[1]})
		}
	}
	return Ranges{spans: normalize(spans)}
}

// SymmetricDifference returns the VLANs in exactly one of the operands.
func (r Ranges) SymmetricDifference(other Ranges) Ranges {
	return r.Difference(other).Union(other.Difference(r))
}

// Remove returns the set without the given VLAN.
func (r Ranges) Remove(vlan int) Ranges {
	return r.Difference(New(vlan))
}

// Disjoint reports whether the sets have no VLANs in common.
func (r Ranges) Disjoint(other Ranges) bool {
	return r.Intersect(other).IsEmpty()
}
