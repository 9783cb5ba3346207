package core

import (
	"bytes"
	"encoding/json"
	"regexp"
)

// UnivariateGroup is the group holding every parameter without an index suffix.
const UnivariateGroup = "Univariate"

var indexedName = regexp.MustCompile(`^(.*)\[.+\]$`)

// ParameterGroup is a named list of flat parameter names.
type ParameterGroup struct {
	Name       string
	Parameters []string
}

// ParameterGroups is an ordered list of groups. It encodes as a JSON object
// whose keys keep their first-seen order.
type ParameterGroups []ParameterGroup

// GroupParameters groups flat names like "eta[1]" under "eta" and scalars
// under "Univariate". Group order follows the first occurrence of each group.
func GroupParameters(names []string) ParameterGroups {
	var groups ParameterGroups
	pos := make(map[string]int)
	for _, n := range names {
		key := UnivariateGroup
		if m := indexedName.FindStringSubmatch(n); m != nil {
			key = m[1]
		}
		i, ok := pos[key]
		if !ok {
			i = len(groups)
			pos[key] = i
			groups = append(groups, ParameterGroup{Name: key})
		}
		groups[i].Parameters = append(groups[i].Parameters, n)
	}
	return groups
}

// Lookup returns the members of a group.
func (g ParameterGroups) Lookup(name string) ([]string, bool) {
	for _, grp := range g {
		if grp.Name == name {
			return grp.Parameters, true
		}
	}
	return nil, false
}

// MarshalJSON implements json.Marshaler.
func (g ParameterGroups) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, grp := range g {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(grp.Name)
		if err != nil {
			return nil, err
		}
		members := grp.Parameters
		if members == nil {
			members = []string{}
		}
		val, err := json.Marshal(members)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
