package agreement

import "strings"

// IsAsset reports whether id names a dataspace asset rather than an ordinary
// URL. Assets are URNs.
func IsAsset(id string) bool {
	return len(id) > 4 && strings.EqualFold(id[:4], "urn:")
}

// IsSkill reports whether id names a stored, parameterized query. Skill
// assets carry a "Skill" segment, e.g. urn:cx:Skill:consumer:Lifetime.
func IsSkill(id string) bool {
	if !IsAsset(id) {
		return false
	}
	for _, seg := range strings.FieldsFunc(id, func(r rune) bool { return r == ':' || r == '#' || r == '/' }) {
		if seg == "Skill" {
			return true
		}
	}
	return false
}

// IsGraph reports whether id names a graph asset, i.e. any asset that is
// not a skill.
func IsGraph(id string) bool {
	return IsAsset(id) && !IsSkill(id)
}
