package homeassistant

import "strings"

const groupDomain = "group"

// GroupMembers returns the member ids listed in a group state's entity_id
// attribute. Non-string members are ignored.
func GroupMembers(attrs map[string]any) []string {
	switch v := attrs["entity_id"].(type) {
	case []string:
		return v
	case []any:
		members := make([]string, 0, len(v))
		for _, m := range v {
			if s, ok := m.(string); ok {
				members = append(members, s)
			}
		}
		return members
	case string:
		return []string{v}
	default:
		return nil
	}
}

// ExpandEntityIDs replaces every group.* id with the ids of its members,
// recursively. Order of first appearance is kept, duplicates are dropped and
// ids are lowercased. members returns the member ids of a group and false
// when the group is unknown; unknown groups contribute nothing.
func ExpandEntityIDs(ids []string, members func(groupID string) ([]string, bool)) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	visiting := make(map[string]bool)

	var expand func([]string)
	expand = func(ids []string) {
		for _, raw := range ids {
			id := strings.ToLower(strings.TrimSpace(raw))
			if id == "" {
				continue
			}

			if domain, _, ok := strings.Cut(id, "."); ok && domain == groupDomain {
				if visiting[id] {
					continue
				}
				children, ok := members(id)
				if !ok {
					continue
				}
				visiting[id] = true
				expand(children)
				visiting[id] = false
				continue
			}

			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	expand(ids)

	return out
}
