package domain

import "sort"

// PermissionsOf is the union of the permission sets of the given roles.
func PermissionsOf(roles []Role) map[string]bool {
	out := make(map[string]bool)
	for _, r := range roles {
		for _, p := range r.Permissions {
			out[p] = true
		}
	}
	return out
}

func SortedPermissions(roles []Role) []string {
	set := PermissionsOf(roles)
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func RoleNames(roles []Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, r.Name)
	}
	sort.Strings(out)
	return out
}

// MatchAny reports whether have contains at least one of want. An empty
// want list never matches.
func MatchAny(have map[string]bool, want []string) bool {
	for _, w := range want {
		if have[w] {
			return true
		}
	}
	return false
}

// MatchAll reports whether have contains every entry of want. An empty want
// list never matches.
func MatchAll(have map[string]bool, want []string) bool {
	if len(want) == 0 {
		return false
	}
	for _, w := range want {
		if !have[w] {
			return false
		}
	}
	return true
}

func RoleSet(roles []Role) map[string]bool {
	out := make(map[string]bool, len(roles))
	for _, r := range roles {
		out[r.Name] = true
	}
	return out
}
