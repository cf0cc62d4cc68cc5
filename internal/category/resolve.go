package category

import "strings"

// Uncategorized is the effective category when no source has assigned one.
const Uncategorized = "uncategorized"

// Effective resolves the category shown for a transaction:
// manual override, then AI category, then origin category.
func Effective(manual, ai, origin string) string {
	switch {
	case strings.TrimSpace(manual) != "":
		return manual
	case strings.TrimSpace(ai) != "":
		return ai
	case strings.TrimSpace(origin) != "":
		return origin
	}
	return Uncategorized
}

// IsUncategorized is true iff all three category sources are empty.
// It agrees with Effective returning Uncategorized for unset fields.
func IsUncategorized(manual, ai, origin string) bool {
	return strings.TrimSpace(manual) == "" && strings.TrimSpace(ai) == "" && strings.TrimSpace(origin) == ""
}
