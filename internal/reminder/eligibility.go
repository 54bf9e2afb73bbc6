package reminder

import (
	"strings"

	"advancedreminders/internal/models"
)

// ParseAllowedRoles splits a comma separated list of role short names.
// Entries are trimmed; matching stays case sensitive.
func ParseAllowedRoles(raw string) map[string]struct{} {
	allowed := make(map[string]struct{})
	for _, role := range strings.Split(raw, ",") {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		allowed[role] = struct{}{}
	}
	return allowed
}

// EligibleUsers returns, in first-seen order, the users holding at least one
// allowed role.
func EligibleUsers(allowedRoles string, assignments []models.RoleAssignment) []int64 {
	allowed := ParseAllowedRoles(allowedRoles)
	if len(allowed) == 0 {
		return nil
	}

	seen := make(map[int64]struct{})
	var users []int64
	for _, a := range assignments {
		if _, ok := allowed[a.ShortName]; !ok {
			continue
		}
		if _, dup := seen[a.UserID]; dup {
			continue
		}
		seen[a.UserID] = struct{}{}
		users = append(users, a.UserID)
	}
	return users
}
