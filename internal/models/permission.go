package models

import (
	"fmt"
	"sort"
	"strings"
)

const permissionParts = 3

// Permission is the typed form of a "Resource.Action.Scope" permission code,
// e.g. "Movie.Read.Any" or "Billing.Refund.Own". The wire claim format is the
// dotted string; business logic only ever sees the typed value.
type Permission struct {
	Resource string
	Action   string
	Scope    string
}

func (p Permission) String() string {
	return p.Resource + "." + p.Action + "." + p.Scope
}

func ParsePermission(code string) (Permission, error) {
	parts := strings.Split(code, ".")
	if len(parts) != permissionParts || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Permission{}, fmt.Errorf("malformed permission code %q", code)
	}
	return Permission{Resource: parts[0], Action: parts[1], Scope: parts[2]}, nil
}

// ParsePermissions converts stored codes to typed values, dropping duplicates.
// Malformed codes are skipped rather than failing the whole snapshot.
func ParsePermissions(codes []string) []Permission {
	seen := make(map[string]struct{}, len(codes))
	perms := make([]Permission, 0, len(codes))
	for _, code := range codes {
		p, err := ParsePermission(code)
		if err != nil {
			continue
		}
		if _, ok := seen[p.String()]; ok {
			continue
		}
		seen[p.String()] = struct{}{}
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].String() < perms[j].String() })
	return perms
}

func PermissionStrings(perms []Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = p.String()
	}
	return out
}
