package rbac

import (
	"context"
	"strings"
)

// Policy is a compiled role table. Grants ending in "*" cover every
// permission sharing the prefix; a bare "*" covers everything.
type Policy struct {
	exact    map[string]map[string]struct{}
	prefixes map[string][]string
}

func NewPolicy(table map[string][]string) *Policy {
	if table == nil {
		table = RolePermissions
	}
	p := &Policy{
		exact:    make(map[string]map[string]struct{}, len(table)),
		prefixes: make(map[string][]string, len(table)),
	}
	for role, grants := range table {
		set := make(map[string]struct{}, len(grants))
		for _, g := range grants {
			if pre, ok := strings.CutSuffix(g, "*"); ok {
				p.prefixes[role] = append(p.prefixes[role], pre)
				continue
			}
			set[g] = struct{}{}
		}
		p.exact[role] = set
	}
	return p
}

func (p *Policy) Allows(role, perm string) bool {
	if _, ok := p.exact[role][perm]; ok {
		return true
	}
	for _, pre := range p.prefixes[role] {
		if strings.HasPrefix(perm, pre) {
			return true
		}
	}
	return false
}

// AllowsAny reports whether role holds at least one of perms.
func (p *Policy) AllowsAny(role string, perms ...string) bool {
	for _, perm := range perms {
		if p.Allows(role, perm) {
			return true
		}
	}
	return false
}

type roleKey struct{}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

func RoleFromContext(ctx context.Context) string {
	s, _ := ctx.Value(roleKey{}).(string)
	return s
}
