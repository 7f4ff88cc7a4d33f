// Package access holds the role check used to guard panel routes.
package access

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Role is the role stored on a user's profile row.
type Role string

const (
	RoleAnonymous Role = ""
	RoleUser      Role = "user"
	RoleMerchant  Role = "merchant"
	RoleAdmin     Role = "admin"
)

// LoginPath is where unauthenticated visitors are sent.
const LoginPath = "/login"

// ErrUnknownUser is returned by a RoleLookup for an ID it has no row for.
var ErrUnknownUser = errors.New("unknown user")

// ParseRole maps a stored role string to a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleMerchant, RoleAdmin:
		return r, nil
	default:
		return RoleAnonymous, fmt.Errorf("unknown role %q", s)
	}
}

// Home returns the landing page for a role.
func (r Role) Home() string {
	switch r {
	case RoleAdmin:
		return "/admin"
	case RoleMerchant:
		return "/merchant"
	default:
		return "/"
	}
}

// Session is the caller identity handed to the guard. It is passed in
// explicitly rather than read from ambient storage.
type Session struct {
	UserID string
	Role   Role
}

// Authenticated reports whether the session belongs to a signed-in user.
func (s Session) Authenticated() bool {
	return s.UserID != "" && s.Role != RoleAnonymous
}

// Rule restricts every path under Prefix to Roles.
type Rule struct {
	Prefix string
	Roles  []Role
}

func (r Rule) matches(path string) bool {
	if !strings.HasPrefix(path, r.Prefix) {
		return false
	}
	rest := path[len(r.Prefix):]
	return rest == "" || strings.HasPrefix(rest, "/") || strings.HasSuffix(r.Prefix, "/")
}

func (r Rule) allows(role Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// DefaultRules guards the admin panel, the merchant panel, the photo API and
// the progress socket.
func DefaultRules() []Rule {
	return []Rule{
		{Prefix: "/admin", Roles: []Role{RoleAdmin}},
		{Prefix: "/merchant", Roles: []Role{RoleMerchant, RoleAdmin}},
		{Prefix: "/api/photos", Roles: []Role{RoleMerchant, RoleAdmin}},
		{Prefix: "/ws", Roles: []Role{RoleMerchant, RoleAdmin}},
	}
}

// Decision is the outcome of a route check.
type Decision struct {
	Allowed  bool
	Redirect string // set when Allowed is false, or when a signed-in user hits the login page
}

// Guard evaluates rules by longest matching prefix.
type Guard struct {
	rules []Rule
}

// NewGuard copies rules and orders them longest prefix first.
func NewGuard(rules []Rule) *Guard {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &Guard{rules: sorted}
}

// Check decides whether s may open path.
func (g *Guard) Check(s Session, path string) Decision {
	if path == LoginPath && s.Authenticated() {
		return Decision{Allowed: true, Redirect: s.Role.Home()}
	}

	for _, rule := range g.rules {
		if !rule.matches(path) {
			continue
		}
		if !s.Authenticated() {
			return Decision{Redirect: LoginPath}
		}
		if !rule.allows(s.Role) {
			return Decision{Redirect: s.Role.Home()}
		}
		return Decision{Allowed: true}
	}
	return Decision{Allowed: true}
}

// RoleLookup resolves the role for a user ID, typically from the profiles table.
type RoleLookup interface {
	LookupRole(ctx context.Context, userID string) (Role, error)
}

// StaticRoles is a RoleLookup backed by a fixed table.
type StaticRoles map[string]Role

// NewStaticRoles builds a table from config strings. Unknown role names are an error.
func NewStaticRoles(users map[string]string) (StaticRoles, error) {
	out := make(StaticRoles, len(users))
	for id, raw := range users {
		role, err := ParseRole(raw)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", id, err)
		}
		out[id] = role
	}
	return out, nil
}

// LookupRole implements RoleLookup.
func (s StaticRoles) LookupRole(ctx context.Context, userID string) (Role, error) {
	if err := ctx.Err(); err != nil {
		return RoleAnonymous, err
	}
	role, ok := s[userID]
	if !ok {
		return RoleAnonymous, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	return role, nil
}

// Resolve builds a Session for userID. An empty or unknown ID yields an
// anonymous session; other lookup failures are returned.
func Resolve(ctx context.Context, lookup RoleLookup, userID string) (Session, error) {
	if userID == "" || lookup == nil {
		return Session{}, nil
	}
	role, err := lookup.LookupRole(ctx, userID)
	if errors.Is(err, ErrUnknownUser) {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("looking up role for %s: %w", userID, err)
	}
	return Session{UserID: userID, Role: role}, nil
}
