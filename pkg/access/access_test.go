package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestGuard_Check(t *testing.T) {
	g := NewGuard(DefaultRules())

	admin := Session{UserID: "a1", Role: RoleAdmin}
	merchant := Session{UserID: "m1", Role: RoleMerchant}
	user := Session{UserID: "u1", Role: RoleUser}
	anon := Session{}

	tests := []struct {
		name     string
		session  Session
		path     string
		allowed  bool
		redirect string
	}{
		{"public page", anon, "/", true, ""},
		{"public listing", anon, "/isletme/42", true, ""},
		{"anon on admin", anon, "/admin/approvals", false, "/login"},
		{"anon on merchant", anon, "/merchant", false, "/login"},
		{"user on merchant", user, "/merchant/photos", false, "/"},
		{"merchant on admin", merchant, "/admin", false, "/merchant"},
		{"merchant on merchant", merchant, "/merchant/listings/1/photos", true, ""},
		{"admin on merchant", admin, "/merchant", true, ""},
		{"admin on admin", admin, "/admin/users", true, ""},
		{"prefix is segment aware", anon, "/administrator", true, ""},
		{"photo api for merchant", merchant, "/api/photos/normalize", true, ""},
		{"photo api for user", user, "/api/photos/normalize", false, "/"},
		{"progress socket for merchant", merchant, "/ws", true, ""},
		{"progress socket for anon", anon, "/ws", false, "/login"},
		{"progress socket for user", user, "/ws", false, "/"},
		{"signed in on login", merchant, "/login", true, "/merchant"},
		{"anon on login", anon, "/login", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := g.Check(tt.session, tt.path)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.redirect, d.Redirect)
		})
	}
}

func TestGuard_LongestPrefixWins(t *testing.T) {
	g := NewGuard([]Rule{
		{Prefix: "/merchant", Roles: []Role{RoleMerchant}},
		{Prefix: "/merchant/public", Roles: []Role{RoleUser, RoleMerchant}},
	})

	d := g.Check(Session{UserID: "u", Role: RoleUser}, "/merchant/public/info")
	assert.True(t, d.Allowed)

	d = g.Check(Session{UserID: "u", Role: RoleUser}, "/merchant/private")
	assert.False(t, d.Allowed)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Admin ")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)

	_, err = ParseRole("superuser")
	assert.Error(t, err)
}

func TestNewStaticRoles(t *testing.T) {
	roles, err := NewStaticRoles(map[string]string{"a": "admin", "m": "merchant"})
	require.NoError(t, err)

	role, err := roles.LookupRole(context.Background(), "m")
	require.NoError(t, err)
	assert.Equal(t, RoleMerchant, role)

	_, err = roles.LookupRole(context.Background(), "zz")
	assert.ErrorIs(t, err, ErrUnknownUser)

	_, err = NewStaticRoles(map[string]string{"x": "root"})
	assert.Error(t, err)
}

// MockLookup is a mock implementation of the RoleLookup interface.
type MockLookup struct {
	mock.Mock
}

func (m *MockLookup) LookupRole(ctx context.Context, userID string) (Role, error) {
	args := m.Called(userID)
	return args.Get(0).(Role), args.Error(1)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	lookup := new(MockLookup)
	lookup.On("LookupRole", "m1").Return(RoleMerchant, nil)
	lookup.On("LookupRole", "ghost").Return(RoleAnonymous, ErrUnknownUser)
	lookup.On("LookupRole", "flaky").Return(RoleAnonymous, errors.New("db down"))

	s, err := Resolve(ctx, lookup, "m1")
	require.NoError(t, err)
	assert.Equal(t, Session{UserID: "m1", Role: RoleMerchant}, s)

	s, err = Resolve(ctx, lookup, "ghost")
	require.NoError(t, err)
	assert.False(t, s.Authenticated())

	_, err = Resolve(ctx, lookup, "flaky")
	assert.Error(t, err)

	s, err = Resolve(ctx, lookup, "")
	require.NoError(t, err)
	assert.False(t, s.Authenticated())
	lookup.AssertNotCalled(t, "LookupRole", "")
	lookup.AssertExpectations(t)
}
