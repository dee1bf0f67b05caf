package domain

import "strings"

const (
	RoleAdmin   = "admin"
	RoleVet     = "vet"
	RoleClient  = "client"
	RoleService = "service"
)

// Identity is the verified caller, bound once when a session or request is accepted.
type Identity struct {
	UserID string
	Role   string
}

func (i Identity) IsZero() bool { return i.UserID == "" }

// Privileged callers may act on behalf of other users (admin console, internal services).
func (i Identity) Privileged() bool {
	return i.Role == RoleAdmin || i.Role == RoleService
}

// User is the collaborator view of an account.
type User struct {
	ID          string
	DisplayName string
	Role        string
}

func (u User) Name() string {
	if n := strings.TrimSpace(u.DisplayName); n != "" {
		return n
	}
	return u.ID
}

// AppVariant selects which client application (and push token) a user receives on.
// The set is open: clients may register any variant, vet and client are the two
// the service resolves from roles.
type AppVariant string

const (
	AppVet    AppVariant = "vet"
	AppClient AppVariant = "client"
)

// ParseAppVariant lower-cases s; only an empty value is rejected.
func ParseAppVariant(s string) (AppVariant, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return "", false
	}
	return AppVariant(v), true
}

// VariantForRole: vets use the vet app, everyone else the client app.
func VariantForRole(role string) AppVariant {
	if strings.EqualFold(role, RoleVet) {
		return AppVet
	}
	return AppClient
}
