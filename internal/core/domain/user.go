package domain

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the authenticated identity held by the session store and
// persisted under the "user" storage key.
type User struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// EmptyUser returns the sentinel for "nobody is logged in". It is also the
// shape template used to validate a persisted user.
func EmptyUser() User {
	return User{Username: "", Roles: []string{}}
}

// IsEmpty reports whether u is the unauthenticated sentinel.
func (u User) IsEmpty() bool {
	return u.Username == ""
}

// Clone returns a copy of u that does not share the Roles backing array.
func (u User) Clone() User {
	roles := make([]string, len(u.Roles))
	copy(roles, u.Roles)
	return User{Username: u.Username, Roles: roles}
}

// HasRole reports whether u carries role.
func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Account is a registered user as stored by the reference auth API.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity projects an account onto the public User shape.
func (a *Account) Identity() User {
	return User{Username: a.Username, Roles: append([]string{}, a.Roles...)}
}
