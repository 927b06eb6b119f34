package domain

// RegisterDTO is the body of POST /auth/register.
type RegisterDTO struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// LoginDTO is the body of POST /auth/login.
type LoginDTO struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ProfileUpdateDTO is the body of PUT /auth/update-profile. Empty fields are
// left unchanged by the server.
type ProfileUpdateDTO struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

// LoginResponse is the success body of POST /auth/login.
type LoginResponse struct {
	Username     string   `json:"username"`
	Roles        []string `json:"roles"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
}

// RefreshRequest is the body of POST /auth/refresh-token.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshResponse is the success body of POST /auth/refresh-token.
type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
}

// TokenPair is the result of a successful login on the reference API.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
