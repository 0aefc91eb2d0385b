package authsdk

import "time"

// SignUpRequest is the body of POST /auth/signup. Email is optional.
type SignUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type SignUpResponse struct {
	ID string `json:"id"`
}

// SignInRequest is the body of POST /auth/signin.
type SignInRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is returned by sign-in. The same tokens are also set as the
// token and refresh_token cookies.
type TokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // seconds
}

// AccessTokenResponse is returned by /auth/refresh-token and /auth/token.
type AccessTokenResponse struct {
	Token string `json:"token"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type UserResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

type UserPageResponse struct {
	Data   []UserResponse `json:"data"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// UpdateProfileRequest is the body of PUT /user/. Empty fields are unchanged.
type UpdateProfileRequest struct {
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
}

// HealthResponse is returned by /livez and /readyz (with Checks).
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime,omitempty"`
	Version string        `json:"version,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database   string `json:"database"`
	Revocation string `json:"revocation"`
}
