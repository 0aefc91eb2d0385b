package domain

import "time"

type User struct {
	ID           string
	Name         string
	Email        string
	Username     string
	PasswordHash string // PHC argon2id or bcrypt encoding
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the public view of a user.
func (u User) Profile() UserProfile {
	return UserProfile{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
	}
}

// SignUp carries a registration request. Password is the raw password and
// must never be logged.
type SignUp struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserProfile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// ProfileUpdate is a partial update; empty fields are left unchanged.
type ProfileUpdate struct {
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
}

type UserPage struct {
	Data   []UserProfile `json:"data"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}
