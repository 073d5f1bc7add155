package model

import "time"

type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	AvatarURL     string    `json:"avatar_url"`
	PasswordHash  string    `json:"-"`
	EmailVerified bool      `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

type UserPublic struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
		CreatedAt: u.CreatedAt,
	}
}

// DisplayName is the name shown in chat lists and member panels:
// profile name if set, otherwise email.
func (u *UserPublic) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
