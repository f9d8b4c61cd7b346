package auth

import "LanChat/internal/event"

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Identity is what a verified token tells us about the caller.
type Identity struct {
	UserID    string
	Username  string
	Email     string
	CompanyID string
	Role      string
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// Public is the view sent back to clients in authenticated.
func (i Identity) Public() *event.Identity {
	return &event.Identity{
		ID:        i.UserID,
		Username:  i.Username,
		CompanyID: i.CompanyID,
		Role:      i.Role,
	}
}
