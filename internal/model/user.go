package model

// UserProfile is the read-only slice of a user needed for display.
// User management lives outside this service.
type UserProfile struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	FullName  string  `json:"fullName"`
	AvatarURL *string `json:"avatarUrl"`
	CompanyID string  `json:"companyId,omitempty"`
}

// UnknownProfile is used when the directory has no record of id.
func UnknownProfile(id string) UserProfile {
	return UserProfile{ID: id, Username: id}
}
