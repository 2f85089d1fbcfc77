package models

import "time"

// Professional is a tax professional's profile. Its ID, not the user id,
// prefixes the storage keys of files the professional uploads. Only
// verified profiles are listed in the directory.
type Professional struct {
	ID              string    `json:"id"`
	UserID          string    `json:"-"`
	DisplayName     string    `json:"name"`
	Verified        bool      `json:"isVerified"`
	CreatedAt       time.Time `json:"createdAt"`
	Email           string    `json:"email,omitempty"`
	ProfileImageURL string    `json:"profileImageUrl,omitempty"`
	Specialties     []string  `json:"specialties"`
	Location        string    `json:"location,omitempty"`
	Introduction    string    `json:"introduction,omitempty"`
	Rating          float64   `json:"rating"`
	ReviewCount     int       `json:"reviewCount"`
}

// UserProfile holds contact data shown to the assigned professional.
type UserProfile struct {
	UserID string
	Email  string
}
