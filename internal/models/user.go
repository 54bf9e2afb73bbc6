package models

import "strings"

// GuestUsername is the username of the host's guest account
const GuestUsername = "guest"

// AuthNoLogin is the authentication method of accounts that may not log in
const AuthNoLogin = "nologin"

// User is the host user record
type User struct {
	ID        int64  `gorm:"primaryKey" json:"id"`
	Username  string `gorm:"column:username" json:"username"`
	Email     string `gorm:"column:email" json:"email"`
	FirstName string `gorm:"column:firstname" json:"first_name"`
	LastName  string `gorm:"column:lastname" json:"last_name"`
	Lang      string `gorm:"column:lang" json:"lang"`
	Auth      string `gorm:"column:auth" json:"auth"`
	Deleted   bool   `gorm:"column:deleted" json:"deleted"`
	Confirmed bool   `gorm:"column:confirmed" json:"confirmed"`
	Suspended bool   `gorm:"column:suspended" json:"suspended"`
}

func (User) TableName() string {
	return "user"
}

// FullName returns the display name used in reminders
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsGuest reports whether u is the guest account
func (u User) IsGuest() bool {
	return u.Username == GuestUsername
}

// RoleAssignment is a user's role in a course, resolved to the role short name
type RoleAssignment struct {
	UserID    int64  `json:"user_id"`
	ShortName string `json:"short_name"`
}
