package reminder

import (
	"context"
	"errors"
	"fmt"

	"advancedreminders/internal/models"
)

// ErrUserRejected is wrapped by every reason a user may not receive reminders
var ErrUserRejected = errors.New("user cannot receive reminders")

var (
	ErrInvalidUser      = fmt.Errorf("%w: invalid user", ErrUserRejected)
	ErrUserDeleted      = fmt.Errorf("%w: user deleted", ErrUserRejected)
	ErrUserNotConfirmed = fmt.Errorf("%w: user not confirmed", ErrUserRejected)
	ErrGuestUser        = fmt.Errorf("%w: guests are not allowed", ErrUserRejected)
	ErrUserSuspended    = fmt.Errorf("%w: user suspended", ErrUserRejected)
	ErrNoLoginAuth      = fmt.Errorf("%w: nologin auth", ErrUserRejected)
)

// CheckUser returns the first reason u must never be mailed, or nil
func CheckUser(u *models.User) error {
	switch {
	case u == nil:
		return ErrInvalidUser
	case u.Deleted:
		return ErrUserDeleted
	case !u.Confirmed:
		return ErrUserNotConfirmed
	case u.IsGuest():
		return ErrGuestUser
	case u.Suspended:
		return ErrUserSuspended
	case u.Auth == models.AuthNoLogin:
		return ErrNoLoginAuth
	}
	return nil
}

// UserValidator loads users and filters out accounts that must not be mailed
type UserValidator struct {
	users UserRepository
}

func NewUserValidator(users UserRepository) *UserValidator {
	return &UserValidator{users: users}
}

// Validate returns the user, an error wrapping ErrUserRejected, or a lookup error
func (v *UserValidator) Validate(ctx context.Context, userID int64) (*models.User, error) {
	user, err := v.users.GetUser(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrInvalidUser
	}
	if err != nil {
		return nil, err
	}
	if err := CheckUser(user); err != nil {
		return nil, err
	}
	return user, nil
}
