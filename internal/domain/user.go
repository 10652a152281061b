// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const MaxUserIDLen = 64

var (
	ErrUserIDEmpty   = errors.New("user id empty")
	ErrUserIDTooLong = errors.New("user id too long")
)

// UserID is the durable identity issued outside of this service
// (account id, firebase uid, etc). Opaque here.
type UserID string

func (u UserID) Validate() error {
	if len(u) == 0 {
		return ErrUserIDEmpty
	}
	if len(u) > MaxUserIDLen {
		return ErrUserIDTooLong
	}
	return nil
}

func (u UserID) String() string { return string(u) }
