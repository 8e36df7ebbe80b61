// Package types
package types

import (
	"errors"
)

var ErrInvalidState = errors.New("invalid proposal state")
var ErrProposalNotFound = errors.New("proposal not found")
var ErrModeratorNotFound = errors.New("moderator state not found")
var ErrAccountsNotInitialized = errors.New("conditional accounts not initialized")
var ErrDataIntegrity = errors.New("data integrity violation")
