// Package storage holds the durable account record, the funding request
// queue and login credentials. Postgres is the production driver; Memory
// backs the offline simulator and the tests.
package storage

import (
	"errors"

	"zentum/internal/types"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("already exists")
	ErrVersionConflict   = errors.New("account version conflict")
	ErrRequestNotPending = errors.New("request is not pending")
)

// RequestFilter selects funding requests. Zero fields match everything.
type RequestFilter struct {
	AccountID string
	Kind      types.RequestKind
	Status    types.RequestStatus
	Limit     int
}

// Credential is the login record for one account.
type Credential struct {
	AccountID    string
	Email        string
	PasswordHash string
}
