// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	dErrors "filegate/pkg/domain-errors"
)

// TenantID is the opaque key a tenant is accounted under. It is assigned by the
// control plane and treated as an opaque string everywhere in this codebase.
type TenantID string

// UserID identifies an end user within a tenant. Opaque, may be empty for
// machine-to-machine callers.
type UserID string

const maxIDLength = 128

// ParseTenantID validates an inbound tenant key. Use at trust boundaries
// (token claims, queue payloads); internal code passes TenantID values around.
func ParseTenantID(s string) (TenantID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "tenant ID cannot be empty")
	}
	if len(s) > maxIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "tenant ID too long")
	}
	return TenantID(s), nil
}

// ParseUserID validates an inbound user key. Empty is allowed.
func ParseUserID(s string) (UserID, error) {
	if len(s) > maxIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "user ID too long")
	}
	return UserID(s), nil
}

func (id TenantID) String() string { return string(id) }
func (id UserID) String() string   { return string(id) }

func (id TenantID) IsNil() bool { return id == "" }
func (id UserID) IsNil() bool   { return id == "" }
