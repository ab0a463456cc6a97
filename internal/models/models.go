// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package models holds the records persisted by the repository.
package models

// Role is the account type chosen at registration.
type Role string

const (
	RoleBrand   Role = "brand"
	RoleCreator Role = "creator"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleBrand, RoleCreator, RoleAdmin:
		return true
	}
	return false
}

// SelfService reports whether r can be chosen through public registration.
func (r Role) SelfService() bool {
	return r == RoleBrand || r == RoleCreator
}
