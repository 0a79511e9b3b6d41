// Package domain contains core concepts of the support chat.
// This file defines the Principal behind a connection and its Role.
// No runtime, network, or UI logic should be added here.
package domain

import "slices"

type Role string

const (
	RoleVisitor   Role = "visitor"
	RoleModerator Role = "moderator"
)

// Principal is the authenticated user behind a connection.
// A nil *Principal is an anonymous visitor.
type Principal struct {
	UserID   string
	Username string
	Roles    []string
}

func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Roles, role)
}

// SenderName is the value stored as message sender: nil when anonymous.
func (p *Principal) SenderName() *string {
	if p == nil || p.Username == "" {
		return nil
	}
	name := p.Username
	return &name
}
