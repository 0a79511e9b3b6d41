package auth

import (
	"chat-relay/domain"
	"context"
)

const ModeratorRole = "moderator"

// RoleAuthorizer grants moderator rights to principals carrying a role.
type RoleAuthorizer struct {
	role string
}

func NewRoleAuthorizer(role string) RoleAuthorizer {
	return RoleAuthorizer{role: role}
}

func (a RoleAuthorizer) IsModerator(_ context.Context, principal *domain.Principal) (bool, error) {
	return principal.HasRole(a.role), nil
}
