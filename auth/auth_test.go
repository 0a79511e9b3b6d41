package auth

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

const secret = "a_test_secret_long_enough_for_hs256"

func TestTokenService_RoundTrip(t *testing.T) {
	req := require.New(t)
	tokens := NewTokenService(secret, "chat-relay", time.Hour)

	// Given a moderator token
	token, err := tokens.GenerateToken("42", "alice", []string{ModeratorRole})
	req.NoError(err)

	// When validating it
	principal, err := tokens.ValidateToken(token)

	// Then the principal is restored
	req.NoError(err)
	req.Equal("42", principal.UserID)
	req.Equal("alice", principal.Username)
	req.True(principal.HasRole(ModeratorRole))
}

func TestTokenService_Rejects(t *testing.T) {
	tokens := NewTokenService(secret, "chat-relay", time.Hour)
	otherSecret := NewTokenService("another_secret_long_enough_for_hs256", "chat-relay", time.Hour)
	otherIssuer := NewTokenService(secret, "someone-else", time.Hour)
	expired := NewTokenService(secret, "chat-relay", -time.Minute)

	forged, err := otherSecret.GenerateToken("1", "mallory", []string{ModeratorRole})
	require.NoError(t, err)
	foreign, err := otherIssuer.GenerateToken("1", "mallory", nil)
	require.NoError(t, err)
	old, err := expired.GenerateToken("1", "bob", nil)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong signature", forged},
		{"wrong issuer", foreign},
		{"expired", old},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tokens.ValidateToken(tt.token)
			require.ErrorIs(t, err, errors.ErrInvalidToken)
		})
	}
}

func TestRoleAuthorizer(t *testing.T) {
	req := require.New(t)
	authorizer := NewRoleAuthorizer(ModeratorRole)
	ctx := context.Background()

	ok, err := authorizer.IsModerator(ctx, &domain.Principal{Username: "alice", Roles: []string{"staff", ModeratorRole}})
	req.NoError(err)
	req.True(ok)

	ok, _ = authorizer.IsModerator(ctx, &domain.Principal{Username: "bob", Roles: []string{"staff"}})
	req.False(ok)

	// Anonymous is never a moderator
	ok, _ = authorizer.IsModerator(ctx, nil)
	req.False(ok)
}

func TestMiddleware(t *testing.T) {
	tokens := NewTokenService(secret, "chat-relay", time.Hour)
	valid, err := tokens.GenerateToken("42", "alice", []string{ModeratorRole})
	require.NoError(t, err)

	newApp := func(required bool) *fiber.App {
		app := fiber.New()
		app.Get("/", Middleware(tokens, required), func(c *fiber.Ctx) error {
			principal, _ := c.Locals(PrincipalKey).(*domain.Principal)
			if principal == nil {
				return c.SendString("anonymous")
			}
			return c.SendString(principal.Username)
		})
		return app
	}

	tests := []struct {
		name     string
		required bool
		target   string
		header   string
		status   int
		body     string
	}{
		{"anonymous allowed", false, "/", "", fiber.StatusOK, "anonymous"},
		{"query token", false, "/?token=" + valid, "", fiber.StatusOK, "alice"},
		{"bearer header", true, "/", "Bearer " + valid, fiber.StatusOK, "alice"},
		{"bad token degrades to anonymous", false, "/?token=bad", "", fiber.StatusOK, "anonymous"},
		{"bad token rejected when required", true, "/?token=bad", "", fiber.StatusForbidden, ""},
		{"missing token rejected when required", true, "/", "", fiber.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			r := httptest.NewRequest(fiber.MethodGet, tt.target, nil)
			if tt.header != "" {
				r.Header.Set(fiber.HeaderAuthorization, tt.header)
			}
			resp, err := newApp(tt.required).Test(r)
			req.NoError(err)
			req.Equal(tt.status, resp.StatusCode)
			if tt.body != "" {
				body, _ := io.ReadAll(resp.Body)
				req.Equal(tt.body, string(body))
			}
		})
	}
}
