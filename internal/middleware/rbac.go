package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/marketing-agent/internal/utils"
)

// Dashboard roles carried in the JWT role claim. Viewers may only read.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

type roleSet map[string]struct{}

func newRoleSet(roles []string) roleSet {
	set := make(roleSet, len(roles))
	for _, role := range roles {
		if normalized := normalizeRoleValue(role); normalized != "" {
			set[normalized] = struct{}{}
		}
	}
	return set
}

func (s roleSet) permits(c *fiber.Ctx) bool {
	_, ok := s[normalizeRoleValue(c.Locals("user_role"))]
	return ok
}

// RequireRole rejects requests whose role is not one of roles.
func RequireRole(roles ...string) fiber.Handler {
	allowed := newRoleSet(roles)
	return func(c *fiber.Ctx) error {
		if !allowed.permits(c) {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}

// RequireRoleForWrites lets GET and HEAD through and applies RequireRole to every other method.
func RequireRoleForWrites(roles ...string) fiber.Handler {
	guard := RequireRole(roles...)
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}
		return guard(c)
	}
}

func normalizeRoleValue(value interface{}) string {
	var raw string
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		raw = v
	case fmt.Stringer:
		raw = v.String()
	default:
		raw = fmt.Sprintf("%v", v)
	}
	return strings.ToLower(strings.TrimSpace(raw))
}
