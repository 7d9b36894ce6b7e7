package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/vaultlink/vaultlink/internal/auth"
)

// serverIDLocal is the request-locals key under which TokenAuth stores the
// authenticated server id; the audit and idempotency middlewares read it.
const serverIDLocal = "server_id"

// TokenAuth validates bearer tokens issued to game servers and stores the
// authenticated server id in request locals.
func TokenAuth(tokens *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		token := strings.TrimSpace(authz[len("Bearer "):])
		serverID, err := tokens.Verify(token)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		c.Locals(serverIDLocal, serverID)
		return c.Next()
	}
}
