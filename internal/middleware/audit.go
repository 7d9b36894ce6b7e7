package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Audit writes one structured line per request: the bank's audit trail of
// everything a game server does against the ledger. The server id appears once
// the token middleware has authenticated the caller.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", c.Response().StatusCode()),
			slog.Duration("took", time.Since(start)),
			slog.String("ip", c.IP()),
		}
		if id, ok := c.Locals(requestIDLocal).(string); ok && id != "" {
			attrs = append(attrs, slog.String("request_id", id))
		}
		if server, ok := c.Locals(serverIDLocal).(string); ok && server != "" {
			attrs = append(attrs, slog.String("server_id", server))
		}

		if err != nil {
			logger.Error("bank api request", append(attrs, slog.Any("error", err))...)
			return err
		}
		logger.Info("bank api request", attrs...)
		return nil
	}
}
