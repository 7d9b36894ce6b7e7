package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idemPrefix           = "bank:idem:v1:"
	idemPending          = "pending"
	idemStoreTimeout     = 2 * time.Second
)

// replayEnvelope is the stored outcome of a completed posting, replayed
// verbatim to duplicate requests.
type replayEnvelope struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body"`
}

// Idempotency makes unsafe bank API calls replay-safe. The replay key is the
// Idempotency-Key header when the caller sends one, falling back to the
// client_tx_id of the posting body, and is scoped to the authenticated game
// server so two servers can never collide on the same transaction id. The
// first request reserves the key, runs, and stores its response; a duplicate
// gets the stored response back without touching the ledger again, and a
// duplicate that races the original is rejected instead of executed twice.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := replayKey(c)
		if key == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing Idempotency-Key header or client_tx_id")
		}

		ctx, cancel := context.WithTimeout(context.Background(), idemStoreTimeout)
		defer cancel()

		switch cached, err := cache.Get(ctx, key).Result(); {
		case err == nil && cached == idemPending:
			return fiber.NewError(fiber.StatusConflict, "a posting with this key is still in flight")
		case err == nil:
			return replay(c, logger, key, cached)
		case err != redis.Nil:
			logger.Error("idempotency lookup failed", slog.String("key", key), slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
		}

		// Reserve the key before running the posting so a racing duplicate
		// cannot slip past the lookup above.
		if err := cache.SetNX(ctx, key, idemPending, ttl).Err(); err != nil {
			logger.Error("idempotency reservation failed", slog.String("key", key), slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
		}

		if err := c.Next(); err != nil {
			// The posting never produced a response; free the key so the
			// caller's retry is not locked out for the full TTL.
			release(cache, key)
			return err
		}

		env := replayEnvelope{
			Status:      c.Response().StatusCode(),
			ContentType: string(c.Response().Header.ContentType()),
			Body:        string(c.Response().Body()),
		}
		payload, err := json.Marshal(env)
		if err != nil {
			logger.Error("failed to encode replay envelope", slog.String("key", key), slog.Any("error", err))
			release(cache, key)
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
		}

		storeCtx, storeCancel := context.WithTimeout(context.Background(), idemStoreTimeout)
		defer storeCancel()
		if err := cache.Set(storeCtx, key, payload, ttl).Err(); err != nil {
			logger.Error("failed to persist replay envelope", slog.String("key", key), slog.Any("error", err))
			release(cache, key)
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
		}

		return nil
	}
}

// replayKey derives the replay key for the request, or "" when the caller
// supplied neither the header nor a client_tx_id.
func replayKey(c *fiber.Ctx) string {
	token := strings.TrimSpace(c.Get(idempotencyKeyHeader))
	if token == "" {
		var body struct {
			ClientTxID string `json:"client_tx_id"`
		}
		if json.Unmarshal(c.Body(), &body) == nil {
			token = strings.TrimSpace(body.ClientTxID)
		}
	}
	if token == "" {
		return ""
	}
	server, _ := c.Locals(serverIDLocal).(string)
	if server == "" {
		server = "anon"
	}
	return idemPrefix + server + ":" + token
}

func replay(c *fiber.Ctx, logger *slog.Logger, key, cached string) error {
	var env replayEnvelope
	if err := json.Unmarshal([]byte(cached), &env); err != nil {
		logger.Warn("stored replay envelope is unreadable", slog.String("key", key), slog.Any("error", err))
		return fiber.NewError(fiber.StatusConflict, "duplicate request")
	}
	if env.ContentType != "" {
		c.Set(fiber.HeaderContentType, env.ContentType)
	}
	return c.Status(env.Status).SendString(env.Body)
}

// release frees a reserved key, best effort.
func release(cache *redis.Client, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), idemStoreTimeout)
	defer cancel()
	cache.Del(ctx, key)
}
