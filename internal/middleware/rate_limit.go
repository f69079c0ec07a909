package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// TransferRateLimit limits transaction requests per sender wallet, or per
// client IP when the body names none. Redis errors fail open.
func TransferRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 60
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		subject := c.Params("account_id")
		if subject == "" {
			var req struct {
				SenderWallet string `json:"sender_wallet"`
			}
			_ = c.BodyParser(&req)
			subject = strings.TrimSpace(req.SenderWallet)
		}
		if subject == "" {
			subject = c.IP()
		}

		key := "rl:tx:" + strings.ToLower(subject)
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			c.Set(fiber.HeaderRetryAfter, "60")
			return fiber.NewError(http.StatusTooManyRequests, "too many transactions for "+subject+", try again later")
		}
		return c.Next()
	}
}
