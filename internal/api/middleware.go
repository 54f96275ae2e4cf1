package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

// ValidateTwilioSignature rejects webhook requests whose X-Twilio-Signature
// does not match publicURL (or the request URL) and the posted form.
func ValidateTwilioSignature(v WebhookValidator, publicURL string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if v == nil {
			slog.Error("ValidateTwilioSignature: no validator configured")
			return c.Status(fiber.StatusInternalServerError).JSON(models.Error("Server configuration error"))
		}
		signature := c.Get("X-Twilio-Signature")
		if signature == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(models.Error("Missing Twilio signature"))
		}

		url := publicURL
		if url == "" {
			url = c.BaseURL() + c.OriginalURL()
		}
		params := make(map[string]string)
		c.Request().PostArgs().VisitAll(func(key, value []byte) {
			params[string(key)] = string(value)
		})

		if !v.ValidateWebhook(url, params, signature) {
			slog.Warn("ValidateTwilioSignature: invalid signature", "url", url)
			return c.Status(fiber.StatusUnauthorized).JSON(models.Error("Invalid signature"))
		}
		return c.Next()
	}
}
