// Package api provides the operational HTTP surface of IntakePipe.
//
// It exposes health and status endpoints and, when the Twilio transport is
// active, the signed inbound WhatsApp webhook.
package api

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

// DefaultAddr is the listen address when none is configured.
const DefaultAddr = ":8080"

// StatusFunc reports live counters for GET /status.
type StatusFunc func() models.ServiceStatus

// InboundSink receives messages posted to the Twilio webhook.
type InboundSink interface {
	EmitInbound(messageSID, from, body string, numMedia int, ts int64) error
}

// WebhookValidator checks Twilio request signatures.
type WebhookValidator interface {
	ValidateWebhook(url string, params map[string]string, signature string) bool
}

// Config wires the server to the running components. Inbound and Validator
// are only needed for the Twilio transport.
type Config struct {
	Status    StatusFunc
	Inbound   InboundSink
	Validator WebhookValidator
	// WebhookURL is the public URL Twilio signs. When empty the request URL is used.
	WebhookURL string
	// AccessLog enables the fiber request logger.
	AccessLog bool
}

// Server is the fiber application.
type Server struct {
	app     *fiber.App
	cfg     Config
	started time.Time
}

// NewServer creates a Server and registers its routes.
func NewServer(cfg Config) *Server {
	s := &Server{cfg: cfg, started: time.Now()}
	s.app = fiber.New(fiber.Config{
		AppName:               "IntakePipe",
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(models.Error(err.Error()))
		},
	})
	s.app.Use(recover.New())
	if cfg.AccessLog {
		s.app.Use(logger.New())
	}

	s.app.Get("/healthz", s.healthHandler)
	s.app.Get("/status", s.statusHandler)
	if cfg.Inbound != nil {
		s.app.Post("/twilio/webhook", ValidateTwilioSignature(cfg.Validator, cfg.WebhookURL), s.twilioWebhookHandler)
	}
	return s
}

// App exposes the fiber app (used by tests through app.Test).
func (s *Server) App() *fiber.App { return s.app }

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	slog.Info("Server.Start: API listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) healthHandler(c *fiber.Ctx) error {
	return c.JSON(models.Success(fiber.Map{"service": "IntakePipe"}))
}

func (s *Server) statusHandler(c *fiber.Ctx) error {
	var st models.ServiceStatus
	if s.cfg.Status != nil {
		st = s.cfg.Status()
	}
	st.Uptime = time.Since(s.started).Round(time.Second).String()
	return c.JSON(models.Success(st))
}

// twilioWebhookHandler forwards an inbound message and acknowledges with empty TwiML.
// Status callbacks (no From) are acknowledged and ignored.
func (s *Server) twilioWebhookHandler(c *fiber.Ctx) error {
	from := c.FormValue("From")
	if from == "" {
		return c.SendStatus(fiber.StatusNoContent)
	}
	numMedia, _ := strconv.Atoi(c.FormValue("NumMedia"))
	if err := s.cfg.Inbound.EmitInbound(c.FormValue("MessageSid"), from, c.FormValue("Body"), numMedia, time.Now().Unix()); err != nil {
		slog.Error("Server.twilioWebhookHandler: inbound rejected", "from", from, "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.Error("inbound message not accepted"))
	}
	c.Set(fiber.HeaderContentType, "text/xml")
	return c.SendString("<Response></Response>")
}
