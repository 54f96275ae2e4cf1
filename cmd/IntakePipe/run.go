package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/api"
	"github.com/BTreeMap/IntakePipe/internal/config"
	"github.com/BTreeMap/IntakePipe/internal/flow"
	"github.com/BTreeMap/IntakePipe/internal/genai"
	"github.com/BTreeMap/IntakePipe/internal/intake"
	"github.com/BTreeMap/IntakePipe/internal/lockfile"
	"github.com/BTreeMap/IntakePipe/internal/membership"
	"github.com/BTreeMap/IntakePipe/internal/messaging"
	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/scheduler"
	"github.com/BTreeMap/IntakePipe/internal/session"
	"github.com/BTreeMap/IntakePipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/IntakePipe/internal/whatsapp"
)

// DefaultShutdownTimeout bounds the HTTP server drain on exit.
const DefaultShutdownTimeout = 10 * time.Second

// transport is the chat service plus the optional pieces the HTTP surface needs.
type transport struct {
	svc       messaging.Service
	inbound   api.InboundSink
	validator api.WebhookValidator
	close     func()
}

// run wires every component and blocks until ctx is cancelled or the HTTP
// server fails.
func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("Bootstrapping IntakePipe", "transport", cfg.Transport, "state_dir", cfg.StateDir, "version", version)

	lock, err := lockfile.Acquire(cfg.StateDir, cfg.Transport)
	if err != nil {
		return err
	}
	defer lock.Release()

	be := openBackends(ctx, cfg)
	defer func() {
		if err := be.Close(); err != nil {
			slog.Warn("run: closing stores failed", "error", err)
		}
	}()

	tr, err := openTransport(ctx, cfg)
	if err != nil {
		return fmt.Errorf("transport bootstrap failed: %w", err)
	}
	defer tr.close()

	lo, hi := messaging.NormalizeDelayRange(cfg.ReplyDelayMin, cfg.ReplyDelayMax)
	sender := messaging.NewPacedSender(tr.svc, lo, hi)
	slog.Debug("run: reply pacing", "min", lo, "max", hi)

	serializer := session.NewSerializer()
	timer := scheduler.NewSimpleTimer()
	defer timer.Stop()

	links := cfg.Links.WithDefaults()
	followUps := scheduler.NewScheduler(timer, be.rows, sender, serializer, scheduler.Config{
		Delays:        scheduler.HoursToDelays(cfg.FollowUpHours...),
		Links:         links,
		Students:      cfg.StudentsCollection,
		Patients:      cfg.PatientsCollection,
		CallTimeout:   cfg.CallTimeout(),
		MaxReplyDelay: hi,
	})
	oracle := membership.NewOracle(be.rows, cfg.StudentsCollection, cfg.PatientsCollection)

	deps := intake.Deps{
		Machine:   flow.NewMachine(links),
		Sessions:  session.NewStore(session.DefaultShards),
		Oracle:    oracle,
		FollowUps: followUps,
		Rows:      be.rows,
		Sender:    sender,
	}
	if ai := openAI(cfg); ai != nil {
		deps.AI = ai
	}
	engine, err := intake.NewEngine(deps, intake.Config{
		Students:      cfg.StudentsCollection,
		Patients:      cfg.PatientsCollection,
		CallTimeout:   cfg.CallTimeout(),
		MaxReplyDelay: hi,
	})
	if err != nil {
		return err
	}

	if err := tr.svc.Start(ctx); err != nil {
		return fmt.Errorf("start %s service: %w", tr.svc.Name(), err)
	}
	handler := messaging.NewResponseHandler(tr.svc, engine, serializer)
	if be.dedup != nil {
		handler = handler.WithDedup(be.dedup)
	}
	handler.Start(ctx)

	server := api.NewServer(api.Config{
		Status: func() models.ServiceStatus {
			return models.ServiceStatus{
				Transport:        tr.svc.Name(),
				LiveSessions:     engine.Sessions().Len(),
				PendingFollowUps: followUps.Pending(),
				KnownMembers:     oracle.CacheSize(),
				NextFollowUpAt:   nextFollowUpAt(timer),
			}
		},
		Inbound:    tr.inbound,
		Validator:  tr.validator,
		WebhookURL: cfg.Twilio.WebhookURL,
	})
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start(cfg.APIAddr) }()
	slog.Info("IntakePipe running", "api_addr", cfg.APIAddr, "ai_fallback", deps.AI != nil, "dedup", be.dedup != nil)

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("Shutdown requested")
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("api server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("run: api shutdown failed", "error", err)
	}
	// Stopping the service closes the inbound channel, which ends the pump.
	if err := tr.svc.Stop(); err != nil && !errors.Is(err, messaging.ErrServiceStopped) {
		slog.Warn("run: stopping transport failed", "error", err)
	}
	handler.Wait()
	serializer.Close()
	slog.Info("IntakePipe stopped", "live_sessions_dropped", engine.Sessions().Len(), "pending_follow_ups_dropped", followUps.Pending())
	return runErr
}

func openTransport(ctx context.Context, cfg *config.Config) (*transport, error) {
	switch cfg.Transport {
	case config.TransportTwilio:
		client, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(cfg.Twilio.AccountSID),
			twiliowhatsapp.WithAuthToken(cfg.Twilio.AuthToken),
			twiliowhatsapp.WithFromWhats(cfg.Twilio.FromNumber),
		)
		if err != nil {
			return nil, err
		}
		svc := messaging.NewTwilioService(client)
		return &transport{svc: svc, inbound: svc, validator: client, close: func() {}}, nil

	default:
		opts := []whatsapp.Option{whatsapp.WithDBDSN(cfg.WhatsApp.DBDSN)}
		if cfg.WhatsApp.QRPath != "" {
			opts = append(opts, whatsapp.WithQRCodeOutput(cfg.WhatsApp.QRPath))
		}
		if cfg.WhatsApp.NumericCode {
			opts = append(opts, whatsapp.WithNumericCode())
		}
		if cfg.WhatsApp.UsePairingCode {
			opts = append(opts, whatsapp.WithPairingPhone(cfg.WhatsApp.PairingPhone))
		}
		client, err := whatsapp.NewClient(ctx, opts...)
		if err != nil {
			return nil, err
		}
		return &transport{svc: messaging.NewWhatsAppService(client), close: client.Disconnect}, nil
	}
}

// openAI returns nil when no API key is configured; the engine then answers
// returning members with the canned reply.
func openAI(cfg *config.Config) *genai.Client {
	if cfg.Mistral.APIKey == "" {
		slog.Warn("openAI: MISTRAL_API_KEY not set, AI fallback disabled")
		return nil
	}
	opts := []genai.Option{
		genai.WithAPIKey(cfg.Mistral.APIKey),
		genai.WithBaseURL(cfg.Mistral.BaseURL),
		genai.WithModel(cfg.Mistral.Model),
		genai.WithTimeout(cfg.CallTimeout()),
	}
	if cfg.Mistral.Debug {
		opts = append(opts, genai.WithDebug(cfg.StateDir))
	}
	client, err := genai.NewClient(opts...)
	if err != nil {
		slog.Warn("openAI: client unavailable, AI fallback disabled", "error", err)
		return nil
	}
	return client
}

// nextFollowUpAt formats the soonest pending timer, or "" when none is armed.
func nextFollowUpAt(timer *scheduler.SimpleTimer) string {
	active := timer.ListActive()
	if len(active) == 0 {
		return ""
	}
	return active[0].ExpiresAt.UTC().Format(time.RFC3339)
}
