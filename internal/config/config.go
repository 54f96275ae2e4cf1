// Package config loads IntakePipe configuration once at startup.
//
// Sources, lowest precedence first: built-in defaults, an optional YAML file,
// a .env file in the working directory, then the process environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/IntakePipe/internal/flow"
	"github.com/BTreeMap/IntakePipe/internal/util"
)

// ErrInvalidConfig wraps every validation failure returned by Load.
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	// DefaultStateDir is the default directory for IntakePipe state data
	DefaultStateDir = "/var/lib/intakepipe"
	// DefaultWhatsAppDBFileName is the whatsmeow device store inside the state dir.
	DefaultWhatsAppDBFileName = "whatsmeow.db"

	TransportWhatsApp = "whatsapp"
	TransportTwilio   = "twilio"
)

// Mistral configures the AI fallback.
type Mistral struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	Debug   bool   `yaml:"debug"`
}

// Sheets configures the Google Sheets row store.
type Sheets struct {
	SheetID         string `yaml:"sheet_id"`
	CredentialsJSON string `yaml:"credentials_json"`
	CredentialsPath string `yaml:"credentials_path"`
}

// WhatsApp configures the whatsmeow transport.
type WhatsApp struct {
	DBDSN          string `yaml:"db_dsn"`
	QRPath         string `yaml:"qr_path"`
	NumericCode    bool   `yaml:"numeric_code"`
	UsePairingCode bool   `yaml:"use_pairing_code"`
	PairingPhone   string `yaml:"pairing_phone"`
}

// Twilio configures the Twilio transport.
type Twilio struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromNumber string `yaml:"from_number"`
	WebhookURL string `yaml:"webhook_url"`
}

// Config is the full process configuration.
type Config struct {
	StateDir           string     `yaml:"state_dir"`
	Transport          string     `yaml:"transport"`
	LogLevel           string     `yaml:"log_level"`
	APIAddr            string     `yaml:"api_addr"`
	CallTimeoutSeconds float64    `yaml:"call_timeout_seconds"`
	FollowUpHours      []float64  `yaml:"followup_hours"`
	ReplyDelayMin      float64    `yaml:"reply_delay_min_seconds"`
	ReplyDelayMax      float64    `yaml:"reply_delay_max_seconds"`
	StudentsCollection string     `yaml:"students_sheet_name"`
	PatientsCollection string     `yaml:"patients_sheet_name"`
	DatabaseURL        string     `yaml:"database_url"`
	Links              flow.Links `yaml:"links"`
	Mistral            Mistral    `yaml:"mistral"`
	Sheets             Sheets     `yaml:"sheets"`
	WhatsApp           WhatsApp   `yaml:"whatsapp"`
	Twilio             Twilio     `yaml:"twilio"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		StateDir:           DefaultStateDir,
		Transport:          TransportWhatsApp,
		LogLevel:           "info",
		APIAddr:            ":8080",
		CallTimeoutSeconds: 30,
		FollowUpHours:      []float64{24, 48, 72},
		ReplyDelayMin:      0,
		ReplyDelayMax:      60,
		StudentsCollection: "Sheet3",
		PatientsCollection: "Sheet4",
		Mistral: Mistral{
			Model:   "mistral-small-latest",
			BaseURL: "https://api.mistral.ai/v1",
		},
	}
}

// Load builds the configuration. path may be empty; a named file that does
// not exist is an error. A missing .env file is not.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("config.Load: no .env file loaded", "error", err)
	} else {
		slog.Debug("config.Load: loaded .env file")
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
		}
		slog.Debug("config.Load: loaded config file", "path", path)
	}

	cfg.applyEnv()
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	slog.Debug("config.Load: configuration ready",
		"transport", cfg.Transport,
		"state_dir", cfg.StateDir,
		"database_url_set", cfg.DatabaseURL != "",
		"sheet_id_set", cfg.Sheets.SheetID != "",
		"mistral_key_set", cfg.Mistral.APIKey != "",
		"followup_hours", cfg.FollowUpHours)
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.StateDir = util.StringEnv("INTAKEPIPE_STATE_DIR", c.StateDir)
	c.Transport = strings.ToLower(util.StringEnv("TRANSPORT", c.Transport))
	c.LogLevel = util.StringEnv("LOG_LEVEL", c.LogLevel)
	c.APIAddr = util.StringEnv("API_ADDR", c.APIAddr)
	c.CallTimeoutSeconds = util.ParseFloatEnv("CALL_TIMEOUT_SECONDS", c.CallTimeoutSeconds)

	hours := make([]float64, 3)
	for i := range hours {
		def := 0.0
		if i < len(c.FollowUpHours) {
			def = c.FollowUpHours[i]
		}
		hours[i] = util.ParseFloatEnv(fmt.Sprintf("FOLLOWUP_HOURS_%d", i+1), def)
	}
	c.FollowUpHours = hours

	c.ReplyDelayMin = util.ParseFloatEnv("REPLY_DELAY_MIN_SECONDS", c.ReplyDelayMin)
	c.ReplyDelayMax = util.ParseFloatEnv("REPLY_DELAY_MAX_SECONDS", c.ReplyDelayMax)
	c.StudentsCollection = util.StringEnv("STUDENTS_SHEET_NAME", c.StudentsCollection)
	c.PatientsCollection = util.StringEnv("PATIENTS_SHEET_NAME", c.PatientsCollection)
	c.DatabaseURL = util.StringEnv("DATABASE_URL", c.DatabaseURL)

	c.Links.Webinar = util.StringEnv("WEBINAR_LINK", c.Links.Webinar)
	c.Links.Patient = util.StringEnv("PATIENT_LINK", c.Links.Patient)
	c.Links.DiabetesWebinar = util.StringEnv("DIABETES_WEBINAR_LINK", c.Links.DiabetesWebinar)
	c.Links.Type1 = util.StringEnv("TYPE1_LINK", c.Links.Type1)
	c.Links.Other = util.StringEnv("OTHER_LINK", c.Links.Other)

	c.Mistral.APIKey = util.StringEnv("MISTRAL_API_KEY", c.Mistral.APIKey)
	c.Mistral.Model = util.StringEnv("MISTRAL_MODEL", c.Mistral.Model)
	c.Mistral.BaseURL = util.StringEnv("MISTRAL_BASE_URL", c.Mistral.BaseURL)
	c.Mistral.Debug = util.ParseBoolEnv("GENAI_DEBUG", c.Mistral.Debug)

	c.Sheets.SheetID = util.StringEnv("GOOGLE_SHEET_ID", c.Sheets.SheetID)
	c.Sheets.CredentialsJSON = util.StringEnv("GOOGLE_SERVICE_ACCOUNT_JSON", c.Sheets.CredentialsJSON)
	c.Sheets.CredentialsPath = util.StringEnv("GOOGLE_SERVICE_ACCOUNT_JSON_PATH", c.Sheets.CredentialsPath)

	c.WhatsApp.DBDSN = util.StringEnv("WHATSAPP_DB_DSN", c.WhatsApp.DBDSN)
	c.WhatsApp.QRPath = util.StringEnv("WHATSAPP_QR_PATH", c.WhatsApp.QRPath)
	c.WhatsApp.NumericCode = util.ParseBoolEnv("WHATSAPP_NUMERIC_CODE", c.WhatsApp.NumericCode)
	c.WhatsApp.UsePairingCode = util.ParseBoolEnv("USE_PAIRING_CODE", c.WhatsApp.UsePairingCode)
	c.WhatsApp.PairingPhone = util.StringEnv("PAIRING_PHONE_NUMBER", c.WhatsApp.PairingPhone)

	c.Twilio.AccountSID = util.StringEnv("TWILIO_ACCOUNT_SID", c.Twilio.AccountSID)
	c.Twilio.AuthToken = util.StringEnv("TWILIO_AUTH_TOKEN", c.Twilio.AuthToken)
	c.Twilio.FromNumber = util.StringEnv("TWILIO_FROM_NUMBER", c.Twilio.FromNumber)
	c.Twilio.WebhookURL = util.StringEnv("TWILIO_WEBHOOK_URL", c.Twilio.WebhookURL)
}

// finalize fills derived defaults and validates.
func (c *Config) finalize() error {
	if c.StateDir == "" {
		c.StateDir = DefaultStateDir
	}
	if c.WhatsApp.DBDSN == "" {
		c.WhatsApp.DBDSN = filepath.Join(c.StateDir, DefaultWhatsAppDBFileName)
	}
	if c.StudentsCollection == "" || c.PatientsCollection == "" {
		return fmt.Errorf("%w: collection names must not be empty", ErrInvalidConfig)
	}
	if c.StudentsCollection == c.PatientsCollection {
		return fmt.Errorf("%w: students and patients collections must differ", ErrInvalidConfig)
	}
	switch c.Transport {
	case TransportWhatsApp:
	case TransportTwilio:
		if c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" || c.Twilio.FromNumber == "" {
			return fmt.Errorf("%w: twilio transport needs TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Transport)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.WhatsApp.UsePairingCode && util.DigitsOnly(c.WhatsApp.PairingPhone) == "" {
		slog.Warn("config: USE_PAIRING_CODE set without PAIRING_PHONE_NUMBER, falling back to QR login")
		c.WhatsApp.UsePairingCode = false
	}
	if c.CallTimeoutSeconds <= 0 || math.IsNaN(c.CallTimeoutSeconds) || math.IsInf(c.CallTimeoutSeconds, 0) {
		c.CallTimeoutSeconds = Default().CallTimeoutSeconds
	}
	c.Links = c.Links.WithDefaults()
	return nil
}

// CallTimeout bounds every collaborator call.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds * float64(time.Second))
}

// ParseLogLevel maps debug|info|warn|error to a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, s)
}
