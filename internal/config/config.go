package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Log sink backends.
const (
	SinkNone = "none"
	SinkFile = "file"
	SinkBlob = "blob"
	SinkSQL  = "sql"
)

// Config captures every setting the errordecode service reads.
// A loaded Config is treated as immutable; Holder swaps whole snapshots.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Tracing       TracingConfig       `yaml:"tracing"`
	Inference     InferenceConfig     `yaml:"inference"`
	Teams         TeamsConfig         `yaml:"teams"`
	Email         EmailConfig         `yaml:"email"`
	Notifications NotificationsConfig `yaml:"notifications"`
	LogSink       LogSinkConfig       `yaml:"logSink"`
	Redaction     RedactionConfig     `yaml:"redaction"`
}

// ServerConfig controls the HTTP, gRPC and metrics listeners.
type ServerConfig struct {
	HTTPAddress     string        `yaml:"httpAddress" env:"ERRORDECODE_HTTP_ADDRESS"`
	GRPCAddress     string        `yaml:"grpcAddress" env:"ERRORDECODE_GRPC_ADDRESS"`
	MetricsAddress  string        `yaml:"metricsAddress" env:"ERRORDECODE_METRICS_ADDRESS"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout" env:"ERRORDECODE_GRACEFUL_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"requestTimeout" env:"ERRORDECODE_REQUEST_TIMEOUT"`
	APIKey          string        `yaml:"apiKey" env:"API_KEY"`
	RateLimit       float64       `yaml:"rateLimit" env:"ERRORDECODE_RATE_LIMIT"`
	RateBurst       int           `yaml:"rateBurst" env:"ERRORDECODE_RATE_BURST"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"ERRORDECODE_LOG_LEVEL"`
	JSON       bool   `yaml:"json" env:"ERRORDECODE_LOG_JSON"`
	Output     string `yaml:"output" env:"ERRORDECODE_LOG_OUTPUT"`
	FilePath   string `yaml:"filePath" env:"ERRORDECODE_LOG_FILE"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// TracingConfig controls the OTLP trace exporter.
type TracingConfig struct {
	Enabled      bool          `yaml:"enabled" env:"ERRORDECODE_TRACING_ENABLED"`
	Endpoint     string        `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string        `yaml:"serviceName" env:"OTEL_SERVICE_NAME"`
	Environment  string        `yaml:"environment" env:"ERRORDECODE_ENVIRONMENT"`
	Insecure     bool          `yaml:"insecure" env:"ERRORDECODE_TRACING_INSECURE"`
	SamplingRate float64       `yaml:"samplingRate" env:"ERRORDECODE_TRACING_SAMPLING_RATE"`
	Timeout      time.Duration `yaml:"timeout"`
}

// InferenceConfig configures the chat-completions deployment used for diagnosis.
type InferenceConfig struct {
	Endpoint          string        `yaml:"endpoint" env:"AZURE_OPENAI_ENDPOINT"`
	Deployment        string        `yaml:"deployment" env:"AZURE_OPENAI_DEPLOYMENT"`
	APIVersion        string        `yaml:"apiVersion" env:"AZURE_OPENAI_API_VERSION"`
	APIKey            string        `yaml:"apiKey" env:"AZURE_OPENAI_API_KEY"`
	Timeout           time.Duration `yaml:"timeout" env:"AZURE_OPENAI_TIMEOUT"`
	PingTimeout       time.Duration `yaml:"pingTimeout"`
	ProbeSchedule     string        `yaml:"probeSchedule" env:"AZURE_OPENAI_PROBE_SCHEDULE"`
	MaxTokens         int           `yaml:"maxTokens"`
	Temperature       float64       `yaml:"temperature"`
	DefaultConfidence float64       `yaml:"defaultConfidence" env:"DEFAULT_CONFIDENCE"`
}

// Configured reports whether both the credential and endpoint are present.
func (c InferenceConfig) Configured() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.Endpoint) != ""
}

// TeamsConfig configures the chat webhook channel.
type TeamsConfig struct {
	WebhookURL string        `yaml:"webhookURL" env:"TEAMS_WEBHOOK_URL"`
	Timeout    time.Duration `yaml:"timeout"`
}

// EmailConfig configures the mail channel and its client-credential identity.
type EmailConfig struct {
	Recipients    []string      `yaml:"recipients"`
	RecipientList string        `yaml:"-" env:"ALERT_EMAILS"`
	Sender        string        `yaml:"sender" env:"SENDER_EMAIL"`
	TenantID      string        `yaml:"tenantID" env:"AZURE_TENANT_ID"`
	ClientID      string        `yaml:"clientID" env:"AZURE_CLIENT_ID"`
	ClientSecret  string        `yaml:"clientSecret" env:"AZURE_CLIENT_SECRET"`
	AuthorityHost string        `yaml:"authorityHost" env:"AZURE_AUTHORITY_HOST"`
	GraphBaseURL  string        `yaml:"graphBaseURL" env:"GRAPH_BASE_URL"`
	Scope         string        `yaml:"scope"`
	Timeout       time.Duration `yaml:"timeout"`
}

// Configured reports whether recipients and identity credentials are all present.
func (c EmailConfig) Configured() bool {
	return len(c.Recipients) > 0 && c.TenantID != "" && c.ClientID != "" && c.ClientSecret != ""
}

// SenderAddress returns the configured sender, falling back to the first recipient.
func (c EmailConfig) SenderAddress() string {
	if c.Sender != "" {
		return c.Sender
	}
	if len(c.Recipients) > 0 {
		return c.Recipients[0]
	}
	return ""
}

// NotificationsConfig holds the global channel switches.
type NotificationsConfig struct {
	Disabled       bool `yaml:"disabled" env:"DISABLE_NOTIFICATIONS"`
	RedactRawError bool `yaml:"redactRawError" env:"REDACT_RAW_ERROR"`
}

// LogSinkConfig selects and configures the durable analysis log.
type LogSinkConfig struct {
	Backend    string         `yaml:"backend" env:"LOG_SINK_BACKEND"`
	EnableFile bool           `yaml:"enableFile" env:"ENABLE_CSV_LOGGING"`
	FilePath   string         `yaml:"filePath" env:"CSV_LOG_PATH"`
	EnableBlob bool           `yaml:"enableBlob" env:"ENABLE_ADLS_LOGGING"`
	Blob       BlobSinkConfig `yaml:"blob"`
	SQL        SQLSinkConfig  `yaml:"sql"`
	Timeout    time.Duration  `yaml:"timeout"`
}

// BlobSinkConfig locates the CSV object in blob storage.
type BlobSinkConfig struct {
	AccountURL string `yaml:"accountURL" env:"ADLS_ACCOUNT_URL"`
	Container  string `yaml:"container" env:"ADLS_CONTAINER_NAME"`
	Credential string `yaml:"credential" env:"ADLS_CREDENTIAL"`
	BlobName   string `yaml:"blobName" env:"ADLS_BLOB_NAME"`
}

// SQLSinkConfig configures the relational analysis log.
type SQLSinkConfig struct {
	Driver string `yaml:"driver" env:"LOG_SINK_SQL_DRIVER"`
	DSN    string `yaml:"dsn" env:"LOG_SINK_SQL_DSN"`
	Table  string `yaml:"table" env:"LOG_SINK_SQL_TABLE"`
}

// ActiveBackend resolves the sink to use. An explicit backend wins; otherwise
// the legacy flags apply with blob taking priority over file.
func (c LogSinkConfig) ActiveBackend() string {
	switch b := strings.ToLower(strings.TrimSpace(c.Backend)); b {
	case SinkNone, SinkFile, SinkBlob, SinkSQL:
		return b
	}
	switch {
	case c.EnableBlob:
		return SinkBlob
	case c.EnableFile:
		return SinkFile
	default:
		return SinkNone
	}
}

// ResolvedFilePath returns the CSV path, defaulting to analysis_log.csv in the working directory.
func (c LogSinkConfig) ResolvedFilePath() string {
	if c.FilePath != "" {
		return c.FilePath
	}
	wd, err := os.Getwd()
	if err != nil {
		return "analysis_log.csv"
	}
	return filepath.Join(wd, "analysis_log.csv")
}

// RedactionConfig points at an optional operator rule pack.
type RedactionConfig struct {
	RulesPath string `yaml:"rulesPath" env:"ERRORDECODE_REDACTION_RULES"`
}

// Load initialises Config from defaults, an optional YAML file, an optional
// dotenv file and finally the process environment.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("ERRORDECODE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that cannot work at runtime.
func (c *Config) Validate() error {
	if b := strings.TrimSpace(c.LogSink.Backend); b != "" {
		switch strings.ToLower(b) {
		case SinkNone, SinkFile, SinkBlob, SinkSQL:
		default:
			return fmt.Errorf("logSink.backend %q is not one of none|file|blob|sql", b)
		}
	}
	if c.LogSink.ActiveBackend() == SinkSQL {
		switch c.LogSink.SQL.Driver {
		case "sqlite", "sqlserver":
		default:
			return fmt.Errorf("logSink.sql.driver %q is not one of sqlite|sqlserver", c.LogSink.SQL.Driver)
		}
	}
	if c.Inference.DefaultConfidence <= 0 || c.Inference.DefaultConfidence > 1 {
		return fmt.Errorf("inference.defaultConfidence %v outside (0,1]", c.Inference.DefaultConfidence)
	}
	return nil
}

// SplitRecipients splits a comma or semicolon separated address list.
func SplitRecipients(v string) []string {
	fields := strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			HTTPAddress:     ":8080",
			GRPCAddress:     ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
			RequestTimeout:  60 * time.Second,
			RateLimit:       10,
			RateBurst:       20,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     "stdout",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
		Tracing: TracingConfig{
			ServiceName:  "errordecode",
			Environment:  "prod",
			SamplingRate: 1,
			Timeout:      5 * time.Second,
		},
		Inference: InferenceConfig{
			APIVersion:        "2024-02-15-preview",
			Timeout:           20 * time.Second,
			PingTimeout:       8 * time.Second,
			MaxTokens:         400,
			Temperature:       0.2,
			DefaultConfidence: 0.6,
		},
		Teams: TeamsConfig{Timeout: 10 * time.Second},
		Email: EmailConfig{
			AuthorityHost: "https://login.microsoftonline.com",
			GraphBaseURL:  "https://graph.microsoft.com",
			Scope:         "https://graph.microsoft.com/.default",
			Timeout:       15 * time.Second,
		},
		LogSink: LogSinkConfig{
			Blob:    BlobSinkConfig{BlobName: "analysis_log.csv"},
			SQL:     SQLSinkConfig{Table: "analysis_log"},
			Timeout: 10 * time.Second,
		},
		Redaction: RedactionConfig{RulesPath: "configs/redaction/default.yaml"},
	}
}

// applyEnvOverrides exports an optional dotenv file into the environment and
// then overlays every `env` tagged field that is set.
func applyEnvOverrides(cfg *Config) error {
	dotenv := os.Getenv("ERRORDECODE_DOTENV")
	if dotenv == "" {
		dotenv = ".env"
	}

	var err error
	if info, statErr := os.Stat(dotenv); statErr == nil && !info.IsDir() {
		err = cleanenv.ReadConfig(dotenv, cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	if cfg.Email.RecipientList != "" {
		cfg.Email.Recipients = SplitRecipients(cfg.Email.RecipientList)
	}
	if v := os.Getenv("ERRORDECODE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	return nil
}
