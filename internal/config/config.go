package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server      ServerConfig
	Ollama      OllamaConfig
	CallService CallServiceConfig
	Summary     SummaryConfig
	Storage     StorageConfig
	Prompt      PromptConfig
	Events      EventsConfig
	Auth        AuthConfig
	Log         LogConfig
}

type ServerConfig struct {
	Host     string
	Port     int
	MaxConns int
	// TrustProxy makes the server take client addresses from
	// X-Forwarded-For / X-Real-IP. Enable only behind a reverse proxy.
	TrustProxy bool
}

type OllamaConfig struct {
	BaseURL      string
	Model        string
	ScoringModel string
}

type CallServiceConfig struct {
	BaseURL       string
	APIKey        string
	PayloadFormat string
	RatePerMinute int
}

type SummaryConfig struct {
	ForwardURL string
}

type StorageConfig struct {
	Backend       string
	DataDir       string
	MongoURI      string
	MongoDatabase string
}

type PromptConfig struct {
	DefaultPath string
}

type EventsConfig struct {
	HeartbeatInterval string
}

type AuthConfig struct {
	JWTSecret string
}

type LogConfig struct {
	Level  string
	Format string
}

const (
	PayloadCamel = "camel"
	PayloadSnake = "snake"

	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:     "127.0.0.1",
			Port:     3000,
			MaxConns: 256,
		},
		Ollama: OllamaConfig{
			BaseURL:      "http://localhost:11434",
			Model:        "openhermes",
			ScoringModel: "openhermes",
		},
		CallService: CallServiceConfig{
			BaseURL:       "https://twilio-elevenlabs-bridge-295347007268.us-central1.run.app",
			PayloadFormat: PayloadCamel,
		},
		Summary: SummaryConfig{
			ForwardURL: "https://httpbin.org/post",
		},
		Storage: StorageConfig{
			Backend:       BackendSQLite,
			DataDir:       defaultDataDir(),
			MongoDatabase: "optilead",
		},
		Prompt: PromptConfig{
			DefaultPath: "prompt.txt",
		},
		Events: EventsConfig{
			HeartbeatInterval: "30s",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a .env file in the working directory (if
// any), the JSON config file at $XDG_CONFIG_HOME/optilead/config.json and
// environment variables. Environment variables (OPTILEAD_*) override file
// values; variables already set in the process environment win over .env.
func Load() (Config, error) {
	loadDotEnv(".env")
	return loadWith(openJSONFile(configFilePath()))
}

func loadWith(src Source) (Config, error) {
	cfg := defaults()

	if err := applySource(&cfg, src); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.CallService.PayloadFormat {
	case PayloadCamel, PayloadSnake:
	default:
		return fmt.Errorf("invalid call_service.payload_format %q: want %q or %q", c.CallService.PayloadFormat, PayloadCamel, PayloadSnake)
	}

	switch c.Storage.Backend {
	case BackendSQLite:
	case BackendMongo:
		if c.Storage.MongoURI == "" {
			return fmt.Errorf("missing required config: storage.backend is %q but no MongoDB URI is set. "+
				"Set it via environment variable OPTILEAD_MONGO_URI", BackendMongo)
		}
	default:
		return fmt.Errorf("invalid storage.backend %q: want %q or %q", c.Storage.Backend, BackendSQLite, BackendMongo)
	}

	if _, err := time.ParseDuration(c.Events.HeartbeatInterval); err != nil {
		return fmt.Errorf("invalid events.heartbeat_interval %q: %w", c.Events.HeartbeatInterval, err)
	}
	return nil
}

// Heartbeat returns the parsed SSE heartbeat interval.
func (c Config) Heartbeat() time.Duration {
	d, err := time.ParseDuration(c.Events.HeartbeatInterval)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Addr is the host:port the HTTP server listens on.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
