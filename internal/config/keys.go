package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	legacy  []string // older env names still honoured
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "OPTILEAD_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "OPTILEAD_SERVER_PORT", legacy: []string{"PORT"},
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.max_conns", typ: kInt, env: "OPTILEAD_SERVER_MAX_CONNS",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxConns = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxConns },
	},
	{
		key: "server.trust_proxy", typ: kBool, env: "OPTILEAD_SERVER_TRUST_PROXY",
		apply:   func(cfg *Config, v any) { cfg.Server.TrustProxy = v.(bool) },
		extract: func(cfg Config) any { return cfg.Server.TrustProxy },
	},
	{
		key: "ollama.base_url", typ: kString, env: "OPTILEAD_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "OPTILEAD_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "ollama.scoring_model", typ: kString, env: "OPTILEAD_OLLAMA_SCORING_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.ScoringModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.ScoringModel },
	},
	{
		key: "call_service.base_url", typ: kString, env: "OPTILEAD_CALL_SERVICE_URL",
		legacy:  []string{"NEXT_PUBLIC_CALL_SERVICE_URL"},
		apply:   func(cfg *Config, v any) { cfg.CallService.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.CallService.BaseURL },
	},
	{
		key: "call_service.api_key", typ: kString, env: "OPTILEAD_CALL_SERVICE_API_KEY",
		legacy:  []string{"CALL_SERVICE_API_KEY", "NEXT_PUBLIC_CALL_SERVICE_API_KEY"},
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.CallService.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.CallService.APIKey },
	},
	{
		key: "call_service.payload_format", typ: kString, env: "OPTILEAD_CALL_SERVICE_PAYLOAD_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.CallService.PayloadFormat = v.(string) },
		extract: func(cfg Config) any { return cfg.CallService.PayloadFormat },
	},
	{
		key: "call_service.rate_per_minute", typ: kInt, env: "OPTILEAD_CALL_SERVICE_RATE_PER_MINUTE",
		apply:   func(cfg *Config, v any) { cfg.CallService.RatePerMinute = v.(int) },
		extract: func(cfg Config) any { return cfg.CallService.RatePerMinute },
	},
	{
		key: "summary.forward_url", typ: kString, env: "OPTILEAD_SUMMARY_FORWARD_URL",
		apply:   func(cfg *Config, v any) { cfg.Summary.ForwardURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Summary.ForwardURL },
	},
	{
		key: "storage.backend", typ: kString, env: "OPTILEAD_STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "storage.data_dir", typ: kString, env: "OPTILEAD_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.mongo_uri", typ: kString, env: "OPTILEAD_MONGO_URI",
		legacy:  []string{"MONGODB_URI"},
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Storage.MongoURI = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.MongoURI },
	},
	{
		key: "storage.mongo_database", typ: kString, env: "OPTILEAD_MONGO_DATABASE",
		apply:   func(cfg *Config, v any) { cfg.Storage.MongoDatabase = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.MongoDatabase },
	},
	{
		key: "prompt.default_path", typ: kString, env: "OPTILEAD_DEFAULT_PROMPT_PATH",
		apply:   func(cfg *Config, v any) { cfg.Prompt.DefaultPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Prompt.DefaultPath },
	},
	{
		key: "events.heartbeat_interval", typ: kString, env: "OPTILEAD_EVENTS_HEARTBEAT_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Events.HeartbeatInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Events.HeartbeatInterval },
	},
	{
		key: "auth.jwt_secret", typ: kString, env: "OPTILEAD_JWT_SECRET",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Auth.JWTSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.JWTSecret },
	},
	{
		key: "log.level", typ: kString, env: "OPTILEAD_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "OPTILEAD_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
}

// coerce converts a file, env or CLI value to the key's Go type.
func (s keySpec) coerce(v any) (any, error) {
	switch s.typ {
	case kInt:
		switch n := v.(type) {
		case int:
			return n, nil
		case float64:
			if n != math.Trunc(n) || n < math.MinInt || n > math.MaxInt {
				return nil, fmt.Errorf("%s: %v is not an integer", s.key, n)
			}
			return int(n), nil
		case string:
			i, err := strconv.Atoi(strings.TrimSpace(n))
			if err != nil {
				return nil, fmt.Errorf("%s: invalid integer %q", s.key, n)
			}
			return i, nil
		}
	case kBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return nil, fmt.Errorf("%s: invalid boolean %q", s.key, b)
			}
			return parsed, nil
		}
	default:
		if str, ok := v.(string); ok {
			return str, nil
		}
		return fmt.Sprint(v), nil
	}
	return nil, fmt.Errorf("%s: unsupported value %v (%T)", s.key, v, v)
}

// applySource copies persisted values onto cfg. Secrets are only read from
// the environment.
func applySource(cfg *Config, src Source) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		raw, ok := src.Lookup(s.key)
		if !ok {
			continue
		}
		v, err := s.coerce(raw)
		if err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
		s.apply(cfg, v)
	}
	return nil
}

// lookupEnv returns the first non-empty value among the canonical env var
// and its legacy names.
func (s keySpec) lookupEnv() (string, string) {
	if v := os.Getenv(s.env); v != "" {
		return s.env, v
	}
	for _, name := range s.legacy {
		if v := os.Getenv(name); v != "" {
			return name, v
		}
	}
	return "", ""
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		name, raw := s.lookupEnv()
		if raw == "" {
			continue
		}
		v, err := s.coerce(raw)
		if err != nil {
			warnf("ignoring %s: %v", name, err)
			continue
		}
		s.apply(cfg, v)
	}
}
