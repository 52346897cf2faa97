package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) *jsonFile {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return openJSONFile(path)
}

// clearEnv blanks every env var the loader consults so the host environment
// does not leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
		for _, name := range s.legacy {
			t.Setenv(name, "")
		}
	}
}

// TestDefaults verifies all default values are applied when loading an empty config file.
func TestDefaults(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{}`)

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Ollama.BaseURL != "http://localhost:11434" {
		t.Errorf("Ollama.BaseURL = %q, want %q", cfg.Ollama.BaseURL, "http://localhost:11434")
	}
	if cfg.Ollama.Model != "openhermes" {
		t.Errorf("Ollama.Model = %q, want %q", cfg.Ollama.Model, "openhermes")
	}
	if cfg.CallService.PayloadFormat != PayloadCamel {
		t.Errorf("CallService.PayloadFormat = %q, want %q", cfg.CallService.PayloadFormat, PayloadCamel)
	}
	if cfg.Summary.ForwardURL != "https://httpbin.org/post" {
		t.Errorf("Summary.ForwardURL = %q", cfg.Summary.ForwardURL)
	}
	if cfg.Storage.Backend != BackendSQLite {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, BackendSQLite)
	}
	if cfg.Prompt.DefaultPath != "prompt.txt" {
		t.Errorf("Prompt.DefaultPath = %q", cfg.Prompt.DefaultPath)
	}
	if cfg.Heartbeat() != 30*time.Second {
		t.Errorf("Heartbeat() = %v, want 30s", cfg.Heartbeat())
	}
	if cfg.Addr() != "127.0.0.1:3000" {
		t.Errorf("Addr() = %q", cfg.Addr())
	}
	if cfg.CallService.RatePerMinute != 0 {
		t.Errorf("CallService.RatePerMinute = %d, want 0 (no limit)", cfg.CallService.RatePerMinute)
	}
	if cfg.Server.TrustProxy {
		t.Error("Server.TrustProxy should default to false")
	}
}

// TestFileValues verifies that all fields are correctly read from the JSON config file.
func TestFileValues(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{
  "server.port": 5000,
  "ollama.base_url": "http://custom:11434",
  "ollama.model": "llama3",
  "call_service.base_url": "http://calls.local",
  "call_service.payload_format": "snake",
  "storage.data_dir": "/tmp/optilead-test",
  "events.heartbeat_interval": "5s"
}`)

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Ollama.BaseURL != "http://custom:11434" {
		t.Errorf("Ollama.BaseURL = %q", cfg.Ollama.BaseURL)
	}
	if cfg.Ollama.Model != "llama3" {
		t.Errorf("Ollama.Model = %q", cfg.Ollama.Model)
	}
	if cfg.CallService.BaseURL != "http://calls.local" {
		t.Errorf("CallService.BaseURL = %q", cfg.CallService.BaseURL)
	}
	if cfg.CallService.PayloadFormat != PayloadSnake {
		t.Errorf("CallService.PayloadFormat = %q", cfg.CallService.PayloadFormat)
	}
	if cfg.Storage.DataDir != "/tmp/optilead-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Heartbeat() != 5*time.Second {
		t.Errorf("Heartbeat() = %v, want 5s", cfg.Heartbeat())
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{"ollama.model": "file-model"}`)

	t.Setenv("OPTILEAD_OLLAMA_MODEL", "env-model")
	t.Setenv("OPTILEAD_SERVER_PORT", "8080")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Ollama.Model != "env-model" {
		t.Errorf("Ollama.Model = %q, want %q", cfg.Ollama.Model, "env-model")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
}

func TestLegacyEnvNames(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{}`)

	t.Setenv("NEXT_PUBLIC_CALL_SERVICE_URL", "https://legacy.example")
	t.Setenv("CALL_SERVICE_API_KEY", "legacy-key")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CallService.BaseURL != "https://legacy.example" {
		t.Errorf("CallService.BaseURL = %q", cfg.CallService.BaseURL)
	}
	if cfg.CallService.APIKey != "legacy-key" {
		t.Errorf("CallService.APIKey = %q", cfg.CallService.APIKey)
	}

	// The canonical name wins when both are set.
	t.Setenv("OPTILEAD_CALL_SERVICE_API_KEY", "new-key")
	cfg, err = loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CallService.APIKey != "new-key" {
		t.Errorf("CallService.APIKey = %q, want new-key", cfg.CallService.APIKey)
	}
}

// TestSecretsIgnoredInFile verifies secrets are only read from the environment.
func TestSecretsIgnoredInFile(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{"call_service.api_key": "from-file"}`)

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CallService.APIKey != "" {
		t.Errorf("CallService.APIKey = %q, want empty", cfg.CallService.APIKey)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "bad payload format",
			file:    `{"call_service.payload_format": "xml"}`,
			wantErr: "payload_format",
		},
		{
			name:    "unknown backend",
			file:    `{"storage.backend": "firestore"}`,
			wantErr: "storage.backend",
		},
		{
			name:    "mongo without uri",
			file:    `{"storage.backend": "mongo"}`,
			wantErr: "missing required config",
		},
		{
			name:    "bad heartbeat",
			file:    `{"events.heartbeat_interval": "often"}`,
			wantErr: "heartbeat_interval",
		},
		{
			name: "mongo with uri",
			file: `{"storage.backend": "mongo"}`,
			env:  map[string]string{"OPTILEAD_MONGO_URI": "mongodb://localhost:27017/optilead"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := loadWith(writeTempConfig(t, tt.file))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestSetKeyPersists(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{}`)

	if err := setKeyIn(b, "server.port", "4100"); err != nil {
		t.Fatalf("setKeyIn: %v", err)
	}
	if err := setKeyIn(b, "ollama.model", "mistral"); err != nil {
		t.Fatalf("setKeyIn: %v", err)
	}

	reloaded := openJSONFile(b.path)
	cfg, err := loadWith(reloaded)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Ollama.Model != "mistral" {
		t.Errorf("Ollama.Model = %q, want mistral", cfg.Ollama.Model)
	}
}

func TestSetKeyRejects(t *testing.T) {
	b := writeTempConfig(t, `{}`)

	if err := setKeyIn(b, "call_service.api_key", "x"); err == nil {
		t.Error("expected error setting a secret")
	}
	if err := setKeyIn(b, "server.port", "abc"); err == nil {
		t.Error("expected error for non-integer port")
	}
	if err := setKeyIn(b, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.CallService.APIKey = "secret"
	cfg.Auth.JWTSecret = "jwt"

	for _, k := range ShowAll(cfg) {
		if k.Value == "secret" || k.Value == "jwt" {
			t.Errorf("ShowAll exposed secret key %s", k.Key)
		}
	}
	for _, k := range ValidKeys() {
		if k == "call_service.api_key" || k == "storage.mongo_uri" || k == "auth.jwt_secret" {
			t.Errorf("ValidKeys contains secret %s", k)
		}
	}
}

func TestTrustProxy(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(writeTempConfig(t, `{"server.trust_proxy": true}`))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if !cfg.Server.TrustProxy {
		t.Error("file value true not applied")
	}

	t.Setenv("OPTILEAD_SERVER_TRUST_PROXY", "false")
	cfg, err = loadWith(writeTempConfig(t, `{"server.trust_proxy": true}`))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.TrustProxy {
		t.Error("env false should override file true")
	}

	t.Setenv("OPTILEAD_SERVER_TRUST_PROXY", "maybe")
	cfg, err = loadWith(writeTempConfig(t, `{}`))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.TrustProxy {
		t.Error("unparseable env value should leave the default")
	}
}

func TestSetKeyBool(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{}`)

	if err := setKeyIn(b, "server.trust_proxy", "yes"); err == nil {
		t.Error("expected error for non-boolean value")
	}
	if err := setKeyIn(b, "server.trust_proxy", "true"); err != nil {
		t.Fatalf("setKeyIn: %v", err)
	}
	cfg, err := loadWith(openJSONFile(b.path))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if !cfg.Server.TrustProxy {
		t.Error("trust_proxy not persisted")
	}
}

func TestFileTypeMismatch(t *testing.T) {
	clearEnv(t)
	if _, err := loadWith(writeTempConfig(t, `{"server.port": 80.5}`)); err == nil {
		t.Error("expected error for fractional port")
	}
	if _, err := loadWith(writeTempConfig(t, `{"server.trust_proxy": "sometimes"}`)); err == nil {
		t.Error("expected error for non-boolean trust_proxy")
	}
}
