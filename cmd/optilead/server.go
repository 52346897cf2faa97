package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/optilead/internal/api"
	"github.com/kalambet/optilead/internal/callservice"
	"github.com/kalambet/optilead/internal/config"
	"github.com/kalambet/optilead/internal/events"
	"github.com/kalambet/optilead/internal/leadscoring"
	"github.com/kalambet/optilead/internal/metrics"
	"github.com/kalambet/optilead/internal/ollama"
	"github.com/kalambet/optilead/internal/prompts"
	"github.com/kalambet/optilead/internal/scripts"
	"github.com/kalambet/optilead/internal/storage"
	"github.com/kalambet/optilead/internal/subscription"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the optilead server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		skipModels, _ := cmd.Flags().GetBool("skip-model-check")
		return runServer(skipModels)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running optilead server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show optilead system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve optilead tools over MCP (stdio transport)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func init() {
	serveCmd.Flags().Bool("skip-model-check", false, "do not check or pull Ollama models at startup")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "optilead.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// newLogger builds the process logger from the log config section.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openBackend opens the configured prompt and user store.
func openBackend(ctx context.Context, cfg config.Config) (storage.Backend, error) {
	if cfg.Storage.Backend == config.BackendMongo {
		m, err := storage.OpenMongo(ctx, cfg.Storage.MongoURI, cfg.Storage.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	s, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// components are the long-lived pieces shared by the HTTP and MCP surfaces.
type components struct {
	llm      *ollama.Client
	scripts  *scripts.Store
	backend  storage.Backend
	defaults *prompts.DefaultLoader
	calls    *callservice.Client
	scorer   *leadscoring.Scorer
}

func buildComponents(ctx context.Context, cfg config.Config, m *metrics.Metrics, logger *slog.Logger) (*components, error) {
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	llm := ollama.New(cfg.Ollama.BaseURL)
	return &components{
		llm:      llm,
		scripts:  scripts.NewStore(),
		backend:  backend,
		defaults: prompts.NewDefaultLoader(cfg.Prompt.DefaultPath, logger),
		calls: callservice.NewClient(
			cfg.CallService.BaseURL,
			cfg.CallService.APIKey,
			cfg.CallService.PayloadFormat,
			callservice.WithMetrics(m),
			callservice.WithLogger(logger),
		),
		scorer: leadscoring.NewScorer(llm, cfg.Ollama.ScoringModel, logger),
	}, nil
}

func runServer(skipModels bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)
	logger.Info(versionString())

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(serverURL(cfg) + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("optilead is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("optilead is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	c, err := buildComponents(ctx, cfg, m, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.backend.Close(); err != nil {
			logger.Warn("closing storage", "error", err)
		}
	}()

	if !skipModels {
		// The proxy answers 500 per request while Ollama is down, so a
		// failed check does not stop the server.
		if err := ollama.EnsureReady(ctx, c.llm, os.Stderr, cfg.Ollama.Model, cfg.Ollama.ScoringModel); err != nil {
			logger.Warn("ollama not ready", "error", err)
		}
	}

	hub := events.NewHub(m, logger)
	handler := api.NewRouter(api.Deps{
		LLM:               c.llm,
		Model:             cfg.Ollama.Model,
		Scripts:           c.scripts,
		Prompts:           c.backend,
		DefaultPrompt:     c.defaults,
		Calls:             c.calls,
		Summaries:         callservice.NewForwarder(cfg.Summary.ForwardURL, m),
		Scorer:            c.scorer,
		Hub:               hub,
		Subscriptions:     subscription.NewVerifier(c.backend, cfg.Auth.JWTSecret, logger),
		APIKey:            cfg.CallService.APIKey,
		CallRatePerMinute: cfg.CallService.RatePerMinute,
		TrustProxy:        cfg.Server.TrustProxy,
		Ping:              c.backend.Ping,
		Metrics:           m,
		Logger:            logger,
	})

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Addr(), err)
	}
	if cfg.Server.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConns)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.Run(gctx, cfg.Heartbeat())
	})
	g.Go(func() error {
		logger.Info("optilead listening", "addr", ln.Addr().String(), "storage", cfg.Storage.Backend)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// stdout carries the MCP protocol; logs go to stderr.
	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := buildComponents(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer c.backend.Close()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		LLM:           c.llm,
		Model:         cfg.Ollama.Model,
		Scripts:       c.scripts,
		Prompts:       c.backend,
		DefaultPrompt: c.defaults,
		Calls:         c.calls,
		Scorer:        c.scorer,
	})

	logger.Info("MCP server started (stdio transport)")
	stdioSrv := server.NewStdioServer(mcpSrv)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("optilead is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop optilead (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to optilead (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	base := serverURL(cfg)
	client := &http.Client{Timeout: 2 * time.Second}

	var health struct {
		Status  string `json:"status"`
		Storage string `json:"storage"`
	}
	running := false
	resp, err := client.Get(base + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		json.NewDecoder(resp.Body).Decode(&health)
		resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusOK:
			running = true
			printStatus("Server", "running on %s", cfg.Addr())
		case http.StatusServiceUnavailable:
			running = true
			printStatus("Server", "degraded (storage: %s)", health.Storage)
		default:
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	llm := ollama.New(cfg.Ollama.BaseURL)
	if llm.IsRunning(ctx) {
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
		for _, model := range uniqueModels(cfg.Ollama.Model, cfg.Ollama.ScoringModel) {
			state := "missing"
			if llm.HasModel(ctx, model) {
				state = "ready"
			}
			printStatus("Model "+model, "%s", state)
		}
	} else {
		printStatus("Ollama", "not running")
	}

	printStatus("Call service", "%s (%s payload)", cfg.CallService.BaseURL, cfg.CallService.PayloadFormat)
	if w := callServiceWarning(cfg.CallService); w != "" {
		printWarning("%s", w)
	}

	if running {
		var list []json.RawMessage
		if r, err := client.Get(base + "/api/scripts"); err == nil {
			if decodeJSON(r, &list) == nil {
				printStatus("Scripts", "%d", len(list))
			}
		}
		list = nil
		if r, err := client.Get(base + "/api/system-prompts"); err == nil {
			if decodeJSON(r, &list) == nil {
				printStatus("System prompts", "%d", len(list))
			}
		}
	}

	printStatus("Storage", "%s", cfg.Storage.Backend)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

// callServiceWarning reports settings that will make call routes fail.
// Only the outbound trigger sends the API key.
func callServiceWarning(cs config.CallServiceConfig) string {
	switch {
	case cs.BaseURL == "":
		return "call_service.base_url is not set; start-call and call-prospect will fail"
	case cs.APIKey == "":
		return "call_service.api_key is not set; call-prospect will fail"
	}
	return ""
}

func uniqueModels(models ...string) []string {
	seen := make(map[string]bool, len(models))
	var out []string
	for _, m := range models {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}
