package prompts

import (
	_ "embed"
	"log/slog"
	"os"
	"strings"
)

//go:embed fallback.txt
var fallback string

// Fallback returns the built-in default system prompt.
func Fallback() string {
	return strings.TrimSpace(fallback)
}

// DefaultLoader reads the default system prompt from a text file, falling
// back to the built-in prompt when the file cannot be read. The file is
// re-read on every call so edits take effect without a restart.
type DefaultLoader struct {
	path   string
	logger *slog.Logger
}

// NewDefaultLoader returns a loader for the file at path.
func NewDefaultLoader(path string, logger *slog.Logger) *DefaultLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultLoader{path: path, logger: logger}
}

// Load returns the trimmed prompt text and whether it came from the file.
func (l *DefaultLoader) Load() (string, bool) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		l.logger.Warn("default prompt file unreadable, using built-in prompt", "path", l.path, "error", err)
		return Fallback(), false
	}
	return strings.TrimSpace(string(data)), true
}
