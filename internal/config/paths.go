package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const appName = "optilead"

// xdgDir returns $env/optilead, or ~/rel/optilead when env is unset.
// It returns "" when neither can be resolved.
func xdgDir(env, rel string) string {
	base := os.Getenv(env)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, rel)
	}
	return filepath.Join(base, appName)
}

func defaultDataDir() string {
	if dir := xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share")); dir != "" {
		return dir
	}
	return appName + "-data"
}

func configFilePath() string {
	dir := xdgDir("XDG_CONFIG_HOME", ".config")
	if dir == "" {
		dir = appName
	}
	return filepath.Join(dir, "config.json")
}

// loadDotEnv copies path into the process environment. Variables that are
// already set keep their values. A missing file is ignored.
func loadDotEnv(path string) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		warnf("could not parse %s: %v", path, err)
	}
}

func warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[WARN] "+format+"\n", args...)
}
