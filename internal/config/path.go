package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const (
	appDir      = "murmur"
	configName  = "config.jsonc"
	envFileName = ".env"
)

// ResolvePath applies CLI/XDG/home fallback rules for config.jsonc location.
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, appDir, configName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}

	return filepath.Join(home, ".config", appDir, configName), nil
}

// ResolveEnvPath picks the dotenv file: explicit flag, then the env_file key
// (relative to the config file), then .env beside the config file.
func ResolveEnvPath(explicit string, configured string, configPath string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return expandHome(p)
	}
	dir := filepath.Dir(configPath)
	if p := strings.TrimSpace(configured); p != "" {
		p = expandHome(p)
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		return p
	}
	return filepath.Join(dir, envFileName)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(p, "~"), "/"))
}
