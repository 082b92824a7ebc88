package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/embedder/internal/codec"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads configuration from a file, or from config.yaml when path is a directory.
// Values absent from the file keep their Defaults(). Files listed under include are
// applied after the file that names them, so later files win.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	cfg := Defaults()
	visited := make(map[string]bool)
	if err := loadInto(cfg, absPath, visited); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", absPath, err)
	}

	digest, err := Fingerprint(cfg.SourceFiles)
	if err != nil {
		return nil, err
	}
	cfg.Digest = digest
	return cfg, nil
}

// Discover finds a config file in the standard locations.
// Priority order: $EMBEDDER_CONFIG, ~/.config/embedder/config.yaml, ./config.yaml.
// An empty result with a nil error means none exists and Defaults() applies.
func Discover() (string, error) {
	if p := os.Getenv("EMBEDDER_CONFIG"); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("$EMBEDDER_CONFIG points to %s: %w", p, err)
		}
		return p, nil
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "embedder", "config.yaml")
		if _, err := os.Stat(userConfig); err == nil {
			return userConfig, nil
		}
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml", nil
	}
	return "", nil
}

// loadInto decodes path over cfg and then follows its includes.
func loadInto(cfg *Config, path string, visited map[string]bool) error {
	if visited[path] {
		return fmt.Errorf("circular include detected: %s", path)
	}
	visited[path] = true

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	// yaml.v3 leaves fields the document does not mention untouched,
	// which is what layers a file over the values already in cfg.
	cfg.Include = nil
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return fmt.Errorf("failed to parse YAML in %s: %w", path, err)
	}
	cfg.SourceFiles = append(cfg.SourceFiles, path)

	includes := cfg.Include
	baseDir := filepath.Dir(path)
	for i, inc := range includes {
		resolved := inc
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(baseDir, resolved)
		}
		if _, err := os.Stat(resolved); err != nil {
			return fmt.Errorf("include[%d]: file not found: %s\n"+
				"Referenced from: %s", i, resolved, path)
		}
		if err := loadInto(cfg, resolved, visited); err != nil {
			return fmt.Errorf("include[%d] (%s): %w", i, inc, err)
		}
	}
	cfg.Include = includes
	return nil
}

// interpolateEnv replaces ${VAR} with the environment value.
// Unset variables are left in place so validate can name them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate performs basic validation on the configuration.
// Validate checks the structural rules Load enforces. It stops at the first
// violation.
func Validate(cfg *Config) error {
	if cfg.Service.TickInterval <= 0 {
		return fmt.Errorf("service.tick_interval must be positive")
	}
	if cfg.Service.DispatchTimeout < 0 {
		return fmt.Errorf("service.dispatch_timeout must not be negative")
	}
	if cfg.Service.MaxTicks < 0 {
		return fmt.Errorf("service.max_ticks must not be negative")
	}
	switch strings.ToLower(cfg.Service.LogFormat) {
	case "", "json", "text":
	default:
		return fmt.Errorf("service.log_format must be json or text, got %q", cfg.Service.LogFormat)
	}

	if cfg.Dispatch.Workers < 1 {
		return fmt.Errorf("dispatch.workers must be at least 1, got %d", cfg.Dispatch.Workers)
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when api is enabled")
		}
		if cfg.API.ReplyTimeout <= 0 {
			return fmt.Errorf("api.reply_timeout must be positive")
		}
		if err := checkResolved("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
			return err
		}
	}

	if cfg.Journal.Enabled {
		if cfg.Journal.Path == "" {
			return fmt.Errorf("journal.path is required when journal is enabled")
		}
		if err := checkResolved("journal.path", cfg.Journal.Path); err != nil {
			return err
		}
	}

	if cfg.Channels.Echo.Enabled {
		if _, ok := codec.LookupMessage(cfg.Channels.Echo.Codec); !ok {
			return fmt.Errorf("channels.echo.codec: unknown codec %q (want standard, json, string or binary)", cfg.Channels.Echo.Codec)
		}
	}
	if cfg.Channels.Heartbeat.Enabled && cfg.Channels.Heartbeat.Interval < time.Millisecond {
		return fmt.Errorf("channels.heartbeat.interval must be at least 1ms")
	}
	return nil
}

func checkResolved(field, value string) error {
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}
