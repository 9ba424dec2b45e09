package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pkt.systems/directorsync/schema"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("endpoint.url", cfg.Endpoint.URL)
	v.SetDefault("endpoint.path", cfg.Endpoint.Path)
	v.SetDefault("endpoint.namespace", cfg.Endpoint.Namespace)
	v.SetDefault("endpoint.handshake_timeout_seconds", cfg.Endpoint.HandshakeTimeoutSeconds)
	v.SetDefault("endpoint.write_timeout_seconds", cfg.Endpoint.WriteTimeoutSeconds)
	v.SetDefault("endpoint.send_queue", cfg.Endpoint.SendQueue)
	v.SetDefault("reconnect.base_delay_ms", cfg.Reconnect.BaseDelayMS)
	v.SetDefault("reconnect.max_delay_ms", cfg.Reconnect.MaxDelayMS)
	v.SetDefault("reconnect.jitter", cfg.Reconnect.Jitter)
	v.SetDefault("logs.vision", cfg.Logs.Vision)
	v.SetDefault("logs.spoken", cfg.Logs.Spoken)
	v.SetDefault("logs.audio", cfg.Logs.Audio)
	v.SetDefault("logs.chat", cfg.Logs.Chat)
	v.SetDefault("logs.replies", cfg.Logs.Replies)
	v.SetDefault("logs.scores", cfg.Logs.Scores)
	v.SetDefault("logs.score_window", cfg.Logs.ScoreWindow)
	v.SetDefault("chat.bot_name", cfg.Chat.BotName)
	v.SetDefault("chat.mention_keywords", cfg.Chat.MentionKeywords)
	v.SetDefault("defaults.streamer", cfg.Defaults.Streamer)
	v.SetDefault("collab.base_url", cfg.Collab.BaseURL)
	v.SetDefault("collab.streamers_path", cfg.Collab.StreamersPath)
	v.SetDefault("collab.breadcrumbs_path", cfg.Collab.BreadcrumbsPath)
	v.SetDefault("collab.summary_path", cfg.Collab.SummaryPath)
	v.SetDefault("collab.poll_interval_seconds", cfg.Collab.PollIntervalSeconds)
	v.SetDefault("collab.timeout_seconds", cfg.Collab.TimeoutSeconds)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.base_path", cfg.HTTP.BasePath)
	v.SetDefault("http.history_size", cfg.HTTP.HistorySize)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.InConfig("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the endpoint, reconnect and collaborator sections.
func Validate(cfg Config) error {
	if err := validateURL("endpoint.url", cfg.Endpoint.URL, "http", "https", "ws", "wss"); err != nil {
		return err
	}
	if ns := strings.TrimSpace(cfg.Endpoint.Namespace); ns != "" && !strings.HasPrefix(ns, "/") {
		return fmt.Errorf("endpoint.namespace must start with /")
	}
	if cfg.Reconnect.BaseDelayMS <= 0 {
		return fmt.Errorf("reconnect.base_delay_ms must be positive")
	}
	if cfg.Reconnect.MaxDelayMS < cfg.Reconnect.BaseDelayMS {
		return fmt.Errorf("reconnect.max_delay_ms must not be below reconnect.base_delay_ms")
	}
	if cfg.Reconnect.Jitter < 0 || cfg.Reconnect.Jitter > 1 {
		return fmt.Errorf("reconnect.jitter must be within [0,1]")
	}
	if strings.TrimSpace(cfg.Collab.BaseURL) != "" {
		if err := validateURL("collab.base_url", cfg.Collab.BaseURL, "http", "https"); err != nil {
			return err
		}
	}
	if cfg.Collab.PollIntervalSeconds < 0 {
		return fmt.Errorf("collab.poll_interval_seconds must not be negative")
	}
	if _, err := schema.NormalizeServiceConfig(cfg.Service()); err != nil {
		return fmt.Errorf("logs: %w", err)
	}
	return nil
}

func validateURL(key, value string, schemes ...string) error {
	parsed, err := url.Parse(strings.TrimSpace(value))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s must include scheme and host (e.g. http://localhost:8002)", key)
	}
	if !slices.Contains(schemes, parsed.Scheme) {
		return fmt.Errorf("%s scheme must be one of %s", key, strings.Join(schemes, ", "))
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.Endpoint.URL = expandEnv(cfg.Endpoint.URL)
	cfg.Collab.BaseURL = expandEnv(cfg.Collab.BaseURL)
	cfg.HTTP.Addr = expandEnv(cfg.HTTP.Addr)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
