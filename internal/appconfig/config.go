package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/directorsync/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int             `mapstructure:"config_version" yaml:"config_version"`
	Endpoint      EndpointConfig  `mapstructure:"endpoint" yaml:"endpoint"`
	Reconnect     ReconnectConfig `mapstructure:"reconnect" yaml:"reconnect"`
	Logs          LogsConfig      `mapstructure:"logs" yaml:"logs"`
	Chat          ChatConfig      `mapstructure:"chat" yaml:"chat"`
	Defaults      DefaultsConfig  `mapstructure:"defaults" yaml:"defaults"`
	Collab        CollabConfig    `mapstructure:"collab" yaml:"collab"`
	HTTP          HTTPConfig      `mapstructure:"http" yaml:"http"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// EndpointConfig locates the Director Engine Socket.IO endpoint.
type EndpointConfig struct {
	URL                     string `mapstructure:"url" yaml:"url"`
	Path                    string `mapstructure:"path" yaml:"path"`
	Namespace               string `mapstructure:"namespace" yaml:"namespace"`
	HandshakeTimeoutSeconds int    `mapstructure:"handshake_timeout_seconds" yaml:"handshake_timeout_seconds"`
	WriteTimeoutSeconds     int    `mapstructure:"write_timeout_seconds" yaml:"write_timeout_seconds"`
	SendQueue               int    `mapstructure:"send_queue" yaml:"send_queue"`
}

// ReconnectConfig controls the capped exponential reconnect delay.
type ReconnectConfig struct {
	BaseDelayMS int     `mapstructure:"base_delay_ms" yaml:"base_delay_ms"`
	MaxDelayMS  int     `mapstructure:"max_delay_ms" yaml:"max_delay_ms"`
	Jitter      float64 `mapstructure:"jitter" yaml:"jitter"`
}

// BaseDelay returns the first reconnect delay.
func (c ReconnectConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMS) * time.Millisecond
}

// MaxDelay returns the reconnect delay cap.
func (c ReconnectConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMS) * time.Millisecond
}

// LogsConfig sets the capacity of every bounded log.
type LogsConfig struct {
	Vision      int `mapstructure:"vision" yaml:"vision"`
	Spoken      int `mapstructure:"spoken" yaml:"spoken"`
	Audio       int `mapstructure:"audio" yaml:"audio"`
	Chat        int `mapstructure:"chat" yaml:"chat"`
	Replies     int `mapstructure:"replies" yaml:"replies"`
	Scores      int `mapstructure:"scores" yaml:"scores"`
	ScoreWindow int `mapstructure:"score_window" yaml:"score_window"`
}

// ChatConfig controls chat ingestion.
type ChatConfig struct {
	BotName         string   `mapstructure:"bot_name" yaml:"bot_name"`
	MentionKeywords []string `mapstructure:"mention_keywords" yaml:"mention_keywords"`
}

// DefaultsConfig holds values surfaced before the backend reports its own.
type DefaultsConfig struct {
	Streamer string `mapstructure:"streamer" yaml:"streamer"`
}

// CollabConfig locates the collaborator HTTP surface.
type CollabConfig struct {
	BaseURL             string `mapstructure:"base_url" yaml:"base_url"`
	StreamersPath       string `mapstructure:"streamers_path" yaml:"streamers_path"`
	BreadcrumbsPath     string `mapstructure:"breadcrumbs_path" yaml:"breadcrumbs_path"`
	SummaryPath         string `mapstructure:"summary_path" yaml:"summary_path"`
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	TimeoutSeconds      int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// PollInterval returns the collaborator refresh interval.
func (c CollabConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// HTTPConfig configures the consumer bridge. An empty Addr disables it.
type HTTPConfig struct {
	Addr        string `mapstructure:"addr" yaml:"addr"`
	BasePath    string `mapstructure:"base_path" yaml:"base_path"`
	HistorySize int    `mapstructure:"history_size" yaml:"history_size"`
}

// Service maps the log and chat sections onto the core service config.
func (c Config) Service() schema.ServiceConfig {
	return schema.ServiceConfig{
		VisionLogMax:    c.Logs.Vision,
		SpokenLogMax:    c.Logs.Spoken,
		AudioLogMax:     c.Logs.Audio,
		ChatLogMax:      c.Logs.Chat,
		ReplyLogMax:     c.Logs.Replies,
		ScoreLogMax:     c.Logs.Scores,
		ScoreWindow:     c.Logs.ScoreWindow,
		BotName:         c.Chat.BotName,
		MentionKeywords: append([]string(nil), c.Chat.MentionKeywords...),
		DefaultStreamer: schema.StreamerID(c.Defaults.Streamer),
	}
}

// DefaultConfig returns a config populated with defaults.
func DefaultConfig() (Config, error) {
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Endpoint: EndpointConfig{
			URL:                     "http://localhost:8002",
			Path:                    "/socket.io/",
			Namespace:               "/",
			HandshakeTimeoutSeconds: 10,
			WriteTimeoutSeconds:     10,
			SendQueue:               64,
		},
		Reconnect: ReconnectConfig{
			BaseDelayMS: 1000,
			MaxDelayMS:  5000,
			Jitter:      0,
		},
		Logs: LogsConfig{
			Vision:      schema.DefaultLogMax,
			Spoken:      schema.DefaultLogMax,
			Audio:       schema.DefaultLogMax,
			Chat:        schema.DefaultChatLogMax,
			Replies:     schema.DefaultLogMax,
			Scores:      schema.DefaultLogMax,
			ScoreWindow: schema.DefaultScoreWindow,
		},
		Chat: ChatConfig{
			BotName:         schema.DefaultBotName,
			MentionKeywords: schema.DefaultMentionKeywords(),
		},
		Defaults: DefaultsConfig{
			Streamer: string(schema.DefaultStreamer),
		},
		Collab: CollabConfig{
			BaseURL:             "http://localhost:8002",
			StreamersPath:       "/assets/streamers.json",
			BreadcrumbsPath:     "/breadcrumbs",
			SummaryPath:         "/summary_data",
			PollIntervalSeconds: 5,
			TimeoutSeconds:      5,
		},
		HTTP: HTTPConfig{
			Addr:        "",
			HistorySize: 256,
		},
	}, nil
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".directorsync", "config.yaml"), nil
}
