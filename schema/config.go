package schema

import (
	"fmt"
	"strings"
)

// ServiceConfig defines the log capacities and chat rules of the core service.
type ServiceConfig struct {
	VisionLogMax    int
	SpokenLogMax    int
	AudioLogMax     int
	ChatLogMax      int
	ReplyLogMax     int
	ScoreLogMax     int
	ScoreWindow     int
	BotName         string
	MentionKeywords []string
	DefaultStreamer StreamerID
}

const (
	// DefaultLogMax is the capacity of context, score and reply logs.
	DefaultLogMax = 50
	// DefaultChatLogMax is the capacity of the chat log.
	DefaultChatLogMax = 100
	// DefaultScoreWindow is the trailing window used by score summaries.
	DefaultScoreWindow = 10
)

// DefaultMentionKeywords are matched case-insensitively against chat bodies.
func DefaultMentionKeywords() []string {
	return []string{"nami", "peepingnami"}
}

// NormalizeServiceConfig applies defaults and validates the config.
func NormalizeServiceConfig(cfg ServiceConfig) (ServiceConfig, error) {
	caps := []*int{&cfg.VisionLogMax, &cfg.SpokenLogMax, &cfg.AudioLogMax, &cfg.ReplyLogMax, &cfg.ScoreLogMax}
	for _, c := range caps {
		if *c == 0 {
			*c = DefaultLogMax
		}
	}
	if cfg.ChatLogMax == 0 {
		cfg.ChatLogMax = DefaultChatLogMax
	}
	if cfg.ScoreWindow == 0 {
		cfg.ScoreWindow = DefaultScoreWindow
	}
	for _, c := range append(caps, &cfg.ChatLogMax, &cfg.ScoreWindow) {
		if *c < 0 {
			return ServiceConfig{}, fmt.Errorf("%w: log capacities must be positive", ErrInvalidConfig)
		}
	}
	cfg.BotName = strings.TrimSpace(cfg.BotName)
	if cfg.BotName == "" {
		cfg.BotName = DefaultBotName
	}
	keywords := make([]string, 0, len(cfg.MentionKeywords))
	for _, kw := range cfg.MentionKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	if len(keywords) == 0 {
		keywords = DefaultMentionKeywords()
	}
	cfg.MentionKeywords = keywords
	cfg.DefaultStreamer = StreamerID(strings.TrimSpace(string(cfg.DefaultStreamer)))
	if cfg.DefaultStreamer == "" {
		cfg.DefaultStreamer = DefaultStreamer
	}
	return cfg, nil
}
