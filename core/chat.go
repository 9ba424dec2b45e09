package core

import "strings"

// MentionMatcher flags chat lines that address the bot.
type MentionMatcher struct {
	keywords []string
}

// NewMentionMatcher returns a matcher for the given keywords. Matching is
// case-insensitive and finds keywords anywhere in the message.
func NewMentionMatcher(keywords []string) MentionMatcher {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return MentionMatcher{keywords: out}
}

// Match reports whether message contains any keyword.
func (m MentionMatcher) Match(message string) bool {
	if message == "" {
		return false
	}
	lower := strings.ToLower(message)
	for _, kw := range m.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
