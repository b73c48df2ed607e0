package engine

import (
	"strconv"
	"strings"

	"github.com/madiyar/cityguidebot/internal/session"
)

// matchTopic resolves free-form topic input against the listed options, in
// order: 1-based list index, exact title, exact title with a trailing
// parenthetical stripped, then case-insensitive substring.
func matchTopic(input string, topics []session.GuideTopicOption) (session.GuideTopicOption, bool) {
	input = strings.TrimSpace(input)
	if input == "" || len(topics) == 0 {
		return session.GuideTopicOption{}, false
	}

	if n, err := strconv.Atoi(input); err == nil {
		if n >= 1 && n <= len(topics) {
			return topics[n-1], true
		}
		return session.GuideTopicOption{}, false
	}

	for _, t := range topics {
		if strings.EqualFold(t.Topic, input) {
			return t, true
		}
	}

	for _, t := range topics {
		if strings.EqualFold(stripParenthetical(t.Topic), stripParenthetical(input)) {
			return t, true
		}
	}

	lower := strings.ToLower(input)
	for _, t := range topics {
		if strings.Contains(strings.ToLower(t.Topic), lower) {
			return t, true
		}
	}

	return session.GuideTopicOption{}, false
}

// stripParenthetical removes a trailing "(...)" suffix, as topic lists often
// render the city name that way.
func stripParenthetical(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, ")") {
		return s
	}
	open := strings.LastIndex(s, "(")
	if open <= 0 {
		return s
	}
	return strings.TrimSpace(s[:open])
}
