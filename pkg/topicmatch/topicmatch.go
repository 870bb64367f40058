// Package topicmatch implements MQTT 3.1.1 topic filter matching.
//
// A filter is a '/'-separated list of levels. The single-level wildcard '+'
// matches exactly one level and the multi-level wildcard '#' matches zero or
// more trailing levels; both must occupy a whole level, and '#' must be last.
// Malformed filters never match and never panic, except through the
// fast path: a pattern equal to the topic always matches. Topics starting
// with '$' get no special treatment.
package topicmatch

import "strings"

const (
	separator   = "/"
	singleLevel = "+"
	multiLevel  = "#"
)

// Matches reports whether topic is matched by the filter pattern.
func Matches(pattern, topic string) bool {
	if pattern == "" || topic == "" {
		return false
	}
	if pattern == topic {
		return true
	}

	patternLevels := strings.Split(pattern, separator)
	topicLevels := strings.Split(topic, separator)

	for i, level := range patternLevels {
		switch level {
		case multiLevel:
			return i == len(patternLevels)-1
		case singleLevel:
			if i >= len(topicLevels) {
				return false
			}
		default:
			if strings.ContainsAny(level, "+#") {
				return false
			}
			if i >= len(topicLevels) || topicLevels[i] != level {
				return false
			}
		}
	}
	return len(patternLevels) == len(topicLevels)
}

// Valid reports whether pattern is a well-formed topic filter.
func Valid(pattern string) bool {
	if pattern == "" {
		return false
	}
	levels := strings.Split(pattern, separator)
	for i, level := range levels {
		if level == multiLevel {
			if i != len(levels)-1 {
				return false
			}
			continue
		}
		if level != singleLevel && strings.ContainsAny(level, "+#") {
			return false
		}
	}
	return true
}

// HasWildcard reports whether s contains a wildcard character and so cannot
// be used as a publish topic.
func HasWildcard(s string) bool {
	return strings.ContainsAny(s, "+#")
}
