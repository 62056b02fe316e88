// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

package monitor

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// allowedLiterals are domain status words that bypass the validity filter
// and, when configured as keywords, require an exact full-text match instead
// of a substring match.
var allowedLiterals = map[string]bool{
	"游戏": true,
	"余额": true,
	"流水": true,
	"返水": true,
	"反水": true,

	"game":     true,
	"balance":  true,
	"turnover": true,
	"rebate":   true,
}

const (
	maxMessageRunes    = 16
	maxMessageNewlines = 1
)

// numberPattern extracts numeric tokens including an optional leading sign,
// so "-5" is seen as a negative number rather than a bare "5".
var numberPattern = regexp.MustCompile(`-?(?:\d+(?:\.\d+)?|\.\d+)`)

// ValidMessage reports whether a message is eligible for keyword matching.
// A message passes when it exactly equals an allow-listed literal, or when it
// is at most 16 characters, contains at most one newline, and contains at
// least one numeric token strictly greater than zero.
func ValidMessage(text string) bool {
	if allowedLiterals[text] {
		return true
	}
	if utf8.RuneCountInString(text) > maxMessageRunes {
		return false
	}
	if strings.Count(text, "\n") > maxMessageNewlines {
		return false
	}
	return containsPositiveNumber(text)
}

func containsPositiveNumber(text string) bool {
	for _, token := range numberPattern.FindAllString(text, -1) {
		if strings.HasPrefix(token, "-") {
			continue
		}
		value, err := strconv.ParseFloat(token, 64)
		if err == nil && value > 0 {
			return true
		}
	}
	return false
}

// Match classifies a message against a channel's configured categories.
//
// Keywords on the literal allow-list must equal the full message text;
// all other keywords match as case-insensitive substrings. When more than
// one category matches, the last one in configuration order wins: existing
// channel configurations rely on later categories overriding earlier ones.
// Within the winning category the first matching keyword is reported.
//
// Match is pure and deterministic. Callers are expected to have applied
// ValidMessage first.
func Match(text string, cfg *ChannelWatchConfig) (KeywordMatch, bool) {
	if cfg == nil {
		return KeywordMatch{}, false
	}

	lowered := strings.ToLower(text)

	var result KeywordMatch
	var matched bool
	for _, cat := range cfg.Categories {
		for _, kw := range cat.Keywords {
			if kw == "" {
				continue
			}
			if allowedLiterals[kw] {
				if kw != text {
					continue
				}
			} else if !strings.Contains(lowered, strings.ToLower(kw)) {
				continue
			}
			result = KeywordMatch{
				Category: cat.Category,
				Label:    cat.Label,
				Keyword:  kw,
			}
			matched = true
			break
		}
	}

	return result, matched
}
