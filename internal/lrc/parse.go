package lrc

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var idTags = map[string]bool{
	"ti": true, "ar": true, "al": true, "au": true, "lr": true, "length": true,
	"by": true, "offset": true, "re": true, "tool": true, "ve": true, "#": true,
}

var (
	idTagRe   = regexp.MustCompile(`^\[([A-Za-z#]+):(.*)\]$`)
	timeTagRe = regexp.MustCompile(`\[(\d+):(\d+(?:\.\d+)?)\]`)
)

// Parse reads a line-synced LRC transcript. Lines without a time tag are
// dropped; a line carrying several tags starts at the latest one.
func Parse(text string) Document {
	var doc Document

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if m := idTagRe.FindStringSubmatch(line); m != nil && idTags[m[1]] {
			doc.Tags = append(doc.Tags, Tag{Key: m[1], Value: m[2]})
			continue
		}

		matches := timeTagRe.FindAllStringSubmatch(line, -1)
		if len(matches) == 0 {
			continue
		}

		start := -1
		for _, m := range matches {
			ms, ok := parseTimestamp(m[1], m[2])
			if !ok {
				continue
			}
			if ms > start {
				start = ms
			}
		}
		if start < 0 {
			continue
		}

		doc.Lines = append(doc.Lines, Line{
			StartMs: start,
			Text:    strings.TrimSpace(timeTagRe.ReplaceAllString(line, "")),
		})
	}

	return doc
}

// ParseTimestamp converts "mm:ss.hh" into milliseconds.
func ParseTimestamp(s string) (int, bool) {
	m := timeTagRe.FindStringSubmatch("[" + strings.TrimSpace(s) + "]")
	if m == nil {
		return 0, false
	}
	return parseTimestamp(m[1], m[2])
}

func parseTimestamp(minutes, seconds string) (int, bool) {
	min, err := strconv.Atoi(minutes)
	if err != nil {
		return 0, false
	}
	sec, err := strconv.ParseFloat(seconds, 64)
	if err != nil {
		return 0, false
	}
	return int(math.Round((float64(min)*60 + sec) * 1000)), true
}
