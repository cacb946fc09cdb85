package normalizer

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// obj is a lazily decoded JSON object. A nil obj behaves as an empty one.
type obj map[string]json.RawMessage

func object(raw json.RawMessage) obj {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var o obj
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil
	}
	return o
}

func (o obj) get(key string) json.RawMessage {
	if o == nil {
		return nil
	}
	return o[key]
}

func (o obj) obj(key string) obj {
	return object(o.get(key))
}

// int returns the numeric member key. Absent, null, and non-numeric members
// report false.
func (o obj) int(key string) (int64, bool) {
	return number(o.get(key))
}

func number(raw json.RawMessage) (int64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// firstMember returns the value of the first member of a JSON object in
// document order.
func firstMember(raw json.RawMessage) json.RawMessage {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil
	}
	if _, err := dec.Token(); err != nil {
		return nil
	}
	var v json.RawMessage
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

// truthy mirrors the loose presence check used for provider error markers:
// null, false, zero, and the empty string are not set.
func truthy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "", "null", "false", `""`:
		return false
	}
	if f, err := strconv.ParseFloat(string(raw), 64); err == nil {
		return f != 0
	}
	return true
}

var placeholders = map[string]struct{}{
	"":        {},
	"N/A":     {},
	"Unknown": {},
	"null":    {},
}

// clean renders a scalar member as a string, treating placeholders as absent.
func clean(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	switch raw[0] {
	case '"':
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
	case '{', '[':
		return ""
	default:
		s = string(raw)
	}
	if _, ok := placeholders[s]; ok {
		return ""
	}
	return s
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	"Jan 2, 2006",
}

// formatDate turns an epoch-seconds number (or digit-only string) or a
// date string into YYYY-MM-DD in UTC. Zero, placeholders, and anything
// unparsable yield "".
func formatDate(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	if raw[0] != '"' {
		if secs, ok := number(raw); ok {
			return epochDate(secs)
		}
		return ""
	}

	s := strings.TrimSpace(clean(raw))
	if s == "" {
		return ""
	}
	if isDigits(s) {
		secs, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return ""
		}
		return epochDate(secs)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(time.DateOnly)
		}
	}
	return ""
}

// maxEpochSeconds bounds epoch values to the range a calendar date can
// represent (100,000,000 days either side of 1970).
const maxEpochSeconds = 8_640_000_000_000

func epochDate(secs int64) string {
	if secs == 0 || secs > maxEpochSeconds || secs < -maxEpochSeconds {
		return ""
	}
	t := time.Unix(secs, 0).UTC()
	if t.Year() < 0 || t.Year() > 9999 {
		return ""
	}
	return t.Format(time.DateOnly)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
