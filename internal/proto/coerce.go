package proto

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// The server is loose about scalar encodings: booleans arrive as true, 1,
// "1", "true" or "yes", integers as numbers or numeric strings, ids as
// strings or numbers. The Flex types below absorb that at decode time and
// never fail: anything unrecognised decodes to the zero value, so one bad
// optional field cannot reject a whole frame.

// FlexBool is a boolean that remembers whether the field was present and valid.
type FlexBool struct {
	Value bool
	Valid bool
}

// Or returns the decoded value, or def when the field was absent or unreadable.
func (b FlexBool) Or(def bool) bool {
	if b.Valid {
		return b.Value
	}
	return def
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *FlexBool) UnmarshalJSON(data []byte) error {
	*b = FlexBool{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case 't', 'f':
		var v bool
		if err := json.Unmarshal(data, &v); err == nil {
			*b = FlexBool{Value: v, Valid: true}
		}
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			if v, ok := ParseBool(s); ok {
				*b = FlexBool{Value: v, Valid: true}
			}
		}
	default:
		if f, err := strconv.ParseFloat(string(data), 64); err == nil {
			*b = FlexBool{Value: f != 0, Valid: true}
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (b FlexBool) MarshalJSON() ([]byte, error) {
	if !b.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(b.Value)
}

// ParseBool accepts the textual spellings the server uses.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// FlexInt is an integer that may arrive as a JSON number or a numeric string.
type FlexInt struct {
	Value int64
	Valid bool
}

// Or returns the decoded value, or def when the field was absent or unreadable.
func (i FlexInt) Or(def int64) int64 {
	if i.Valid {
		return i.Value
	}
	return def
}

// UnmarshalJSON implements json.Unmarshaler.
func (i *FlexInt) UnmarshalJSON(data []byte) error {
	*i = FlexInt{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		raw = strings.TrimSpace(s)
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*i = FlexInt{Value: v, Valid: true}
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*i = FlexInt{Value: int64(f), Valid: true}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (i FlexInt) MarshalJSON() ([]byte, error) {
	if !i.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(i.Value)
}

// FlexString is a string that tolerates numbers and booleans in its place.
// Server ids in particular are sent either way.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *FlexString) UnmarshalJSON(data []byte) error {
	*s = ""
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '"':
		var v string
		if err := json.Unmarshal(data, &v); err == nil {
			*s = FlexString(v)
		}
	case 't', 'f':
		var v bool
		if err := json.Unmarshal(data, &v); err == nil {
			*s = FlexString(strconv.FormatBool(v))
		}
	case '{', '[':
		// objects and arrays have no sensible string form
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err == nil {
			*s = FlexString(n.String())
		}
	}
	return nil
}

// String returns the plain value.
func (s FlexString) String() string {
	return string(s)
}

// Or returns the value, or def when empty.
func (s FlexString) Or(def string) string {
	if s == "" {
		return def
	}
	return string(s)
}
