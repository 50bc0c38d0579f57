package ocr

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// ShortString is a fixed-capacity string. The zero value is empty.
type ShortString struct {
	n   uint8
	buf [Capacity]byte
}

// NewShortString copies s, truncating to Capacity. truncated reports
// whether bytes were dropped.
func NewShortString(s string) (ss ShortString, truncated bool) {
	n := copy(ss.buf[:], s)
	ss.n = uint8(n)
	return ss, n < len(s)
}

func (s ShortString) String() string { return string(s.buf[:s.n]) }

// Len returns the length in bytes.
func (s ShortString) Len() int { return int(s.n) }

// IsEmpty reports whether nothing was read.
func (s ShortString) IsEmpty() bool { return s.n == 0 }

// MarshalJSON encodes as a plain JSON string.
func (s ShortString) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// UnmarshalJSON decodes a JSON string, truncating to Capacity.
func (s *ShortString) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s, _ = NewShortString(v)
	return nil
}

// IsDigitsOrSlash reports whether s is non-empty and every byte is 0-9 or '/'.
func IsDigitsOrSlash(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && c != '/' {
			return false
		}
	}
	return true
}

// Accept applies the acceptance rule shared by every engine. Surrounding
// whitespace is ignored; anything else outside 0-9 and '/' rejects the read.
func Accept(raw string) (ShortString, bool) {
	s := strings.TrimSpace(raw)
	if !IsDigitsOrSlash(s) {
		return ShortString{}, false
	}
	ss, truncated := NewShortString(s)
	if truncated {
		slog.Warn("recognized text exceeds capacity, truncating", "text", s, "capacity", Capacity)
	}
	return ss, true
}
