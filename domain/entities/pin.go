package entities

import (
	"fmt"
	"strings"
)

// Level is the logical level of a digital output line.
type Level uint8

const (
	Low Level = iota
	High
)

func (l Level) String() string {
	if l == High {
		return "high"
	}
	return "low"
}

// ParseLevel parses "high"/"low" (case-insensitive) and "1"/"0".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "1":
		return High, nil
	case "low", "0", "":
		return Low, nil
	default:
		return Low, fmt.Errorf("invalid pin level %q", s)
	}
}
