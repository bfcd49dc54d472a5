package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Timecode is an h:m:s position used for trim endpoints.
type Timecode struct {
	Hours   int
	Minutes int
	Seconds int
}

// ParseTimecode parses "H:M:S" (or "H:M:S" with zero padding) into a
// Timecode. Minutes and seconds must be below 60; all components must be
// non-negative integers.
func ParseTimecode(s string) (Timecode, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Timecode{}, fmt.Errorf("timecode %q: want H:M:S", s)
	}
	vals := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return Timecode{}, fmt.Errorf("timecode %q: invalid component %q", s, p)
		}
		vals[i] = n
	}
	tc := Timecode{Hours: vals[0], Minutes: vals[1], Seconds: vals[2]}
	if tc.Minutes >= 60 || tc.Seconds >= 60 {
		return Timecode{}, fmt.Errorf("timecode %q: minutes and seconds must be below 60", s)
	}
	return tc, nil
}

// String renders the timecode as zero-padded "HH:MM:SS", the form ffmpeg
// accepts for -ss/-to.
func (t Timecode) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hours, t.Minutes, t.Seconds)
}

// TotalSeconds returns the position in seconds.
func (t Timecode) TotalSeconds() int {
	return t.Hours*3600 + t.Minutes*60 + t.Seconds
}

// Before reports whether t is strictly earlier than other.
func (t Timecode) Before(other Timecode) bool {
	return t.TotalSeconds() < other.TotalSeconds()
}
