package naming

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mode selects where name suffixes come from.
type Mode string

const (
	// ModeCall computes a fresh suffix for every stored file.
	ModeCall Mode = "call"
	// ModeProcess reuses one timestamp taken when the process starts.
	ModeProcess Mode = "process"
)

// ParseMode validates a configured suffix mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeCall, ModeProcess:
		return m, nil
	default:
		return "", fmt.Errorf("unknown suffix mode %q", s)
	}
}

// Suffixer supplies the collision-avoidance part of a stored name.
type Suffixer interface {
	Suffix() string
}

// FixedSuffix always returns the same suffix.
type FixedSuffix string

func (f FixedSuffix) Suffix() string {
	return string(f)
}

// CallSuffix returns a timestamp followed by a short random token, e.g.
// "20240101120000-1f3a9c0e". The clock is replaceable in tests.
type CallSuffix struct {
	Now func() time.Time
}

func (c CallSuffix) Suffix() string {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return Timestamp(now()) + "-" + token
}

// NewSuffixer returns the Suffixer for mode. start is the process start time
// used by ModeProcess.
func NewSuffixer(mode Mode, start time.Time) (Suffixer, error) {
	switch mode {
	case ModeCall:
		return CallSuffix{}, nil
	case ModeProcess:
		return FixedSuffix(Timestamp(start)), nil
	default:
		return nil, fmt.Errorf("unknown suffix mode %q", mode)
	}
}
