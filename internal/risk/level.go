package risk

import (
	"strings"
	"time"
)

// Level is a normalized device/user risk level. Levels are ordered by
// severity so callers can compare them directly.
type Level int

const (
	Low Level = iota
	Medium
	High
)

func (l Level) String() string {
	switch l {
	case High:
		return "high"
	case Medium:
		return "medium"
	default:
		return "low"
	}
}

// NormalizeLevel maps an arbitrary risk string to a Level. Unrecognized
// or empty input maps to Low.
func NormalizeLevel(raw string) Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "critical", "severe", "high":
		return High
	case "medium", "moderate":
		return Medium
	default:
		return Low
	}
}

// LevelFromSecurityStatus collapses a Lookout security_status value into
// a Level. SECURE and THREATS_LOW are treated as Low, as is anything the
// vendor adds that we do not recognize.
func LevelFromSecurityStatus(status string) Level {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "THREATS_CRITICAL", "THREATS_HIGH":
		return High
	case "THREATS_MEDIUM":
		return Medium
	default:
		return Low
	}
}

// Transition records a change in a subject's risk level. One is only
// constructed when Previous != Current.
type Transition struct {
	Subject    string
	Previous   Level
	Current    Level
	Reason     string
	OccurredAt time.Time
}
