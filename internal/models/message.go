package models

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects the conversational style and therefore the system prompt.
type Mode string

const (
	ModeSlow Mode = "slow" // reflective, unhurried
	ModeVent Mode = "vent" // cathartic, let it out
)

// DefaultMode is used when neither the caller nor local state picks one.
const DefaultMode = ModeSlow

// Modes lists every accepted mode.
var Modes = []Mode{ModeSlow, ModeVent}

// Valid reports whether m is one of the enumerated modes.
func (m Mode) Valid() bool {
	return m == ModeSlow || m == ModeVent
}

// ParseMode normalizes and validates a mode string.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("invalid mode %q (expected %q or %q)", s, ModeSlow, ModeVent)
	}
	return m, nil
}

// Role of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system" // only ever synthesized at send time
)

// ChatMessage is a single turn as exchanged over the API.
type ChatMessage struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	ID        string     `json:"id,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// StripSystem returns turns without system-role entries.
func StripSystem(turns []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, 0, len(turns))
	for _, t := range turns {
		if t.Role == RoleSystem {
			continue
		}
		out = append(out, t)
	}
	return out
}
