// Package prompts holds the fixed per-mode system prompts. The prompt is
// never stored with a conversation; it is looked up on every call, so an
// edit here changes the tone of all future turns, old conversations included.
package prompts

import (
	"fmt"
	"os"
	"strings"

	"softspace/internal/models"

	"gopkg.in/yaml.v3"
)

const slowPrompt = `You are Softspace, a calm and caring companion for people who are going through something hard.
The person chose the "slow" mode: they want to reflect, not to be fixed.
Listen closely, reflect back what you hear in your own words, and ask at most one gentle, open question at a time.
Keep replies short (two to four sentences), warm and unhurried. Do not diagnose, lecture or list techniques unless asked.
You are not a therapist or an emergency service. If the person mentions wanting to harm themselves or others,
respond with care and encourage them to contact local emergency services or a crisis line right away.`

const ventPrompt = `You are Softspace, a steady and caring companion for people who need to let something out.
The person chose the "vent" mode: they want room to say how they feel without being redirected.
Validate the feeling, match their energy calmly, and let them keep going. Avoid advice, silver linings and "at least" phrasing.
Keep replies brief so the space stays theirs. Ask whether they want to keep venting or talk it through only when they slow down.
You are not a therapist or an emergency service. If the person mentions wanting to harm themselves or others,
respond with care and encourage them to contact local emergency services or a crisis line right away.`

// openingInstruction is appended when the assistant speaks first.
const openingInstruction = `The person has just opened a new conversation and has not written anything yet.
Greet them in one or two short sentences and invite them to share what is on their mind. Do not ask more than one question.`

// Set maps each mode to its system prompt.
type Set struct {
	byMode  map[models.Mode]string
	opening string
}

// Default returns the built-in prompts.
func Default() *Set {
	return &Set{
		byMode: map[models.Mode]string{
			models.ModeSlow: slowPrompt,
			models.ModeVent: ventPrompt,
		},
		opening: openingInstruction,
	}
}

// fileFormat is the YAML layout accepted by Load.
type fileFormat struct {
	Modes   map[string]string `yaml:"modes"`
	Opening string            `yaml:"opening"`
}

// Load reads overrides from a YAML file on top of the defaults. Unknown
// modes are rejected; missing ones keep their default text.
//
//	modes:
//	  slow: "..."
//	  vent: "..."
//	opening: "..."
func Load(path string) (*Set, error) {
	set := Default()
	if path == "" {
		return set, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse prompts file: %w", err)
	}
	for name, text := range f.Modes {
		mode, err := models.ParseMode(name)
		if err != nil {
			return nil, fmt.Errorf("prompts file: %w", err)
		}
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("prompts file: empty prompt for mode %q", mode)
		}
		set.byMode[mode] = strings.TrimSpace(text)
	}
	if strings.TrimSpace(f.Opening) != "" {
		set.opening = strings.TrimSpace(f.Opening)
	}
	return set, nil
}

// For returns the system prompt of mode, falling back to the default mode.
func (s *Set) For(mode models.Mode) string {
	if p, ok := s.byMode[mode]; ok {
		return p
	}
	return s.byMode[models.DefaultMode]
}

// Opening returns the system prompt for an assistant-first turn.
func (s *Set) Opening(mode models.Mode) string {
	return s.For(mode) + "\n\n" + s.opening
}

// Build prefixes history with the mode's system prompt. System turns in
// history are dropped.
func (s *Set) Build(mode models.Mode, history []models.ChatMessage) []models.ChatMessage {
	turns := models.StripSystem(history)
	system := s.For(mode)
	if len(turns) == 0 {
		system = s.Opening(mode)
	}
	out := make([]models.ChatMessage, 0, len(turns)+1)
	out = append(out, models.ChatMessage{Role: models.RoleSystem, Content: system})
	return append(out, turns...)
}
