package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"softspace/internal/models"
)

func TestDefaultPromptsDifferPerMode(t *testing.T) {
	set := Default()
	if set.For(models.ModeSlow) == set.For(models.ModeVent) {
		t.Fatal("modes must have distinct prompts")
	}
	if set.For("bogus") != set.For(models.DefaultMode) {
		t.Fatal("unknown mode should fall back to the default mode")
	}
}

func TestBuildStripsSystemTurnsAndPrefixesPrompt(t *testing.T) {
	set := Default()
	history := []models.ChatMessage{
		{Role: models.RoleSystem, Content: "stale prompt"},
		{Role: models.RoleAssistant, Content: "hi"},
		{Role: models.RoleUser, Content: "I'm stressed"},
	}

	out := set.Build(models.ModeVent, history)
	if len(out) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(out))
	}
	if out[0].Role != models.RoleSystem || out[0].Content != set.For(models.ModeVent) {
		t.Fatalf("unexpected system turn: %+v", out[0])
	}
	for _, turn := range out[1:] {
		if turn.Role == models.RoleSystem {
			t.Fatal("history system turn leaked")
		}
	}
	if out[2].Content != "I'm stressed" {
		t.Fatalf("unexpected last turn %+v", out[2])
	}
}

func TestBuildWithoutHistoryUsesOpening(t *testing.T) {
	set := Default()
	out := set.Build(models.ModeSlow, nil)
	if len(out) != 1 {
		t.Fatalf("expected only the system turn, got %d", len(out))
	}
	if !strings.Contains(out[0].Content, "new conversation") {
		t.Fatalf("expected opening instruction, got %q", out[0].Content)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	body := "modes:\n  vent: \"Just listen.\"\nopening: \"Say hello.\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	set, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if set.For(models.ModeVent) != "Just listen." {
		t.Fatalf("override not applied: %q", set.For(models.ModeVent))
	}
	if set.For(models.ModeSlow) != Default().For(models.ModeSlow) {
		t.Fatal("slow prompt should keep its default")
	}
	if !strings.HasSuffix(set.Opening(models.ModeVent), "Say hello.") {
		t.Fatalf("opening override not applied: %q", set.Opening(models.ModeVent))
	}
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	if err := os.WriteFile(path, []byte("modes:\n  rant: \"x\"\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
