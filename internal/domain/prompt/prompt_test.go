package prompt_test

import (
	"strings"
	"testing"

	"tutor-server/services/voice-api/internal/domain/lesson"
	"tutor-server/services/voice-api/internal/domain/prompt"
)

func TestAssembler_BuildWithPlan(t *testing.T) {
	plan := &lesson.Plan{
		ID:      "plan-1",
		Title:   "Macbeth: Ambition",
		Subject: "English",
		Tier:    "Higher",
		Summary: "Explore how ambition drives the play.",
		Steps: []lesson.Step{
			{ID: "s1", Title: "Key quotes", Blocks: make([]lesson.ContentBlock, 2)},
			{ID: "s2", Title: "Essay structure", Blocks: make([]lesson.ContentBlock, 1)},
		},
	}

	a := prompt.NewAssembler("verse", 1.0)
	settings := a.Build(prompt.Params{
		Topic:     "Macbeth",
		YearGroup: "11",
		Plan:      plan,
	})

	if settings.Voice != "verse" {
		t.Fatalf("voice = %q", settings.Voice)
	}
	if settings.Speed != 1.0 {
		t.Fatalf("speed = %v", settings.Speed)
	}
	if len(settings.Tools) == 0 {
		t.Fatal("no tools in settings")
	}

	for _, want := range []string{
		"Macbeth: Ambition",
		"step id: s1",
		"step id: s2",
		"move_to_step",
		"show_next_content",
		"year group 11",
	} {
		if !strings.Contains(settings.Instructions, want) {
			t.Errorf("instructions missing %q", want)
		}
	}
}

func TestAssembler_BuildWithoutPlan(t *testing.T) {
	a := prompt.NewAssembler("alloy", 1.0)
	settings := a.Build(prompt.Params{Topic: "fractions"})

	if !strings.Contains(settings.Instructions, "no fixed lesson plan") {
		t.Error("free-form instructions missing")
	}
	if !strings.Contains(settings.Instructions, "fractions") {
		t.Error("topic missing from instructions")
	}
	if len(settings.Tools) == 0 {
		t.Fatal("no tools in settings")
	}
}

func TestAssembler_StyleLookupFallback(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		tier    string
	}{
		{name: "known subject and tier", subject: "english", tier: "higher"},
		{name: "known subject unknown tier", subject: "maths", tier: "mixed"},
		{name: "unknown subject", subject: "philosophy", tier: "higher"},
		{name: "case insensitive", subject: "English", tier: "FOUNDATION"},
	}

	a := prompt.NewAssembler("alloy", 1.0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := &lesson.Plan{Title: "T", Subject: tt.subject, Tier: tt.tier}
			settings := a.Build(prompt.Params{Plan: plan})
			if !strings.Contains(settings.Instructions, "tutor") {
				t.Fatalf("no persona resolved for (%s, %s)", tt.subject, tt.tier)
			}
		})
	}
}
