// Package prompt assembles the provider-side session configuration from
// lesson-plan and profile data. It is a declarative data-shaping step: the
// subject/tier teaching style is a table lookup, not branching logic.
package prompt

import (
	"fmt"
	"strings"

	"tutor-server/services/voice-api/internal/domain/lesson"
	"tutor-server/services/voice-api/internal/domain/session"
)

// Params carry the connect-time context the instructions are built from.
type Params struct {
	Topic     string
	YearGroup string
	Plan      *lesson.Plan
}

// Settings is the assembled provider configuration for one session.
type Settings struct {
	Instructions string
	Voice        string
	Speed        float64
	Tools        []session.ToolDefinition
}

// style holds the per-subject, per-tier template parameters.
type style struct {
	Persona  string
	Approach string
	Pace     string
}

var defaultStyle = style{
	Persona:  "a patient, encouraging tutor",
	Approach: "Explain ideas step by step, check understanding often, and invite the learner to try things themselves.",
	Pace:     "Keep a steady pace and pause after each new idea.",
}

// styleTable maps (subject, tier) to teaching-style parameters. Unknown
// combinations fall back through (subject, "") to the default.
var styleTable = map[string]map[string]style{
	"english": {
		"foundation": {
			Persona:  "a warm English tutor who makes texts feel approachable",
			Approach: "Work through quotes slowly, one idea at a time. Keep vocabulary simple and always connect analysis back to the plain meaning of the text.",
			Pace:     "Go slowly and repeat key terms.",
		},
		"higher": {
			Persona:  "an English tutor who pushes for precise, layered analysis",
			Approach: "Expect the learner to offer interpretations first, then refine them. Introduce terminology and alternative readings.",
			Pace:     "Move briskly once the learner shows confidence.",
		},
		"": {
			Persona:  "a supportive English tutor",
			Approach: "Balance close reading with broader themes, and ask the learner for their own interpretation before offering yours.",
			Pace:     "Match the learner's pace.",
		},
	},
	"maths": {
		"foundation": {
			Persona:  "a maths tutor who builds confidence with worked examples",
			Approach: "Demonstrate each method fully before asking the learner to attempt one. Celebrate partial progress.",
			Pace:     "Slow, with frequent recaps.",
		},
		"higher": {
			Persona:  "a maths tutor who stretches problem-solving skills",
			Approach: "Give the learner the problem first and guide with hints rather than answers. Connect methods across topics.",
			Pace:     "Brisk, with time left for harder extension questions.",
		},
		"": {
			Persona:  "a clear, methodical maths tutor",
			Approach: "Alternate between worked examples and learner attempts.",
			Pace:     "Steady.",
		},
	},
	"science": {
		"": {
			Persona:  "a science tutor who grounds ideas in everyday examples",
			Approach: "Link every concept to something observable, then build up to the formal definition.",
			Pace:     "Steady, checking recall of key terms.",
		},
	},
}

// Assembler builds session settings from lesson data and defaults.
type Assembler struct {
	defaultVoice string
	defaultSpeed float64
}

// NewAssembler creates an assembler with the configured voice defaults.
func NewAssembler(defaultVoice string, defaultSpeed float64) *Assembler {
	return &Assembler{defaultVoice: defaultVoice, defaultSpeed: defaultSpeed}
}

// Build produces the full provider session settings for one connection.
func (a *Assembler) Build(p Params) Settings {
	return Settings{
		Instructions: a.buildInstructions(p),
		Voice:        a.defaultVoice,
		Speed:        a.defaultSpeed,
		Tools:        session.ToolDefinitions(),
	}
}

func (a *Assembler) buildInstructions(p Params) string {
	st := lookupStyle(p.Plan)

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s speaking with a student over voice.\n\n", st.Persona)
	b.WriteString(st.Approach)
	b.WriteString("\n")
	b.WriteString(st.Pace)
	b.WriteString("\n\n")

	if p.Topic != "" {
		fmt.Fprintf(&b, "Today's topic: %s.\n", p.Topic)
	}
	if p.YearGroup != "" {
		fmt.Fprintf(&b, "The student is in year group %s.\n", p.YearGroup)
	}

	if p.Plan != nil {
		b.WriteString("\nFollow this lesson plan:\n")
		fmt.Fprintf(&b, "Lesson: %s\n", p.Plan.Title)
		if p.Plan.Summary != "" {
			fmt.Fprintf(&b, "Summary: %s\n", p.Plan.Summary)
		}
		for i, step := range p.Plan.Steps {
			fmt.Fprintf(&b, "%d. %s (step id: %s, %d content blocks)\n",
				i+1, step.Title, step.ID, len(step.Blocks))
		}
		b.WriteString("\nUse the move_to_step tool when you start a step, show_next_content to reveal each block as you discuss it, complete_step when a step is done, and complete_lesson at the end.\n")
	} else {
		b.WriteString("\nThere is no fixed lesson plan; follow the student's questions. You can still use the content tools to show tables, definitions and practice questions.\n")
	}

	b.WriteString("Only reveal content through the tools. Never read out raw tool syntax. If the student asks you to slow down or speed up, use the change_speed tool.\n")
	return b.String()
}

func lookupStyle(plan *lesson.Plan) style {
	if plan == nil {
		return defaultStyle
	}
	subject := strings.ToLower(strings.TrimSpace(plan.Subject))
	tier := strings.ToLower(strings.TrimSpace(plan.Tier))

	tiers, ok := styleTable[subject]
	if !ok {
		return defaultStyle
	}
	if st, ok := tiers[tier]; ok {
		return st
	}
	if st, ok := tiers[""]; ok {
		return st
	}
	return defaultStyle
}
