package session

import (
	"tutor-server/services/voice-api/internal/domain/lesson"
)

// Marker types carried in content.marker messages.
const (
	MarkerMoveToStep      = "move_to_step"
	MarkerShowNextContent = "show_next_content"
	MarkerCompleteStep    = "complete_step"
	MarkerLessonComplete  = "lesson_complete"
)

// Reveal is the outcome of one sequencer operation: what the client should
// now see.
type Reveal struct {
	Marker     string
	StepID     string
	StepTitle  string
	BlockIndex int
	Block      *lesson.ContentBlock
	Reason     string
	Summary    string
	Advanced   bool
}

// Sequencer tracks which step and content block the session has revealed.
// It is the sole source of truth for visibility: blocks become visible only
// through MoveToStep and ShowNext, one at a time, never out of order. It is
// mutated only from the session's relay goroutine.
type Sequencer struct {
	plan *lesson.Plan

	currentStepID     string
	currentStepTitle  string
	currentBlockIndex int
	completedSteps    map[string]bool
	lessonComplete    bool
}

// NewSequencer creates a sequencer over the given plan. A nil plan is valid:
// step transitions are still tracked for free-form sessions, with no blocks
// to reveal.
func NewSequencer(plan *lesson.Plan) *Sequencer {
	return &Sequencer{
		plan:           plan,
		completedSteps: make(map[string]bool),
	}
}

// CurrentStepID returns the step the session is on, or "" before the first
// MoveToStep.
func (s *Sequencer) CurrentStepID() string {
	return s.currentStepID
}

// CurrentBlockIndex returns the index of the last revealed block in the
// current step.
func (s *Sequencer) CurrentBlockIndex() int {
	return s.currentBlockIndex
}

// MoveToStep switches to the given step and reveals its first block. The
// block index always resets to zero, even when the step is unchanged.
func (s *Sequencer) MoveToStep(stepID, stepTitle string) Reveal {
	s.currentStepID = stepID
	s.currentStepTitle = stepTitle
	s.currentBlockIndex = 0

	return Reveal{
		Marker:    MarkerMoveToStep,
		StepID:    stepID,
		StepTitle: stepTitle,
		Block:     s.blockAt(0),
		Advanced:  true,
	}
}

// ShowNext reveals the next block of the current step. Past the last block
// it is a no-op acknowledgment, not an error: the index stays put and
// Advanced is false.
func (s *Sequencer) ShowNext(reason string) Reveal {
	rev := Reveal{
		Marker:     MarkerShowNextContent,
		StepID:     s.currentStepID,
		StepTitle:  s.currentStepTitle,
		BlockIndex: s.currentBlockIndex,
		Reason:     reason,
	}

	next := s.currentBlockIndex + 1
	block := s.blockAt(next)
	if block == nil {
		return rev
	}

	s.currentBlockIndex = next
	rev.BlockIndex = next
	rev.Block = block
	rev.Advanced = true
	return rev
}

// CompleteStep marks a step done. Calling it twice for the same step is
// harmless.
func (s *Sequencer) CompleteStep(stepID string) Reveal {
	s.completedSteps[stepID] = true
	return Reveal{
		Marker:   MarkerCompleteStep,
		StepID:   stepID,
		Advanced: true,
	}
}

// CompleteLesson records the terminal marker. It does not close the session;
// the client decides when to disconnect.
func (s *Sequencer) CompleteLesson() Reveal {
	s.lessonComplete = true
	return Reveal{Marker: MarkerLessonComplete, Advanced: true}
}

// IsStepComplete reports whether CompleteStep has been called for stepID.
func (s *Sequencer) IsStepComplete(stepID string) bool {
	return s.completedSteps[stepID]
}

// IsLessonComplete reports whether the terminal marker has been recorded.
func (s *Sequencer) IsLessonComplete() bool {
	return s.lessonComplete
}

// FindBlock looks a block up by ID anywhere in the plan, for ad hoc content
// tools that reference pre-authored material.
func (s *Sequencer) FindBlock(blockID string) *lesson.ContentBlock {
	if s.plan == nil {
		return nil
	}
	for i := range s.plan.Steps {
		step := &s.plan.Steps[i]
		for j := range step.Blocks {
			if step.Blocks[j].ID == blockID {
				return &step.Blocks[j]
			}
		}
	}
	return nil
}

func (s *Sequencer) blockAt(index int) *lesson.ContentBlock {
	if s.plan == nil || index < 0 {
		return nil
	}
	step := s.plan.StepByID(s.currentStepID)
	if step == nil || index >= len(step.Blocks) {
		return nil
	}
	return &step.Blocks[index]
}
