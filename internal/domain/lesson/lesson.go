// Package lesson holds the lesson-plan content model consumed by voice
// sessions. Plans are authored and stored by the content service; this
// service only loads and reveals them.
package lesson

import (
	"context"
	"encoding/json"
)

// BlockType enumerates the kinds of content blocks a step can contain.
type BlockType string

const (
	BlockTypeTable         BlockType = "table"
	BlockTypeDefinition    BlockType = "definition"
	BlockTypeQuoteAnalysis BlockType = "quote_analysis"
	BlockTypeQuestion      BlockType = "question"
	BlockTypeWorkedExample BlockType = "worked_example"
)

// ContentBlock is one discrete unit of lesson material revealed to the
// learner. The Data payload is opaque to this service; the client renders it.
type ContentBlock struct {
	ID      string          `json:"id"`
	StepID  string          `json:"step_id"`
	Type    BlockType       `json:"type"`
	Data    json.RawMessage `json:"data"`
	Visible bool            `json:"visible"`
}

// Step is an ordered group of content blocks within a lesson plan.
// Block order is fixed at authoring time; blocks are revealed one at a time.
type Step struct {
	ID     string         `json:"id"`
	Title  string         `json:"title"`
	Blocks []ContentBlock `json:"blocks"`
}

// Plan is a full lesson plan: an ordered list of steps plus the teaching
// context used to assemble session instructions.
type Plan struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Subject   string `json:"subject"`
	YearGroup string `json:"year_group"`
	Tier      string `json:"tier"`
	Summary   string `json:"summary"`
	Steps     []Step `json:"steps"`
}

// StepByID returns the step with the given id, or nil.
func (p *Plan) StepByID(id string) *Step {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// PlanSource loads lesson plans from the content service.
type PlanSource interface {
	GetPlan(ctx context.Context, planID string) (*Plan, error)
}
