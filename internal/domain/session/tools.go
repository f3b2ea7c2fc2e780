package session

import (
	"encoding/json"
	"fmt"

	"tutor-server/services/voice-api/internal/domain/lesson"
)

// Tool names the provider may call.
const (
	ToolMoveToStep        = "move_to_step"
	ToolShowNextContent   = "show_next_content"
	ToolCompleteStep      = "complete_step"
	ToolCompleteLesson    = "complete_lesson"
	ToolShowTable         = "show_table"
	ToolShowDefinition    = "show_definition"
	ToolShowQuoteAnalysis = "show_quote_analysis"
	ToolAskQuestion       = "ask_question"
	ToolChangeSpeed       = "change_speed"
)

// ToolDefinition is one function schema advertised to the provider.
type ToolDefinition struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolDefinitions returns the full function schema set for a tutoring
// session.
func ToolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Type:        "function",
			Name:        ToolMoveToStep,
			Description: "Move the lesson to a different step. The first content block of the step becomes visible.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"stepId": {"type": "string", "description": "Identifier of the step to move to"},
					"stepTitle": {"type": "string", "description": "Display title of the step"}
				},
				"required": ["stepId", "stepTitle"]
			}`),
		},
		{
			Type:        "function",
			Name:        ToolShowNextContent,
			Description: "Reveal the next content block of the current step. Safe to call past the last block.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"reason": {"type": "string", "description": "Why the next block should appear now"}
				}
			}`),
		},
		{
			Type:        "function",
			Name:        ToolCompleteStep,
			Description: "Mark a lesson step as completed.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"stepId": {"type": "string", "description": "Identifier of the completed step"}
				},
				"required": ["stepId"]
			}`),
		},
		{
			Type:        "function",
			Name:        ToolCompleteLesson,
			Description: "Mark the whole lesson as finished and show the closing summary.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"summary": {"type": "string", "description": "Short recap of what was covered"}
				}
			}`),
		},
		{
			Type:        "function",
			Name:        ToolShowTable,
			Description: "Show a table to the learner, either by referencing a pre-authored block or with inline rows.",
			Parameters:  adHocContentSchema,
		},
		{
			Type:        "function",
			Name:        ToolShowDefinition,
			Description: "Show a key-term definition card to the learner.",
			Parameters:  adHocContentSchema,
		},
		{
			Type:        "function",
			Name:        ToolShowQuoteAnalysis,
			Description: "Show a quote with its analysis to the learner.",
			Parameters:  adHocContentSchema,
		},
		{
			Type:        "function",
			Name:        ToolAskQuestion,
			Description: "Show a practice question card to the learner.",
			Parameters:  adHocContentSchema,
		},
		{
			Type:        "function",
			Name:        ToolChangeSpeed,
			Description: "Adjust the speaking speed when the learner asks you to slow down or speed up.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"direction": {"type": "string", "enum": ["slower", "faster"]}
				},
				"required": ["direction"]
			}`),
		},
	}
}

var adHocContentSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"blockId": {"type": "string", "description": "ID of a pre-authored content block to show"},
		"title": {"type": "string", "description": "Heading for inline content"},
		"content": {"type": "object", "description": "Inline content payload when no blockId is given"}
	}
}`)

// Speaking-speed bounds accepted by the provider.
const (
	minSpeed  = 0.25
	maxSpeed  = 1.5
	speedStep = 0.25
)

// toolResult is the JSON body returned to the provider in the function
// output.
type toolResult struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (r toolResult) encode() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"error":"encode result"}`
	}
	return string(b)
}

// runTool executes the named handler and returns the output string to send
// back to the provider. Handler failures are reported in the output, never
// swallowed: an unacknowledged call stalls the provider's turn-taking.
func (t *Translator) runTool(name string, args map[string]any) string {
	var (
		detail string
		err    error
	)

	switch name {
	case ToolMoveToStep:
		detail, err = t.toolMoveToStep(args)
	case ToolShowNextContent:
		detail, err = t.toolShowNext(args)
	case ToolCompleteStep:
		detail, err = t.toolCompleteStep(args)
	case ToolCompleteLesson:
		detail, err = t.toolCompleteLesson(args)
	case ToolShowTable:
		detail, err = t.toolShowContent(lesson.BlockTypeTable, args)
	case ToolShowDefinition:
		detail, err = t.toolShowContent(lesson.BlockTypeDefinition, args)
	case ToolShowQuoteAnalysis:
		detail, err = t.toolShowContent(lesson.BlockTypeQuoteAnalysis, args)
	case ToolAskQuestion:
		detail, err = t.toolShowContent(lesson.BlockTypeQuestion, args)
	case ToolChangeSpeed:
		detail, err = t.toolChangeSpeed(args)
	default:
		err = fmt.Errorf("unknown tool %q", name)
	}

	if err != nil {
		t.log.Warn().Err(err).Str("tool", name).Msg("tool call failed")
		return toolResult{Success: false, Error: err.Error()}.encode()
	}
	return toolResult{Success: true, Detail: detail}.encode()
}

func (t *Translator) toolMoveToStep(args map[string]any) (string, error) {
	stepID := stringArg(args, "stepId")
	if stepID == "" {
		return "", fmt.Errorf("move_to_step: missing stepId")
	}
	stepTitle := stringArg(args, "stepTitle")

	rev := t.seq.MoveToStep(stepID, stepTitle)
	if err := t.sendMarker(rev); err != nil {
		return "", err
	}
	return fmt.Sprintf("now on step %s", stepID), nil
}

func (t *Translator) toolShowNext(args map[string]any) (string, error) {
	rev := t.seq.ShowNext(stringArg(args, "reason"))
	if !rev.Advanced {
		// No further block: acknowledge without emitting anything.
		return "no more content in this step", nil
	}
	if err := t.sendMarker(rev); err != nil {
		return "", err
	}
	return fmt.Sprintf("showing block %d", rev.BlockIndex), nil
}

func (t *Translator) toolCompleteStep(args map[string]any) (string, error) {
	stepID := stringArg(args, "stepId")
	if stepID == "" {
		return "", fmt.Errorf("complete_step: missing stepId")
	}
	rev := t.seq.CompleteStep(stepID)
	if err := t.sendMarker(rev); err != nil {
		return "", err
	}
	return fmt.Sprintf("step %s completed", stepID), nil
}

func (t *Translator) toolCompleteLesson(args map[string]any) (string, error) {
	rev := t.seq.CompleteLesson()
	rev.Summary = stringArg(args, "summary")
	if err := t.sendMarker(rev); err != nil {
		return "", err
	}
	return "lesson completed", nil
}

func (t *Translator) toolShowContent(blockType lesson.BlockType, args map[string]any) (string, error) {
	var block *lesson.ContentBlock

	if blockID := stringArg(args, "blockId"); blockID != "" {
		block = t.seq.FindBlock(blockID)
		if block == nil {
			return "", fmt.Errorf("content block %q not found", blockID)
		}
	} else {
		data, err := json.Marshal(args)
		if err != nil {
			return "", fmt.Errorf("encode inline content: %w", err)
		}
		block = &lesson.ContentBlock{
			Type:    blockType,
			Data:    data,
			Visible: true,
		}
	}

	msg := BlockMessage{Type: ClientMsgContentBlock, Block: block, AutoShow: true}
	if err := t.client.SendJSON(msg); err != nil {
		return "", Fatal("send content block", err)
	}
	return fmt.Sprintf("%s shown", blockType), nil
}

func (t *Translator) toolChangeSpeed(args map[string]any) (string, error) {
	direction := stringArg(args, "direction")

	speed := t.speed
	switch direction {
	case "slower":
		speed -= speedStep
	case "faster":
		speed += speedStep
	default:
		return "", fmt.Errorf("change_speed: invalid direction %q", direction)
	}
	if speed < minSpeed {
		speed = minSpeed
	}
	if speed > maxSpeed {
		speed = maxSpeed
	}
	if speed == t.speed {
		return fmt.Sprintf("already at %s limit", direction), nil
	}

	update := SessionUpdate{
		Type:    ProviderMsgSessionUpdate,
		Session: SessionParams{Speed: speed},
	}
	if err := t.provider.SendJSON(update); err != nil {
		return "", Fatal("send session update", err)
	}
	t.speed = speed
	return fmt.Sprintf("speed set to %.2f", speed), nil
}

func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, _ := args[key].(string)
	return v
}
