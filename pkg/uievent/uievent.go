// Package uievent normalizes raw execution-plane runtime events into the
// stable UI event envelope consumed by browser clients.
package uievent

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type enumerates the UI-facing event types.
type Type string

const (
	TypeThinking    Type = "thinking"
	TypePlan        Type = "plan"
	TypePlanStep    Type = "plan_step"
	TypeToolCall    Type = "tool_call"
	TypeToolResult  Type = "tool_result"
	TypeSkillCall   Type = "skill_call"
	TypeSkillResult Type = "skill_result"
	TypeMCPCall     Type = "mcp_call"
	TypeMCPResult   Type = "mcp_result"
	TypeText        Type = "text"
	TypeFile        Type = "file"
)

// Runtime event types with terminal semantics.
const (
	runtimeComplete = "execution_complete"
	runtimeError    = "execution_error"
)

// Message is the UI event envelope. The envelope shape (id, type, data,
// timestamp) is a stable wire contract; data carries the per-type record.
type Message struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
}

// Runtime is one decoded execution-plane runtime event. The plane's event
// stream is schemaless JSON; every field any known event type can carry is
// declared here so decoding is total.
type Runtime struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Stage   string `json:"stage"`

	Steps       []RuntimeStep  `json:"steps"`
	StepID      string         `json:"step_id"`
	Tool        string         `json:"tool"`
	Params      map[string]any `json:"params"`
	Result      any            `json:"result"`
	DurationMs  *int64         `json:"duration_ms"`
	Error       string         `json:"error"`
	ToolName    string         `json:"tool_name"`
	Arguments   map[string]any `json:"arguments"`
	Input       map[string]any `json:"input"`
	Output      any            `json:"output"`
	Success     *bool          `json:"success"`
	SkillName   string         `json:"skill_name"`
	Server      string         `json:"server"`
	URL         string         `json:"url"`
	Filename    string         `json:"filename"`
	MimeType    string         `json:"mime_type"`
	Size        *int64         `json:"size"`
	Code        string         `json:"code"`

	FinalResponse string `json:"final_response"`
}

// RuntimeStep is one planned step inside a plan_created event.
type RuntimeStep struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Tool        string `json:"tool,omitempty"`
}

// Decode parses a raw runtime event payload.
func Decode(data []byte) (*Runtime, error) {
	var ev Runtime
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// IsComplete reports whether the event terminates its session successfully.
func (ev *Runtime) IsComplete() bool { return ev.Type == runtimeComplete }

// IsError reports whether the event terminates its session with a failure.
func (ev *Runtime) IsError() bool { return ev.Type == runtimeError }

// processTypes is the subset of UI event types buffered as the session's
// process trace and attached to the final assistant message.
var processTypes = map[Type]bool{
	TypeThinking:   true,
	TypePlan:       true,
	TypePlanStep:   true,
	TypeToolCall:   true,
	TypeToolResult: true,
	TypeMCPCall:    true,
	TypeMCPResult:  true,
}

// IsProcessType reports whether t belongs to the buffered process subset.
func IsProcessType(t Type) bool { return processTypes[t] }

// Normalize maps a runtime event to its UI message, or nil when the type is
// absent or unrecognized. Deterministic modulo the fresh id and timestamp.
func Normalize(ev *Runtime) *Message {
	var typ Type
	var data map[string]any

	switch ev.Type {
	case "thinking":
		typ = TypeThinking
		data = map[string]any{"content": ev.Content}
		if ev.Stage != "" {
			data["stage"] = ev.Stage
		}

	case "plan_created":
		typ = TypePlan
		steps := make([]map[string]any, 0, len(ev.Steps))
		for _, s := range ev.Steps {
			step := map[string]any{
				"id":          s.ID,
				"description": s.Description,
				"status":      "pending",
			}
			if s.Tool != "" {
				step["tool"] = s.Tool
			}
			steps = append(steps, step)
		}
		data = map[string]any{"steps": steps, "currentStep": ""}

	case "plan_step_start":
		typ = TypePlanStep
		data = map[string]any{"stepId": ev.StepID, "status": "running"}
		if ev.Tool != "" {
			data["tool"] = ev.Tool
		}
		if ev.Params != nil {
			data["params"] = ev.Params
		}

	case "plan_step_complete":
		typ = TypePlanStep
		data = map[string]any{"stepId": ev.StepID, "status": "completed", "result": ev.Result}
		if ev.DurationMs != nil {
			data["durationMs"] = *ev.DurationMs
		}

	case "plan_step_failed":
		typ = TypePlanStep
		errMsg := ev.Error
		if errMsg == "" {
			errMsg = "Unknown error"
		}
		data = map[string]any{"stepId": ev.StepID, "status": "failed", "error": errMsg}

	case "tool_call_start":
		typ = TypeToolCall
		data = map[string]any{
			"toolName":  ev.ToolName,
			"arguments": orEmptyMap(ev.Arguments),
			"status":    "calling",
		}

	case "tool_call_complete":
		typ = TypeToolResult
		data = map[string]any{
			"toolName": ev.ToolName,
			"result":   ev.Result,
			"success":  orTrue(ev.Success),
		}

	case "tool_call": // bridge variant: arguments arrive under "input"
		typ = TypeToolCall
		data = map[string]any{
			"toolName":  ev.ToolName,
			"arguments": orEmptyMap(ev.Input),
			"status":    "calling",
		}

	case "tool_result": // bridge variant: result arrives under "output"
		typ = TypeToolResult
		result := ev.Output
		if result == nil {
			result = ev.Result
		}
		data = map[string]any{
			"toolName": ev.ToolName,
			"result":   result,
			"success":  orTrue(ev.Success),
		}

	case "skill_call_start":
		typ = TypeSkillCall
		data = map[string]any{
			"skillName": ev.SkillName,
			"arguments": orEmptyMap(ev.Arguments),
			"status":    "calling",
		}

	case "skill_call_complete":
		typ = TypeSkillResult
		data = map[string]any{
			"skillName": ev.SkillName,
			"result":    ev.Result,
			"success":   orTrue(ev.Success),
		}

	case "mcp_call_start":
		typ = TypeMCPCall
		data = map[string]any{
			"server":    ev.Server,
			"toolName":  ev.ToolName,
			"arguments": orEmptyMap(ev.Arguments),
			"status":    "calling",
		}

	case "mcp_call_complete":
		typ = TypeMCPResult
		data = map[string]any{
			"server":   ev.Server,
			"toolName": ev.ToolName,
			"result":   ev.Result,
			"success":  orTrue(ev.Success),
		}

	case "text_chunk", "text":
		typ = TypeText
		data = map[string]any{"content": ev.Content}

	case "file_created":
		typ = TypeFile
		filename := ev.Filename
		if filename == "" {
			filename = "file"
		}
		mimeType := ev.MimeType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		data = map[string]any{"url": ev.URL, "filename": filename, "mimeType": mimeType}
		if ev.Size != nil {
			data["size"] = *ev.Size
		}

	default:
		return nil
	}

	return &Message{
		ID:        uuid.New().String(),
		Type:      typ,
		Data:      data,
		Timestamp: Timestamp(time.Now()),
	}
}

// Timestamp renders t as ISO-8601 UTC with millisecond precision.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func orTrue(b *bool) bool {
	if b == nil {
		return true
	}
	return *b
}
