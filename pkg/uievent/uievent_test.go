package uievent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("valid event", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"thinking","content":"pondering"}`))
		require.NoError(t, err)
		assert.Equal(t, "thinking", ev.Type)
		assert.Equal(t, "pondering", ev.Content)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, err := Decode([]byte(`{not json`))
		assert.Error(t, err)
	})
}

func TestTerminalPredicates(t *testing.T) {
	assert.True(t, (&Runtime{Type: "execution_complete"}).IsComplete())
	assert.True(t, (&Runtime{Type: "execution_error"}).IsError())
	assert.False(t, (&Runtime{Type: "thinking"}).IsComplete())
	assert.False(t, (&Runtime{Type: "thinking"}).IsError())
}

func TestNormalize(t *testing.T) {
	durationMs := int64(420)
	size := int64(1024)
	failed := false

	tests := []struct {
		name       string
		event      *Runtime
		expectType Type
		expectData map[string]any
	}{
		{
			name:       "thinking with stage",
			event:      &Runtime{Type: "thinking", Content: "working", Stage: "analysis"},
			expectType: TypeThinking,
			expectData: map[string]any{"content": "working", "stage": "analysis"},
		},
		{
			name:       "thinking without stage omits stage",
			event:      &Runtime{Type: "thinking", Content: "working"},
			expectType: TypeThinking,
			expectData: map[string]any{"content": "working"},
		},
		{
			name: "plan_created seeds pending steps",
			event: &Runtime{Type: "plan_created", Steps: []RuntimeStep{
				{ID: "s1", Description: "look around", Tool: "search"},
				{ID: "s2", Description: "summarize"},
			}},
			expectType: TypePlan,
			expectData: map[string]any{
				"steps": []map[string]any{
					{"id": "s1", "description": "look around", "status": "pending", "tool": "search"},
					{"id": "s2", "description": "summarize", "status": "pending"},
				},
				"currentStep": "",
			},
		},
		{
			name:       "plan_step_start",
			event:      &Runtime{Type: "plan_step_start", StepID: "s1", Tool: "search", Params: map[string]any{"q": "x"}},
			expectType: TypePlanStep,
			expectData: map[string]any{"stepId": "s1", "status": "running", "tool": "search", "params": map[string]any{"q": "x"}},
		},
		{
			name:       "plan_step_complete with duration",
			event:      &Runtime{Type: "plan_step_complete", StepID: "s1", Result: "done", DurationMs: &durationMs},
			expectType: TypePlanStep,
			expectData: map[string]any{"stepId": "s1", "status": "completed", "result": "done", "durationMs": int64(420)},
		},
		{
			name:       "plan_step_failed defaults error message",
			event:      &Runtime{Type: "plan_step_failed", StepID: "s2"},
			expectType: TypePlanStep,
			expectData: map[string]any{"stepId": "s2", "status": "failed", "error": "Unknown error"},
		},
		{
			name:       "tool_call_start",
			event:      &Runtime{Type: "tool_call_start", ToolName: "web_search", Arguments: map[string]any{"q": "go"}},
			expectType: TypeToolCall,
			expectData: map[string]any{"toolName": "web_search", "arguments": map[string]any{"q": "go"}, "status": "calling"},
		},
		{
			name:       "tool_call_start with nil arguments",
			event:      &Runtime{Type: "tool_call_start", ToolName: "web_search"},
			expectType: TypeToolCall,
			expectData: map[string]any{"toolName": "web_search", "arguments": map[string]any{}, "status": "calling"},
		},
		{
			name:       "tool_call_complete defaults success true",
			event:      &Runtime{Type: "tool_call_complete", ToolName: "web_search", Result: "hit"},
			expectType: TypeToolResult,
			expectData: map[string]any{"toolName": "web_search", "result": "hit", "success": true},
		},
		{
			name:       "bridge tool_call reads arguments from input",
			event:      &Runtime{Type: "tool_call", ToolName: "read_file", Input: map[string]any{"path": "/tmp/x"}},
			expectType: TypeToolCall,
			expectData: map[string]any{"toolName": "read_file", "arguments": map[string]any{"path": "/tmp/x"}, "status": "calling"},
		},
		{
			name:       "bridge tool_result prefers output over result",
			event:      &Runtime{Type: "tool_result", ToolName: "read_file", Output: "contents", Result: "ignored", Success: &failed},
			expectType: TypeToolResult,
			expectData: map[string]any{"toolName": "read_file", "result": "contents", "success": false},
		},
		{
			name:       "bridge tool_result falls back to result",
			event:      &Runtime{Type: "tool_result", ToolName: "read_file", Result: "contents"},
			expectType: TypeToolResult,
			expectData: map[string]any{"toolName": "read_file", "result": "contents", "success": true},
		},
		{
			name:       "skill_call_start",
			event:      &Runtime{Type: "skill_call_start", SkillName: "summarize", Arguments: map[string]any{"n": 3.0}},
			expectType: TypeSkillCall,
			expectData: map[string]any{"skillName": "summarize", "arguments": map[string]any{"n": 3.0}, "status": "calling"},
		},
		{
			name:       "skill_call_complete",
			event:      &Runtime{Type: "skill_call_complete", SkillName: "summarize", Result: "ok"},
			expectType: TypeSkillResult,
			expectData: map[string]any{"skillName": "summarize", "result": "ok", "success": true},
		},
		{
			name:       "mcp_call_start",
			event:      &Runtime{Type: "mcp_call_start", Server: "github", ToolName: "list_prs", Arguments: map[string]any{}},
			expectType: TypeMCPCall,
			expectData: map[string]any{"server": "github", "toolName": "list_prs", "arguments": map[string]any{}, "status": "calling"},
		},
		{
			name:       "mcp_call_complete",
			event:      &Runtime{Type: "mcp_call_complete", Server: "github", ToolName: "list_prs", Result: []any{"pr-1"}},
			expectType: TypeMCPResult,
			expectData: map[string]any{"server": "github", "toolName": "list_prs", "result": []any{"pr-1"}, "success": true},
		},
		{
			name:       "text_chunk",
			event:      &Runtime{Type: "text_chunk", Content: "hello"},
			expectType: TypeText,
			expectData: map[string]any{"content": "hello"},
		},
		{
			name:       "text alias",
			event:      &Runtime{Type: "text", Content: "hello"},
			expectType: TypeText,
			expectData: map[string]any{"content": "hello"},
		},
		{
			name:       "file_created with all fields",
			event:      &Runtime{Type: "file_created", URL: "/files/report.pdf", Filename: "report.pdf", MimeType: "application/pdf", Size: &size},
			expectType: TypeFile,
			expectData: map[string]any{"url": "/files/report.pdf", "filename": "report.pdf", "mimeType": "application/pdf", "size": int64(1024)},
		},
		{
			name:       "file_created defaults filename and mime type",
			event:      &Runtime{Type: "file_created", URL: "/files/blob"},
			expectType: TypeFile,
			expectData: map[string]any{"url": "/files/blob", "filename": "file", "mimeType": "application/octet-stream"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Normalize(tt.event)
			require.NotNil(t, msg)
			assert.NotEmpty(t, msg.ID)
			assert.NotEmpty(t, msg.Timestamp)
			assert.Equal(t, tt.expectType, msg.Type)
			assert.Equal(t, tt.expectData, msg.Data)
		})
	}
}

func TestNormalizeUnknownType(t *testing.T) {
	assert.Nil(t, Normalize(&Runtime{Type: "heartbeat_ack"}))
	assert.Nil(t, Normalize(&Runtime{}))
}

func TestNormalizeFreshIDs(t *testing.T) {
	ev := &Runtime{Type: "thinking", Content: "x"}
	a := Normalize(ev)
	b := Normalize(ev)
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestIsProcessType(t *testing.T) {
	assert.True(t, IsProcessType(TypeThinking))
	assert.True(t, IsProcessType(TypePlan))
	assert.True(t, IsProcessType(TypePlanStep))
	assert.True(t, IsProcessType(TypeToolCall))
	assert.True(t, IsProcessType(TypeToolResult))
	assert.True(t, IsProcessType(TypeMCPCall))
	assert.True(t, IsProcessType(TypeMCPResult))
	assert.False(t, IsProcessType(TypeText))
	assert.False(t, IsProcessType(TypeFile))
	assert.False(t, IsProcessType(TypeSkillCall))
}

func TestTimestamp(t *testing.T) {
	at := time.Date(2025, 3, 14, 15, 9, 26, 535_000_000, time.FixedZone("CET", 3600))
	assert.Equal(t, "2025-03-14T14:09:26.535Z", Timestamp(at))
}
