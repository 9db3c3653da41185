package mcp

import (
	"encoding/json"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ResultPayload flattens an SDK CallToolResult into the JSON shape relayed
// back to the execution plane.
type ResultPayload struct {
	Content    []ResultContent `json:"content"`
	Structured any             `json:"structured_content,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`
}

// ResultContent is one content block of a tool result.
type ResultContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// FlattenResult converts an SDK result into the wire payload. Non-text
// content blocks are rendered as their JSON encoding so nothing is silently
// dropped.
func FlattenResult(result *mcpsdk.CallToolResult) ResultPayload {
	payload := ResultPayload{IsError: result.IsError}
	if result.StructuredContent != nil {
		payload.Structured = result.StructuredContent
	}
	for _, content := range result.Content {
		switch c := content.(type) {
		case *mcpsdk.TextContent:
			payload.Content = append(payload.Content, ResultContent{Type: "text", Text: c.Text})
		default:
			encoded, err := json.Marshal(content)
			if err != nil {
				continue
			}
			payload.Content = append(payload.Content, ResultContent{Type: "json", Text: string(encoded)})
		}
	}
	return payload
}
