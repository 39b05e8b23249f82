package protocol

// ContentBlock is one block of a tool result's content array, matching the
// {type, text} shape required by the tool protocol (mcp-go's CallToolResult
// uses the same shape; the orchestrator's own HTTP framing reuses it too).
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolEnvelope is what every tool invocation returns, success or failure.
// Exceptions never propagate to the client: tools.Registry.Execute turns a
// panic, and the toolsurface adapter a returned error, into an IsError
// Result, which tools.ToEnvelope renders as IsError=true here.
type ToolEnvelope struct {
	IsError bool           `json:"isError"`
	Content []ContentBlock `json:"content"`
}

// ErrorPayload is the JSON body of the single text block an error envelope
// carries: {"error": "...", "errorCode": "..."}.
type ErrorPayload struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// TextEnvelope wraps a single successful text block.
func TextEnvelope(text string) ToolEnvelope {
	return ToolEnvelope{Content: []ContentBlock{{Type: "text", Text: text}}}
}

// ErrorEnvelope wraps a single error text block carrying the JSON-encoded
// ErrorPayload: {isError:true, content:[{type:text, text:
// JSON{error,errorCode}}]}.
func ErrorEnvelope(text string) ToolEnvelope {
	return ToolEnvelope{IsError: true, Content: []ContentBlock{{Type: "text", Text: text}}}
}
