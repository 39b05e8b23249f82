package tools

import (
	"encoding/json"

	"github.com/browseragent/control-plane/pkg/protocol"
)

// ToEnvelope renders a Result into the wire envelope the tool protocol
// delivers: a single JSON-text content block, with isError toggled
// instead of an HTTP error status.
func ToEnvelope(r *Result) protocol.ToolEnvelope {
	if r == nil {
		return protocol.TextEnvelope("null")
	}
	if r.IsError {
		payload, err := json.Marshal(protocol.ErrorPayload{Error: r.Message, ErrorCode: string(r.ErrorCode)})
		if err != nil {
			payload = []byte(`{"error":"internal error"}`)
		}
		return protocol.ErrorEnvelope(string(payload))
	}
	b, err := json.Marshal(r.Data)
	if err != nil {
		return protocol.ErrorEnvelope(`{"error":"result not serializable","errorCode":"INTERNAL_ERROR"}`)
	}
	return protocol.TextEnvelope(string(b))
}
