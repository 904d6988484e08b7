// Package provider decodes llm_returned payloads captured from Anthropic,
// OpenAI, and Bedrock SDK response shapes into a normalized form the
// abstraction layer can extract predicates from, without ever dialing out —
// decoding is a pure struct-unmarshal over JSON already captured in an
// event's payload. Grounded on the message-shape conversions in
// haasonsaas-nexus/internal/agent/providers/{anthropic,bedrock}.go.
package provider

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/openai/openai-go"
)

// Normalized is the provider-agnostic view of an llm_returned output: the
// text content plus any tool calls the assistant issued, in content order.
type Normalized struct {
	Text      string
	ToolCalls []ToolCall
}

// ToolCall is one assistant-issued tool invocation decoded from a provider
// response.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Decode dispatches on provider to the matching SDK response shape and
// returns the normalized view. Unknown providers fall back to a best-effort
// decode of {text, tool_calls} so the pipeline still works against payloads
// from providers outside the three the engine has first-class decoders for.
func Decode(providerName string, output json.RawMessage) (Normalized, error) {
	switch providerName {
	case "anthropic":
		return decodeAnthropic(output)
	case "openai":
		return decodeOpenAI(output)
	case "bedrock":
		return decodeBedrock(output)
	default:
		return decodeGeneric(output)
	}
}

func decodeAnthropic(output json.RawMessage) (Normalized, error) {
	var msg anthropic.Message
	if err := json.Unmarshal(output, &msg); err != nil {
		return Normalized{}, fmt.Errorf("decode anthropic message: %w", err)
	}
	var n Normalized
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			n.Text += block.Text
		case "tool_use":
			n.ToolCalls = append(n.ToolCalls, ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		}
	}
	return n, nil
}

func decodeOpenAI(output json.RawMessage) (Normalized, error) {
	var msg openai.ChatCompletionMessage
	if err := json.Unmarshal(output, &msg); err != nil {
		return Normalized{}, fmt.Errorf("decode openai message: %w", err)
	}
	n := Normalized{Text: msg.Content}
	for _, call := range msg.ToolCalls {
		n.ToolCalls = append(n.ToolCalls, ToolCall{
			ID:    call.ID,
			Name:  call.Function.Name,
			Input: json.RawMessage(call.Function.Arguments),
		})
	}
	return n, nil
}

// bedrockMessage is the minimal shape the engine captures for a Bedrock
// Converse response: the wire payload stores decoded content blocks as
// plain JSON (the SDK's types.ContentBlock union isn't itself
// JSON-tagged for decode), tagged the same way
// haasonsaas-nexus/internal/agent/providers/bedrock.go builds them.
type bedrockMessage struct {
	Role    bedrocktypes.ConversationRole `json:"role"`
	Content []bedrockContentBlock         `json:"content"`
}

type bedrockContentBlock struct {
	Text     string          `json:"text,omitempty"`
	ToolUse  *bedrockToolUse `json:"tool_use,omitempty"`
}

type bedrockToolUse struct {
	ToolUseID string          `json:"tool_use_id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
}

func decodeBedrock(output json.RawMessage) (Normalized, error) {
	var msg bedrockMessage
	if err := json.Unmarshal(output, &msg); err != nil {
		return Normalized{}, fmt.Errorf("decode bedrock message: %w", err)
	}
	var n Normalized
	for _, block := range msg.Content {
		if block.Text != "" {
			n.Text += block.Text
		}
		if block.ToolUse != nil {
			n.ToolCalls = append(n.ToolCalls, ToolCall{
				ID:    block.ToolUse.ToolUseID,
				Name:  block.ToolUse.Name,
				Input: block.ToolUse.Input,
			})
		}
	}
	return n, nil
}

func decodeGeneric(output json.RawMessage) (Normalized, error) {
	var generic struct {
		Text      string `json:"text"`
		ToolCalls []struct {
			ID    string          `json:"id"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		} `json:"tool_calls"`
	}
	if err := json.Unmarshal(output, &generic); err != nil {
		return Normalized{}, fmt.Errorf("decode generic message: %w", err)
	}
	n := Normalized{Text: generic.Text}
	for _, tc := range generic.ToolCalls {
		n.ToolCalls = append(n.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Name, Input: tc.Input})
	}
	return n, nil
}
