package llm

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/mcp-agent-go/pkg/client"
	"github.com/ajitpratap0/mcp-agent-go/pkg/protocol"
)

// SamplingHandler serves sampling/createMessage requests with completer.
// Non-text content in the request is described rather than forwarded.
func SamplingHandler(completer Completer) client.SamplingHandler {
	return func(ctx context.Context, params *protocol.CreateMessageParams) (*protocol.CreateMessageResult, error) {
		messages := make([]Message, 0, len(params.Messages)+1)
		if params.SystemPrompt != "" {
			messages = append(messages, NewMessage(RoleSystem, params.SystemPrompt))
		}
		for _, m := range params.Messages {
			role := RoleUser
			if m.Role == protocol.RoleAssistant {
				role = RoleAssistant
			}
			messages = append(messages, NewMessage(role, contentText(m.Content)))
		}

		completion, err := completer.Complete(ctx, messages, nil)
		if err != nil {
			return nil, fmt.Errorf("sampling completion: %w", err)
		}
		return &protocol.CreateMessageResult{
			Role:       protocol.RoleAssistant,
			Content:    protocol.TextContent(completion.Message.Content),
			Model:      completion.Model,
			StopReason: stopReason(completion.FinishReason),
		}, nil
	}
}

func contentText(c protocol.Content) string {
	switch c.Type {
	case protocol.ContentText:
		return c.Text
	case protocol.ContentResource:
		if c.Resource != nil {
			if c.Resource.Text != "" {
				return c.Resource.Text
			}
			return fmt.Sprintf("[resource %s]", c.Resource.URI)
		}
	}
	return fmt.Sprintf("[%s content, %s]", c.Type, c.MimeType)
}

func stopReason(finish string) string {
	switch finish {
	case FinishStop:
		return "endTurn"
	case FinishLength:
		return "maxTokens"
	default:
		return finish
	}
}
