package protocol

import (
	"encoding/json"
)

// Tool represents a tool in the MCP protocol
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ListToolsParams defines parameters for listing tools
type ListToolsParams struct {
	PaginatedParams
}

// ListToolsResult defines the response for listing tools
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
	PaginatedResult
}

// CallToolParams defines parameters for calling a tool
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Meta      *Meta           `json:"_meta,omitempty"`
}

// CallToolResult defines the response for tool calls. IsError marks a
// capability that ran and failed; the content then describes the failure.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Text concatenates all text content blocks.
func (r *CallToolResult) Text() string {
	return joinText(r.Content)
}

// ContentType discriminates content blocks
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentImage    ContentType = "image"
	ContentAudio    ContentType = "audio"
	ContentResource ContentType = "resource"
)

// Content is a tagged content block used by tool results, prompts and sampling.
type Content struct {
	Type     ContentType       `json:"type"`
	Text     string            `json:"text,omitempty"`
	Data     string            `json:"data,omitempty"`
	MimeType string            `json:"mimeType,omitempty"`
	Resource *ResourceContents `json:"resource,omitempty"`
}

// TextContent builds a text block.
func TextContent(text string) Content {
	return Content{Type: ContentText, Text: text}
}

// ImageContent builds an image block from base64 data.
func ImageContent(data, mimeType string) Content {
	return Content{Type: ContentImage, Data: data, MimeType: mimeType}
}

func joinText(blocks []Content) string {
	var out string
	for _, c := range blocks {
		switch c.Type {
		case ContentText:
			out += c.Text
		case ContentResource:
			if c.Resource != nil {
				out += c.Resource.Text
			}
		}
	}
	return out
}
