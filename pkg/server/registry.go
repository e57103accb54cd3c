package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yosida95/uritemplate/v3"

	"github.com/ajitpratap0/mcp-agent-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-agent-go/pkg/utils"
)

// ToolHandler runs one tool call. A returned error is reported to the agent
// as a result with isError set, never as a protocol failure.
type ToolHandler func(ctx context.Context, rc *RequestContext, args json.RawMessage) (*protocol.CallToolResult, error)

// ResourceHandler reads a concrete resource
type ResourceHandler func(ctx context.Context, rc *RequestContext, uri string) (*protocol.ReadResourceResult, error)

// TemplateHandler reads a resource addressed through a template. params
// holds the placeholder values matched from uri.
type TemplateHandler func(ctx context.Context, rc *RequestContext, uri string, params map[string]string) (*protocol.ReadResourceResult, error)

// PromptHandler renders a prompt
type PromptHandler func(ctx context.Context, rc *RequestContext, args map[string]string) (*protocol.GetPromptResult, error)

var (
	// ErrDuplicate is returned when a name or uri is registered twice
	ErrDuplicate = errors.New("already registered")
	// ErrInvalidRegistration is returned for descriptors missing required fields
	ErrInvalidRegistration = errors.New("invalid registration")
)

var defaultInputSchema = json.RawMessage(`{"type":"object"}`)

type registeredTool struct {
	tool    protocol.Tool
	schema  *utils.CompiledSchema
	handler ToolHandler
}

type registeredResource struct {
	resource protocol.Resource
	handler  ResourceHandler
}

type registeredTemplate struct {
	template protocol.ResourceTemplate
	parsed   *uritemplate.Template
	handler  TemplateHandler
}

type registeredPrompt struct {
	prompt  protocol.Prompt
	handler PromptHandler
}

// registry keeps capabilities in registration order
type registry struct {
	tools     []*registeredTool
	resources []*registeredResource
	templates []*registeredTemplate
	prompts   []*registeredPrompt
}

// AddTool registers a tool. The input schema must compile; an empty schema
// accepts any object.
func (s *Server) AddTool(tool protocol.Tool, handler ToolHandler) error {
	if tool.Name == "" || handler == nil {
		return fmt.Errorf("%w: tool needs a name and a handler", ErrInvalidRegistration)
	}
	if len(tool.InputSchema) == 0 {
		tool.InputSchema = defaultInputSchema
	}
	schema, err := utils.CompileSchema(tool.InputSchema)
	if err != nil {
		return fmt.Errorf("%w: tool %q: %v", ErrInvalidRegistration, tool.Name, err)
	}

	s.mu.Lock()
	for _, t := range s.registry.tools {
		if t.tool.Name == tool.Name {
			s.mu.Unlock()
			return fmt.Errorf("tool %q %w", tool.Name, ErrDuplicate)
		}
	}
	s.registry.tools = append(s.registry.tools, &registeredTool{tool: tool, schema: schema, handler: handler})
	s.mu.Unlock()

	s.listChanged(protocol.MethodToolsListChanged)
	return nil
}

// TypedTool registers a tool whose input schema is reflected from A.
// Arguments are validated against that schema and decoded into A before
// handler runs.
func TypedTool[A any](s *Server, name, description string, handler func(ctx context.Context, rc *RequestContext, args A) (*protocol.CallToolResult, error)) error {
	schema, err := utils.ReflectSchema[A](false)
	if err != nil {
		return fmt.Errorf("%w: tool %q: %v", ErrInvalidRegistration, name, err)
	}
	tool := protocol.Tool{Name: name, Description: description, InputSchema: schema}
	return s.AddTool(tool, func(ctx context.Context, rc *RequestContext, raw json.RawMessage) (*protocol.CallToolResult, error) {
		var args A
		if err := utils.JSONToStruct(raw, &args); err != nil {
			return nil, fmt.Errorf("decode arguments: %w", err)
		}
		return handler(ctx, rc, args)
	})
}

// RemoveTool unregisters a tool and reports whether it existed
func (s *Server) RemoveTool(name string) bool {
	s.mu.Lock()
	removed := false
	for i, t := range s.registry.tools {
		if t.tool.Name == name {
			s.registry.tools = append(s.registry.tools[:i:i], s.registry.tools[i+1:]...)
			removed = true
			break
		}
	}
	s.mu.Unlock()

	if removed {
		s.listChanged(protocol.MethodToolsListChanged)
	}
	return removed
}

// AddResource registers a concrete resource
func (s *Server) AddResource(resource protocol.Resource, handler ResourceHandler) error {
	if resource.URI == "" || handler == nil {
		return fmt.Errorf("%w: resource needs a uri and a handler", ErrInvalidRegistration)
	}
	if resource.Name == "" {
		resource.Name = resource.URI
	}

	s.mu.Lock()
	for _, r := range s.registry.resources {
		if r.resource.URI == resource.URI {
			s.mu.Unlock()
			return fmt.Errorf("resource %q %w", resource.URI, ErrDuplicate)
		}
	}
	s.registry.resources = append(s.registry.resources, &registeredResource{resource: resource, handler: handler})
	s.mu.Unlock()

	s.listChanged(protocol.MethodResourcesListChanged)
	return nil
}

// AddResourceTemplate registers a parameterized resource. The template is
// parsed here so a malformed one fails at registration.
func (s *Server) AddResourceTemplate(template protocol.ResourceTemplate, handler TemplateHandler) error {
	if template.URITemplate == "" || handler == nil {
		return fmt.Errorf("%w: template needs a uriTemplate and a handler", ErrInvalidRegistration)
	}
	parsed, err := uritemplate.New(template.URITemplate)
	if err != nil {
		return fmt.Errorf("%w: template %q: %v", ErrInvalidRegistration, template.URITemplate, err)
	}
	if template.Name == "" {
		template.Name = template.URITemplate
	}

	s.mu.Lock()
	for _, t := range s.registry.templates {
		if t.template.URITemplate == template.URITemplate {
			s.mu.Unlock()
			return fmt.Errorf("template %q %w", template.URITemplate, ErrDuplicate)
		}
	}
	s.registry.templates = append(s.registry.templates, &registeredTemplate{template: template, parsed: parsed, handler: handler})
	s.mu.Unlock()

	s.listChanged(protocol.MethodResourcesListChanged)
	return nil
}

// AddPrompt registers a prompt
func (s *Server) AddPrompt(prompt protocol.Prompt, handler PromptHandler) error {
	if prompt.Name == "" || handler == nil {
		return fmt.Errorf("%w: prompt needs a name and a handler", ErrInvalidRegistration)
	}

	s.mu.Lock()
	for _, p := range s.registry.prompts {
		if p.prompt.Name == prompt.Name {
			s.mu.Unlock()
			return fmt.Errorf("prompt %q %w", prompt.Name, ErrDuplicate)
		}
	}
	s.registry.prompts = append(s.registry.prompts, &registeredPrompt{prompt: prompt, handler: handler})
	s.mu.Unlock()

	s.listChanged(protocol.MethodPromptsListChanged)
	return nil
}

func (s *Server) findTool(name string) *registeredTool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.registry.tools {
		if t.tool.Name == name {
			return t
		}
	}
	return nil
}

func (s *Server) findPrompt(name string) *registeredPrompt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.registry.prompts {
		if p.prompt.Name == name {
			return p
		}
	}
	return nil
}

// matchResource finds the handler for uri: an exact resource first, then
// the first template that matches.
func (s *Server) matchResource(uri string) (*registeredResource, *registeredTemplate, map[string]string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.registry.resources {
		if r.resource.URI == uri {
			return r, nil, nil
		}
	}
	for _, t := range s.registry.templates {
		values := t.parsed.Match(uri)
		if values == nil {
			continue
		}
		params := make(map[string]string, len(values))
		for _, name := range t.parsed.Varnames() {
			if v := values.Get(name); v.Valid() {
				params[name] = v.String()
			}
		}
		return nil, t, params
	}
	return nil, nil, nil
}

func (s *Server) toolList() []protocol.Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]protocol.Tool, len(s.registry.tools))
	for i, t := range s.registry.tools {
		out[i] = t.tool
	}
	return out
}

func (s *Server) resourceList() []protocol.Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]protocol.Resource, len(s.registry.resources))
	for i, r := range s.registry.resources {
		out[i] = r.resource
	}
	return out
}

func (s *Server) templateList() []protocol.ResourceTemplate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]protocol.ResourceTemplate, len(s.registry.templates))
	for i, t := range s.registry.templates {
		out[i] = t.template
	}
	return out
}

func (s *Server) promptList() []protocol.Prompt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]protocol.Prompt, len(s.registry.prompts))
	for i, p := range s.registry.prompts {
		out[i] = p.prompt
	}
	return out
}
