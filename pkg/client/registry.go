package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yosida95/uritemplate/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	mcperrors "github.com/ajitpratap0/mcp-agent-go/pkg/errors"
	"github.com/ajitpratap0/mcp-agent-go/pkg/logging"
	"github.com/ajitpratap0/mcp-agent-go/pkg/observability"
	"github.com/ajitpratap0/mcp-agent-go/pkg/pagination"
	"github.com/ajitpratap0/mcp-agent-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-agent-go/pkg/utils"
)

type listKind int

const (
	listTools listKind = iota
	listResources
	listPrompts
)

// toolEntry compiles its input schema on first use. Entries belong to one
// snapshot, so a refreshed listing never reuses a stale schema.
type toolEntry struct {
	tool   protocol.Tool
	once   sync.Once
	schema *utils.CompiledSchema
	err    error
}

func (e *toolEntry) compiled() (*utils.CompiledSchema, error) {
	e.once.Do(func() {
		e.schema, e.err = utils.CompileSchema(e.tool.InputSchema)
	})
	return e.schema, e.err
}

type toolSnapshot struct {
	list   []protocol.Tool
	byName map[string]*toolEntry
}

func newToolSnapshot(tools []protocol.Tool) *toolSnapshot {
	s := &toolSnapshot{list: tools, byName: make(map[string]*toolEntry, len(tools))}
	for _, t := range tools {
		s.byName[t.Name] = &toolEntry{tool: t}
	}
	return s
}

// staleLists counts invalidations per list so a listing that raced a
// list_changed notification is returned but not cached.
type staleLists struct {
	tools     uint64
	resources uint64
	prompts   uint64
}

func (s *staleLists) counter(kind listKind) *uint64 {
	switch kind {
	case listResources:
		return &s.resources
	case listPrompts:
		return &s.prompts
	default:
		return &s.tools
	}
}

func (c *Client) generation(kind listKind) uint64 {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	return *c.stale.counter(kind)
}

func (c *Client) handleListChanged(kind listKind) func(context.Context, json.RawMessage) {
	return func(context.Context, json.RawMessage) {
		c.cacheMu.Lock()
		*c.stale.counter(kind)++
		switch kind {
		case listTools:
			c.tools = nil
		case listResources:
			c.resources = nil
			c.templates = nil
		case listPrompts:
			c.prompts = nil
		}
		c.cacheMu.Unlock()
		c.logger.Debug("capability list changed", logging.Int("list", int(kind)))
	}
}

// ListTools fetches every page of tools/list and replaces the cached snapshot
func (c *Client) ListTools(ctx context.Context) ([]protocol.Tool, error) {
	gen := c.generation(listTools)
	tools, err := pagination.CollectAll(ctx, func(ctx context.Context, cursor string) ([]protocol.Tool, string, error) {
		var res protocol.ListToolsResult
		params := protocol.ListToolsParams{PaginatedParams: protocol.PaginatedParams{Cursor: cursor}}
		if err := c.call(ctx, protocol.MethodListTools, params, &res); err != nil {
			return nil, "", err
		}
		return res.Tools, res.NextCursor, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	c.cacheMu.Lock()
	if c.stale.tools == gen {
		c.tools = newToolSnapshot(tools)
	}
	c.cacheMu.Unlock()
	return tools, nil
}

// ListResources fetches every page of resources/list and replaces the cached snapshot
func (c *Client) ListResources(ctx context.Context) ([]protocol.Resource, error) {
	gen := c.generation(listResources)
	resources, err := pagination.CollectAll(ctx, func(ctx context.Context, cursor string) ([]protocol.Resource, string, error) {
		var res protocol.ListResourcesResult
		params := protocol.ListResourcesParams{PaginatedParams: protocol.PaginatedParams{Cursor: cursor}}
		if err := c.call(ctx, protocol.MethodListResources, params, &res); err != nil {
			return nil, "", err
		}
		return res.Resources, res.NextCursor, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	if resources == nil {
		resources = []protocol.Resource{}
	}

	c.cacheMu.Lock()
	if c.stale.resources == gen {
		c.resources = resources
	}
	c.cacheMu.Unlock()
	return resources, nil
}

// ListResourceTemplates fetches every page of resources/templates/list and
// replaces the cached snapshot
func (c *Client) ListResourceTemplates(ctx context.Context) ([]protocol.ResourceTemplate, error) {
	gen := c.generation(listResources)
	templates, err := pagination.CollectAll(ctx, func(ctx context.Context, cursor string) ([]protocol.ResourceTemplate, string, error) {
		var res protocol.ListResourceTemplatesResult
		params := protocol.ListResourceTemplatesParams{PaginatedParams: protocol.PaginatedParams{Cursor: cursor}}
		if err := c.call(ctx, protocol.MethodListResourceTemplates, params, &res); err != nil {
			return nil, "", err
		}
		return res.ResourceTemplates, res.NextCursor, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list resource templates: %w", err)
	}
	if templates == nil {
		templates = []protocol.ResourceTemplate{}
	}

	c.cacheMu.Lock()
	if c.stale.resources == gen {
		c.templates = templates
	}
	c.cacheMu.Unlock()
	return templates, nil
}

// ListPrompts fetches every page of prompts/list and replaces the cached snapshot
func (c *Client) ListPrompts(ctx context.Context) ([]protocol.Prompt, error) {
	gen := c.generation(listPrompts)
	prompts, err := pagination.CollectAll(ctx, func(ctx context.Context, cursor string) ([]protocol.Prompt, string, error) {
		var res protocol.ListPromptsResult
		params := protocol.ListPromptsParams{PaginatedParams: protocol.PaginatedParams{Cursor: cursor}}
		if err := c.call(ctx, protocol.MethodListPrompts, params, &res); err != nil {
			return nil, "", err
		}
		return res.Prompts, res.NextCursor, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	if prompts == nil {
		prompts = []protocol.Prompt{}
	}

	c.cacheMu.Lock()
	if c.stale.prompts == gen {
		c.prompts = prompts
	}
	c.cacheMu.Unlock()
	return prompts, nil
}

// Tools returns the cached tool snapshot without I/O. It is nil until
// ListTools runs and after the provider reports the list changed.
func (c *Client) Tools() []protocol.Tool {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	if c.tools == nil {
		return nil
	}
	return append([]protocol.Tool(nil), c.tools.list...)
}

// Resources returns the cached resource snapshot
func (c *Client) Resources() []protocol.Resource {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	return append([]protocol.Resource(nil), c.resources...)
}

// ResourceTemplates returns the cached template snapshot
func (c *Client) ResourceTemplates() []protocol.ResourceTemplate {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	return append([]protocol.ResourceTemplate(nil), c.templates...)
}

// Prompts returns the cached prompt snapshot
func (c *Client) Prompts() []protocol.Prompt {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	return append([]protocol.Prompt(nil), c.prompts...)
}

// lookupTool finds name in the current snapshot, listing first when there
// is none.
func (c *Client) lookupTool(ctx context.Context, name string) (*toolEntry, error) {
	c.cacheMu.RLock()
	snap := c.tools
	c.cacheMu.RUnlock()

	if snap == nil {
		tools, err := c.ListTools(ctx)
		if err != nil {
			return nil, err
		}
		snap = newToolSnapshot(tools)
		c.cacheMu.RLock()
		if c.tools != nil {
			snap = c.tools
		}
		c.cacheMu.RUnlock()
	}

	entry, ok := snap.byName[name]
	if !ok {
		return nil, mcperrors.UnknownCapability("tool", name)
	}
	return entry, nil
}

// InvokeTool validates args against the tool's input schema and calls it.
// A result flagged isError is returned together with a RemoteExecutionError
// so callers can still show its content.
func (c *Client) InvokeTool(ctx context.Context, name string, args json.RawMessage) (*protocol.CallToolResult, error) {
	return c.invokeTool(ctx, name, args, nil)
}

// CallTool marshals args and invokes the tool
func (c *Client) CallTool(ctx context.Context, name string, args interface{}) (*protocol.CallToolResult, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, mcperrors.InvalidArguments(name, err)
	}
	return c.invokeTool(ctx, name, raw, nil)
}

// CallToolWithProgress invokes the tool with a fresh progress token; fn
// receives every progress notification for this call.
func (c *Client) CallToolWithProgress(ctx context.Context, name string, args json.RawMessage, fn ProgressHandler) (*protocol.CallToolResult, error) {
	token := protocol.StringID(uuid.NewString())
	c.addProgressHandler(token, fn)
	defer c.removeProgressHandler(token)

	res, err := c.invokeTool(ctx, name, args, &protocol.Meta{ProgressToken: &token})
	// progress sent before the response is still queued behind it
	if syncErr := c.session.SyncNotifications(ctx); syncErr != nil {
		c.logger.WithError(syncErr).Debug("progress for call may be incomplete", logging.String("tool", name))
	}
	return res, err
}

func (c *Client) invokeTool(ctx context.Context, name string, args json.RawMessage, meta *protocol.Meta) (res *protocol.CallToolResult, err error) {
	ctx, span := observability.StartMethodSpan(ctx, c.tracer, "tool", trace.SpanKindInternal,
		attribute.String("mcp.tool", name))
	start := time.Now()
	defer func() {
		c.metrics.RecordToolCall(name, time.Since(start), err)
		observability.EndSpan(span, err)
	}()

	entry, err := c.lookupTool(ctx, name)
	if err != nil {
		return nil, err
	}

	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage(`{}`)
	}
	if !json.Valid(args) {
		return nil, mcperrors.InvalidArguments(name, errors.New("arguments are not valid JSON"))
	}
	schema, err := entry.compiled()
	if err != nil {
		return nil, mcperrors.InvalidArguments(name, fmt.Errorf("input schema does not compile: %w", err))
	}
	if err := schema.Validate(args); err != nil {
		return nil, mcperrors.InvalidArguments(name, err)
	}

	params := protocol.CallToolParams{Name: name, Arguments: args, Meta: meta}
	var result protocol.CallToolResult
	if err := c.call(ctx, protocol.MethodCallTool, params, &result); err != nil {
		if mcperrors.Is(err, mcperrors.KindRemote) {
			msg := err.Error()
			if mcpErr, ok := mcperrors.AsMCPError(err); ok {
				msg = mcpErr.Message()
			}
			return nil, mcperrors.RemoteExecutionError(name, msg)
		}
		return nil, err
	}
	if result.IsError {
		return &result, mcperrors.RemoteExecutionError(name, result.Text())
	}
	return &result, nil
}

// ReadResource reads the resource at uri
func (c *Client) ReadResource(ctx context.Context, uri string) (*protocol.ReadResourceResult, error) {
	var res protocol.ReadResourceResult
	if err := c.call(ctx, protocol.MethodReadResource, protocol.ReadResourceParams{URI: uri}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ReadTemplate resolves template with params and reads the result
func (c *Client) ReadTemplate(ctx context.Context, template string, params map[string]string) (*protocol.ReadResourceResult, error) {
	uri, err := ResolveTemplate(template, params)
	if err != nil {
		return nil, err
	}
	return c.ReadResource(ctx, uri)
}

// Subscribe asks for notifications/resources/updated when uri changes
func (c *Client) Subscribe(ctx context.Context, uri string) error {
	_, err := c.session.Request(ctx, protocol.MethodSubscribeResource, protocol.SubscribeResourceParams{URI: uri})
	return err
}

// Unsubscribe cancels a Subscribe
func (c *Client) Unsubscribe(ctx context.Context, uri string) error {
	_, err := c.session.Request(ctx, protocol.MethodUnsubscribeResource, protocol.SubscribeResourceParams{URI: uri})
	return err
}

// GetPrompt renders the named prompt. Required arguments are checked
// against the cached descriptor before the request is sent.
func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]string) (*protocol.GetPromptResult, error) {
	c.cacheMu.RLock()
	prompts := c.prompts
	c.cacheMu.RUnlock()
	if prompts == nil {
		var err error
		if prompts, err = c.ListPrompts(ctx); err != nil {
			return nil, err
		}
	}

	var prompt *protocol.Prompt
	for i := range prompts {
		if prompts[i].Name == name {
			prompt = &prompts[i]
			break
		}
	}
	if prompt == nil {
		return nil, mcperrors.UnknownCapability("prompt", name)
	}
	for _, arg := range prompt.Arguments {
		if _, ok := args[arg.Name]; arg.Required && !ok {
			return nil, mcperrors.InvalidArguments(name, fmt.Errorf("missing required argument %q", arg.Name))
		}
	}

	var res protocol.GetPromptResult
	if err := c.call(ctx, protocol.MethodGetPrompt, protocol.GetPromptParams{Name: name, Arguments: args}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// TemplateVariables returns the placeholder names of template in order of
// first appearance.
func TemplateVariables(template string) ([]string, error) {
	tmpl, err := uritemplate.New(template)
	if err != nil {
		return nil, mcperrors.InvalidTemplate(template, err)
	}
	return tmpl.Varnames(), nil
}

// ResolveTemplate substitutes every placeholder of template from params.
// Placeholders without a binding are reported together as a
// MissingTemplateParam error; extra params are ignored. Expansion follows
// RFC 6570: a simple {name} percent-encodes everything outside the unreserved
// set, so "a/b c" becomes "a%2Fb%20c". Use {+name} to keep reserved
// characters such as '/' in place.
func ResolveTemplate(template string, params map[string]string) (string, error) {
	tmpl, err := uritemplate.New(template)
	if err != nil {
		return "", mcperrors.InvalidTemplate(template, err)
	}

	values := uritemplate.Values{}
	var missing []string
	for _, name := range tmpl.Varnames() {
		v, ok := params[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		values.Set(name, uritemplate.String(v))
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", mcperrors.MissingTemplateParam(template, missing)
	}

	uri, err := tmpl.Expand(values)
	if err != nil {
		return "", mcperrors.InvalidTemplate(template, err)
	}
	return uri, nil
}
