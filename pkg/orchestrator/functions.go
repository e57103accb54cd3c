package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ajitpratap0/mcp-agent-go/pkg/client"
	mcperrors "github.com/ajitpratap0/mcp-agent-go/pkg/errors"
	"github.com/ajitpratap0/mcp-agent-go/pkg/llm"
	"github.com/ajitpratap0/mcp-agent-go/pkg/logging"
	"github.com/ajitpratap0/mcp-agent-go/pkg/protocol"
)

const maxFunctionName = 64

var invalidFunctionChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

type functionKind int

const (
	functionTool functionKind = iota
	functionTemplate
)

type function struct {
	kind   functionKind
	target string // tool name or uri template
}

// functionTable maps the names offered to the model back to capabilities
type functionTable struct {
	descriptors []llm.ToolDescriptor
	byName      map[string]function
}

func (o *Orchestrator) buildFunctions(ctx context.Context, logger logging.Logger) (*functionTable, error) {
	tools, err := o.registry.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	table := &functionTable{byName: make(map[string]function, len(tools))}
	for _, tool := range tools {
		table.descriptors = append(table.descriptors, llm.ToolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.InputSchema,
		})
		table.byName[tool.Name] = function{kind: functionTool, target: tool.Name}
	}

	if !o.templateFunctions {
		return table, nil
	}
	templates, err := o.registry.ListResourceTemplates(ctx)
	switch {
	case mcperrors.IsCode(err, mcperrors.CodeMethodNotFound):
		// provider serves no resources
		return table, nil
	case err != nil:
		return nil, fmt.Errorf("list resource templates: %w", err)
	}
	for _, tmpl := range templates {
		desc, err := templateDescriptor(tmpl)
		if err != nil {
			logger.WithError(err).Warn("skipping resource template", logging.String("template", tmpl.URITemplate))
			continue
		}
		if _, taken := table.byName[desc.Name]; taken {
			logger.Warn("resource template shadowed by a tool",
				logging.String("template", tmpl.URITemplate),
				logging.String("function", desc.Name),
			)
			continue
		}
		table.descriptors = append(table.descriptors, desc)
		table.byName[desc.Name] = function{kind: functionTemplate, target: tmpl.URITemplate}
	}
	return table, nil
}

// templateDescriptor exposes a template as a function whose parameters are
// its placeholders, all required strings.
func templateDescriptor(tmpl protocol.ResourceTemplate) (llm.ToolDescriptor, error) {
	vars, err := client.TemplateVariables(tmpl.URITemplate)
	if err != nil {
		return llm.ToolDescriptor{}, err
	}
	properties := make(map[string]interface{}, len(vars))
	for _, v := range vars {
		properties[v] = map[string]string{"type": "string"}
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(vars) > 0 {
		schema["required"] = vars
	}
	params, err := json.Marshal(schema)
	if err != nil {
		return llm.ToolDescriptor{}, err
	}

	name := tmpl.Name
	if name == "" {
		name = tmpl.URITemplate
	}
	description := tmpl.Description
	if description == "" {
		description = "Read the resource " + tmpl.URITemplate
	}
	return llm.ToolDescriptor{Name: functionName(name), Description: description, Parameters: params}, nil
}

// functionName coerces name into the character set completion APIs accept
func functionName(name string) string {
	name = invalidFunctionChars.ReplaceAllString(strings.TrimSpace(name), "_")
	if len(name) > maxFunctionName {
		name = name[:maxFunctionName]
	}
	return name
}

// dispatch performs call and returns the text for the tool message
func (t *functionTable) dispatch(ctx context.Context, registry Registry, call llm.ToolCall) (string, error) {
	fn, ok := t.byName[call.Name]
	if !ok {
		return "", mcperrors.UnknownCapability("function", call.Name)
	}

	switch fn.kind {
	case functionTemplate:
		params, err := templateParams(call)
		if err != nil {
			return "", err
		}
		res, err := registry.ReadTemplate(ctx, fn.target, params)
		if err != nil {
			return "", err
		}
		return resourceText(res), nil
	default:
		res, err := registry.InvokeTool(ctx, fn.target, json.RawMessage(call.Arguments))
		if res != nil {
			return res.Text(), err
		}
		return "", err
	}
}

// templateParams decodes the model's arguments into placeholder values.
// Scalars are rendered as their JSON text.
func templateParams(call llm.ToolCall) (map[string]string, error) {
	args := strings.TrimSpace(call.Arguments)
	if args == "" {
		return map[string]string{}, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(args), &raw); err != nil {
		return nil, mcperrors.InvalidArguments(call.Name, err)
	}
	params := make(map[string]string, len(raw))
	for k, v := range raw {
		v = bytes.TrimSpace(v)
		if bytes.Equal(v, []byte("null")) {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			params[k] = s
			continue
		}
		params[k] = string(v)
	}
	return params, nil
}

func resourceText(res *protocol.ReadResourceResult) string {
	var parts []string
	for _, c := range res.Contents {
		if c.IsBlob() {
			parts = append(parts, fmt.Sprintf("[binary resource %s, %s, %d bytes base64]", c.URI, c.MimeType, len(c.Blob)))
			continue
		}
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n")
}
