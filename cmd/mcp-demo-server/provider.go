package main

import (
	"context"
	"embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/mcp-agent-go/pkg/logging"
	"github.com/ajitpratap0/mcp-agent-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-agent-go/pkg/server"
)

//go:embed data
var embedded embed.FS

const (
	aboutURI  = "file://data/about.txt"
	avatarURI = "image://avatar.png"
)

// provider holds the state behind the demo capabilities
type provider struct {
	data  fs.FS
	delay time.Duration // per file in process_files
}

func defaultData() fs.FS {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		panic(err)
	}
	return sub
}

type addArgs struct {
	A float64 `json:"a" jsonschema:"description=First addend"`
	B float64 `json:"b" jsonschema:"description=Second addend"`
}

type helloArgs struct {
	Name string `json:"name" jsonschema:"description=The name to greet"`
}

type processFilesArgs struct {
	Files []string `json:"files" jsonschema:"description=Paths of the files to process"`
}

type samplingArgs struct {
	Topic string `json:"topic,omitempty" jsonschema:"description=Theme of the poems"`
}

func textResult(text string) *protocol.CallToolResult {
	return &protocol.CallToolResult{Content: []protocol.Content{protocol.TextContent(text)}}
}

// register adds every demo capability to srv
func (p *provider) register(srv *server.Server) error {
	if err := server.TypedTool(srv, "add", "Add two numbers and return the sum", p.add); err != nil {
		return err
	}
	if err := server.TypedTool(srv, "hello", "Say hello to the given name", p.hello); err != nil {
		return err
	}
	if err := server.TypedTool(srv, "process_files",
		"Process a list of files, reporting progress and log messages along the way", p.processFiles); err != nil {
		return err
	}
	if err := server.TypedTool(srv, "sampling_tool",
		"Ask the agent's language model to write two short poems", p.sample); err != nil {
		return err
	}

	if err := srv.AddResource(protocol.Resource{
		URI:         aboutURI,
		Name:        "about",
		Description: "What this provider can do",
		MimeType:    "text/plain",
	}, p.readAbout); err != nil {
		return err
	}
	if err := srv.AddResource(protocol.Resource{
		URI:         avatarURI,
		Name:        "avatar",
		Description: "The provider's avatar image",
		MimeType:    "image/png",
	}, p.readAvatar); err != nil {
		return err
	}
	if err := srv.AddResourceTemplate(protocol.ResourceTemplate{
		URITemplate: "user://{user_id}",
		Name:        "user_detail",
		Description: "Return the details of the user with the given user_id",
		MimeType:    "application/json",
	}, p.readUser); err != nil {
		return err
	}

	return srv.AddPrompt(protocol.Prompt{
		Name:        "policy_prompt",
		Description: "Summarise a policy text and extract its key points",
		Arguments: []protocol.PromptArgument{
			{Name: "policy", Description: "The policy text to summarise", Required: true},
		},
	}, p.policyPrompt)
}

func (p *provider) add(_ context.Context, _ *server.RequestContext, args addArgs) (*protocol.CallToolResult, error) {
	return textResult(strconv.FormatFloat(args.A+args.B, 'f', -1, 64)), nil
}

func (p *provider) hello(_ context.Context, _ *server.RequestContext, args helloArgs) (*protocol.CallToolResult, error) {
	name := strings.TrimSpace(args.Name)
	if name == "" {
		return nil, fmt.Errorf("name must not be empty")
	}
	return textResult(fmt.Sprintf("Hello, %s!", name)), nil
}

func (p *provider) processFiles(ctx context.Context, rc *server.RequestContext, args processFilesArgs) (*protocol.CallToolResult, error) {
	logger := rc.Logger("process_files")
	total := float64(len(args.Files))
	for i, file := range args.Files {
		if p.delay > 0 {
			select {
			case <-time.After(p.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		logger.Info(fmt.Sprintf("processing file %d of %d", i+1, len(args.Files)), logging.String("file", file))
		if err := rc.ReportProgress(ctx, float64(i+1), &total, file); err != nil {
			return nil, err
		}
	}
	return textResult(fmt.Sprintf("processed %d files", len(args.Files))), nil
}

func (p *provider) sample(ctx context.Context, rc *server.RequestContext, args samplingArgs) (*protocol.CallToolResult, error) {
	topic := args.Topic
	if topic == "" {
		topic = "the sea"
	}
	res, err := rc.Sample(ctx, &protocol.CreateMessageParams{
		Messages: []protocol.SamplingMessage{{
			Role:    protocol.RoleUser,
			Content: protocol.TextContent("Write two short poems on the theme " + strconv.Quote(topic) + "."),
		}},
		MaxTokens: 2048,
	})
	if err != nil {
		return nil, fmt.Errorf("sampling: %w", err)
	}
	return textResult(res.Content.Text), nil
}

func (p *provider) readAbout(_ context.Context, _ *server.RequestContext, uri string) (*protocol.ReadResourceResult, error) {
	body, err := fs.ReadFile(p.data, "about.txt")
	if err != nil {
		return nil, err
	}
	return &protocol.ReadResourceResult{Contents: []protocol.ResourceContents{
		{URI: uri, MimeType: "text/plain", Text: string(body)},
	}}, nil
}

func (p *provider) readAvatar(_ context.Context, _ *server.RequestContext, uri string) (*protocol.ReadResourceResult, error) {
	body, err := fs.ReadFile(p.data, "avatar.png")
	if err != nil {
		return nil, err
	}
	return &protocol.ReadResourceResult{Contents: []protocol.ResourceContents{
		{URI: uri, MimeType: "image/png", Blob: base64.StdEncoding.EncodeToString(body)},
	}}, nil
}

func (p *provider) readUser(_ context.Context, _ *server.RequestContext, uri string, params map[string]string) (*protocol.ReadResourceResult, error) {
	body, err := json.Marshal(map[string]string{
		"user_id":    params["user_id"],
		"username":   "Zhang San",
		"gender":     "male",
		"university": "Peking University",
	})
	if err != nil {
		return nil, err
	}
	return &protocol.ReadResourceResult{Contents: []protocol.ResourceContents{
		{URI: uri, MimeType: "application/json", Text: string(body)},
	}}, nil
}

const policyInstructions = `Here is a policy text: %q
Summarise it using these rules:
1. Extract the key points of the policy.
2. For each key point give
   * Title: the heading of the point, including the concrete measure
   * Audience: who the point applies to
   * Validity: when it starts and ends
   * Departments: who carries it out
Use plain language rather than official wording.`

func (p *provider) policyPrompt(_ context.Context, _ *server.RequestContext, args map[string]string) (*protocol.GetPromptResult, error) {
	return &protocol.GetPromptResult{
		Description: "Policy summary",
		Messages: []protocol.PromptMessage{{
			Role:    protocol.RoleUser,
			Content: protocol.TextContent(fmt.Sprintf(policyInstructions, args["policy"])),
		}},
	}, nil
}
