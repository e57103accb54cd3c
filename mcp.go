// Package mcp provides a Golang implementation of an MCP agent and provider (2025-03-26)
package mcp

import (
	"github.com/ajitpratap0/mcp-agent-go/pkg/client"
	"github.com/ajitpratap0/mcp-agent-go/pkg/llm"
	"github.com/ajitpratap0/mcp-agent-go/pkg/orchestrator"
	"github.com/ajitpratap0/mcp-agent-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-agent-go/pkg/server"
	"github.com/ajitpratap0/mcp-agent-go/pkg/transport"
)

// Version represents the current version of the module
const Version = "1.0.0"

// ProtocolVersion is the MCP revision spoken by default
const ProtocolVersion = protocol.ProtocolRevision

// These exports provide direct access to the core components
var (
	// NewClient creates the agent side of a session
	NewClient = client.New

	// NewServer creates the provider side of a session
	NewServer = server.New

	// NewOrchestrator creates the multi-round model/tool loop
	NewOrchestrator = orchestrator.New

	// NewOpenAIClient creates an OpenAI-compatible completer
	NewOpenAIClient = llm.NewOpenAIClient

	// NewStdioTransport creates a newline-delimited transport over a reader and writer
	NewStdioTransport = transport.NewStdioTransport

	// NewStdio creates a transport over the process's stdin and stdout
	NewStdio = transport.NewStdio

	// NewCommandTransport spawns a provider process and talks to it over stdio
	NewCommandTransport = transport.NewCommandTransport

	// NewPipe creates two connected in-memory transports
	NewPipe = transport.NewPipe
)

// Client options
var (
	WithClientName      = client.WithName
	WithClientVersion   = client.WithVersion
	WithClientLogger    = client.WithLogger
	WithSamplingHandler = client.WithSamplingHandler
	WithLoggingHandler  = client.WithLoggingHandler
	WithProgressHandler = client.WithProgressHandler
)

// Server options
var (
	WithServerName    = server.WithName
	WithServerVersion = server.WithVersion
	WithInstructions  = server.WithInstructions
	WithServerLogger  = server.WithLogger
	WithPageSize      = server.WithPageSize
)

// Orchestrator options
var (
	WithMaxRounds    = orchestrator.WithMaxRounds
	WithSystemPrompt = orchestrator.WithSystemPrompt
)

// SamplingHandler answers provider sampling requests with a completer
var SamplingHandler = llm.SamplingHandler
