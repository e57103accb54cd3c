// Package mcp is the root of an MCP agent and provider implementation.
//
// An agent connects to a capability provider over a duplex transport,
// discovers its tools, resources, resource templates and prompts, and lets a
// language model call them over several rounds until it can answer. The
// provider may call back into the agent for sampling, and it may send log
// records and progress updates while a call is running.
//
// # Overview
//
// The module consists of several packages:
//
//   - pkg/protocol: JSON-RPC envelopes, the message codec and MCP payload types
//   - pkg/transport: newline-delimited stdio, child-process and in-memory transports
//   - pkg/session: request correlation, dispatch and the initialize handshake
//   - pkg/client: the agent side, with a capability registry and callback router
//   - pkg/server: the provider side, with an explicit registration table
//   - pkg/orchestrator: the multi-round loop between model and provider
//   - pkg/llm: the Completer interface and an OpenAI-compatible adapter
//   - pkg/errors: the error taxonomy shared by every package
//   - pkg/logging, pkg/observability: structured logs, Prometheus metrics and tracing
//   - pkg/config: TOML and environment configuration for the commands
//
// # Running a Provider
//
//	srv := mcp.NewServer(mcp.NewStdio(), mcp.WithServerName("calc"))
//	err := server.TypedTool(srv, "add", "Add two numbers",
//	    func(ctx context.Context, rc *server.RequestContext, args addArgs) (*protocol.CallToolResult, error) {
//	        sum := strconv.FormatFloat(args.A+args.B, 'f', -1, 64)
//	        return &protocol.CallToolResult{Content: []protocol.Content{protocol.TextContent(sum)}}, nil
//	    })
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(srv.Serve(ctx))
//
// # Running an Agent
//
//	t, err := mcp.NewCommandTransport(ctx, "./mcp-demo-server", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	model := mcp.NewOpenAIClient(llm.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
//	c := mcp.NewClient(t, mcp.WithSamplingHandler(mcp.SamplingHandler(model)))
//	defer c.Close()
//	if _, err := c.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := mcp.NewOrchestrator(c, model).Run(ctx, "What is 1 + 0.00001?")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Answer)
//
// The cmd/mcp-demo-server and cmd/mcp-agent commands wire all of this
// together with configuration, logging, metrics and tracing.
package mcp
