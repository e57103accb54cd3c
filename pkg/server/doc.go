// Package server implements the capability provider side of the protocol.
//
// A Server owns an explicit registration table. Capabilities are added
// before or after the agent connects; later changes are announced with the
// matching list_changed notification.
//
//   - AddTool and TypedTool register tools. Input schemas are compiled at
//     registration and every call is validated against them.
//   - AddResource registers a concrete uri; AddResourceTemplate registers a
//     parameterized one whose placeholders are matched from the requested uri.
//   - AddPrompt registers a prompt with its declared arguments.
//
// # Creating a Server
//
//	srv := server.New(transport.NewStdio(),
//	    server.WithName("demo"),
//	    server.WithVersion("1.0.0"),
//	)
//
//	type addArgs struct {
//	    A float64 `json:"a"`
//	    B float64 `json:"b"`
//	}
//	err := server.TypedTool(srv, "add", "Add two numbers",
//	    func(ctx context.Context, rc *server.RequestContext, args addArgs) (*protocol.CallToolResult, error) {
//	        sum := strconv.FormatFloat(args.A+args.B, 'f', -1, 64)
//	        return &protocol.CallToolResult{Content: []protocol.Content{protocol.TextContent(sum)}}, nil
//	    })
//
//	if err := srv.Serve(ctx); err != nil {
//	    // handle error
//	}
//
// # Calling Back Into the Agent
//
// Handlers receive a RequestContext bound to the request being served. It
// can ask the agent's model for a completion (Sample), forward log records
// (Log, Logger) and report progress. ReportProgress does nothing when the
// agent did not supply a progress token.
//
// Handler errors become tool results with isError set; only malformed
// requests and unknown capabilities are answered with JSON-RPC errors.
package server
