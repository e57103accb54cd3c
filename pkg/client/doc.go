// Package client provides the agent side of the protocol: it connects to a
// capability provider, discovers and invokes its tools, resources and
// prompts, and serves the callbacks the provider makes back into the agent.
//
// # Connecting
//
//	c := client.New(t,
//	    client.WithName("my-agent"),
//	    client.WithSamplingHandler(llm.SamplingHandler(completer)),
//	    client.WithLogger(logger),
//	)
//	if _, err := c.Connect(ctx); err != nil {
//	    return err
//	}
//	defer c.Close()
//
// # Capability Registry
//
// ListTools, ListResources, ListResourceTemplates and ListPrompts follow
// every page and replace the cached snapshot; Tools, Resources,
// ResourceTemplates and Prompts return the snapshot without I/O. A
// list_changed notification from the provider drops the matching snapshot
// so the next call refetches it.
//
// InvokeTool checks the tool exists in the snapshot and validates the
// arguments against its input schema before anything is sent:
//
//	res, err := c.InvokeTool(ctx, "add", json.RawMessage(`{"a":1,"b":2}`))
//	switch {
//	case mcperrors.Is(err, mcperrors.KindUnknownCapability):
//	case mcperrors.Is(err, mcperrors.KindInvalidArguments):
//	case mcperrors.Is(err, mcperrors.KindRemoteExecution):
//	    // res still carries the provider's error content
//	}
//
// ResolveTemplate expands a resource template; a placeholder without a
// value is a MissingTemplateParam error rather than a literal "{name}".
//
// # Callbacks
//
// Sampling and elicitation requests are answered by the handlers given as
// options; without one the provider receives method-not-found. Log records
// and progress arrive in order on the session's notification worker.
package client
