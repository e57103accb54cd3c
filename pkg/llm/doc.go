// Package llm defines the model side of an agent: the Completer interface
// the orchestrator drives, the conversation message types, and an
// OpenAI-compatible chat-completions implementation.
//
//	completer := llm.NewOpenAIClient(
//		llm.WithBaseURL(cfg.LLM.BaseURL),
//		llm.WithAPIKey(cfg.LLM.APIKey),
//		llm.WithModel(cfg.LLM.Model),
//	)
//
// The same completer can answer a provider's sampling requests:
//
//	c := client.New(t, client.WithSamplingHandler(llm.SamplingHandler(completer)))
package llm
