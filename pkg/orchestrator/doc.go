// Package orchestrator runs the multi-round loop between a language model
// and a connected provider.
//
// Each round asks the model for the next message. If the message requests
// function calls, every call is executed in the order the model gave them
// and its result is appended as a tool message carrying the call id; then
// the model is asked again. A text reply ends the run. Provider tools are
// offered to the model directly and resource templates are offered as
// functions whose parameters are the template's placeholders.
//
//	o := orchestrator.New(c, completer, orchestrator.WithMaxRounds(5))
//	res, err := o.Run(ctx, "What is 1 + 0.00001?")
//	if mcperrors.Is(err, mcperrors.KindRoundLimitExceeded) {
//		fmt.Println("partial:", res.Answer)
//	}
package orchestrator
