// Package axon is an agent execution framework: given a natural
// language task and a set of capabilities (tools, sub-agents,
// memories), it drives an LLM through an iterative reasoning-then-
// acting loop until the model produces a final answer.
//
// The core pieces:
//
//   - Driver: the ReAct loop. Execute for one-shot tasks, Chat for
//     multi-turn conversations, ExecuteStream for event streaming.
//   - Tool / ToolRegistry / Dispatcher: named, schema-described
//     capabilities executed in parallel under a concurrency bound with
//     per-call timeout, bounded retry, and approval gating.
//   - ContextBuffer + Compressor: token-budget enforcement with
//     sliding-window, summarizing, and staged compression.
//   - SubAgentRegistry: named sub-agents with strict context isolation;
//     concurrent calls to one sub-agent serialize on its lock.
//   - KvStore / SessionStore: namespaced long-term memory with keyword
//     search, and per-session snapshots for resumability. Backends live
//     in store/memory, store/jsonfile, and store/sqlite.
//   - Provider: the LLM transport. provider/openaicompat speaks the
//     OpenAI chat completions protocol; WithRetry adds exponential
//     backoff on transient failures.
//
// A minimal agent:
//
//	llm := axon.WithRetry(openaicompat.New(apiKey, "gpt-4.1", baseURL))
//	agent := axon.NewDriver("assistant", llm,
//		axon.WithSystemPrompt("You are a helpful assistant."),
//		axon.WithTools(calc.New()),
//	)
//	answer, err := agent.Execute(ctx, "compute 3 + 4")
package axon
