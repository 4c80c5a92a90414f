package axon

// Hooks receives lifecycle callbacks during an execution, in order:
// OnThinkStart, OnThinkEnd, then per tool call OnToolStart followed by
// OnToolEnd or OnToolError, OnIteration at the end of each round, and
// OnFinalAnswer once. All methods are optional — embed NopHooks and
// override what you need. Callbacks run synchronously on the driver's
// goroutine; keep them fast.
type Hooks interface {
	OnThinkStart(agent string, messages []ChatMessage)
	OnThinkEnd(agent string, response ChatMessage)
	OnToolStart(agent, tool string, args []byte)
	OnToolEnd(agent, tool, result string)
	OnToolError(agent, tool string, err error)
	OnIteration(agent string, i int)
	OnFinalAnswer(agent, answer string)
}

// NopHooks implements Hooks with no-ops for embedding.
type NopHooks struct{}

func (NopHooks) OnThinkStart(string, []ChatMessage) {}
func (NopHooks) OnThinkEnd(string, ChatMessage)     {}
func (NopHooks) OnToolStart(string, string, []byte) {}
func (NopHooks) OnToolEnd(string, string, string)   {}
func (NopHooks) OnToolError(string, string, error)  {}
func (NopHooks) OnIteration(string, int)            {}
func (NopHooks) OnFinalAnswer(string, string)       {}

var _ Hooks = NopHooks{}
