package failover

// Reasons carried by ModelSwitch events.
const (
	ReasonRetryWithNextAuth = "retry with next auth"
	ReasonWaitAndRetry      = "wait and retry"
	ReasonFailoverToNext    = "failover to next model"
)

// AgentEvent is a lifecycle notification pushed to the caller's sink.
type AgentEvent interface {
	agentEvent()
}

// ModelSwitch is emitted once each time the loop moves to another model.
type ModelSwitch struct {
	From   string
	To     string
	Reason string
}

func (ModelSwitch) agentEvent() {}

// EventSink receives events synchronously on the orchestrating goroutine.
type EventSink func(AgentEvent)
