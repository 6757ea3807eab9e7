package bridge

// Wire protocol: newline-delimited JSON objects over the runtime's stdin and
// stdout. Commands carry a request id so responses can be routed back to the
// caller even when a previous call timed out. Runtimes that do not echo the
// id are still supported: id-less responses route to the oldest pending
// request, which matches the runtime's sequential processing order.

// Command is an outbound message to the model runtime.
type Command struct {
	Type       string   `json:"type"`
	ID         string   `json:"id,omitempty"`
	Text       string   `json:"text,omitempty"`
	Labels     []string `json:"labels,omitempty"`
	MultiLabel bool     `json:"multi_label,omitempty"`
}

// Message is an inbound message from the model runtime.
type Message struct {
	Type     string    `json:"type"`
	ID       string    `json:"id,omitempty"`
	Labels   []string  `json:"labels,omitempty"`
	Scores   []float64 `json:"scores,omitempty"`
	Sequence string    `json:"sequence,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Command types understood by the runtime.
const (
	cmdClassify = "classify"
	cmdPing     = "ping"
	cmdShutdown = "shutdown"
)

// Message types emitted by the runtime.
const (
	msgInitialized    = "initialized"
	msgClassification = "classification"
	msgError          = "error"
	msgPong           = "pong"
)

// State describes the bridge lifecycle.
type State int

const (
	// StateUninitialized means no runtime process exists.
	StateUninitialized State = iota
	// StateInitializing means the process is spawned but has not reported
	// the initialized message yet.
	StateInitializing
	// StateReady means the runtime accepts classify/ping commands.
	StateReady
	// StateTerminated means the bridge was shut down.
	StateTerminated
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
