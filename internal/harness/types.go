package harness

// Trace event types.
const (
	TraceCall     = "call"
	TraceRejected = "rejected"
	TraceRewind   = "rewind"
	TraceSync     = "sync"
)

// TraceEvent records one step outcome. Addresses are symbolized.
type TraceEvent struct {
	Step   int        `json:"step"`
	Type   string     `json:"type"`
	Method string     `json:"method,omitempty"`
	From   string     `json:"from,omitempty"`
	Block  uint64     `json:"block"`
	Error  string     `json:"error,omitempty"`
	Logs   []TraceLog `json:"logs,omitempty"`
}

// TraceLog is one emitted event.
type TraceLog struct {
	Kind   string            `json:"kind"`
	Fields map[string]string `json:"fields"`
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass   bool         `json:"pass"`
	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
