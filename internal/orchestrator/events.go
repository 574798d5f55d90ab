// Package orchestrator turns one question into a strictly ordered sequence of
// progress events: retrieval, code generation, code sanitation, execution,
// and result streaming over a single logical response stream.
package orchestrator

// ContentType tags what kind of payload an event carries.
type ContentType string

// Event content types.
const (
	ContentText   ContentType = "text"
	ContentCode   ContentType = "code"
	ContentData   ContentType = "data"
	ContentResult ContentType = "result"
	ContentError  ContentType = "error"
)

// ContentStatus tags where an event sits inside its content block.
type ContentStatus string

// Event content statuses.
const (
	StatusStart      ContentStatus = "start"
	StatusInProgress ContentStatus = "in_progress"
	StatusEnd        ContentStatus = "end"
)

// Event is one streamed progress or result message. Exactly one event per
// request has Finished=1, and it is always the last event emitted.
type Event struct {
	Answer        string        `json:"answer"`
	Finished      int           `json:"finished"`
	ContentType   ContentType   `json:"content_type"`
	ContentStatus ContentStatus `json:"content_status"`
	ChatID        string        `json:"chat_id"`
	ResponseID    string        `json:"response_id"`
}

// Envelope is the wire wrapper around every event.
type Envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data Event  `json:"data"`
}

// Wrap puts an event into the standard success envelope.
func Wrap(ev Event) Envelope {
	return Envelope{Code: 0, Msg: "success", Data: ev}
}

// Sink receives events in order. A Sink must not reorder or batch across
// stages; an error means the client is unreachable and the run stops.
type Sink func(Event) error
