package domain

import "time"

// ChatRequest is the OpenAI-compatible inbound payload accepted by the
// daemon. Fields the backend has no concept of (tools, names, tool calls)
// are accepted and carried through untouched so existing clients keep
// working, but they are never interpreted.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream,omitempty"`
	Tools    any       `json:"tools,omitempty"`
}

type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Name      string `json:"name,omitempty"`
	ToolCalls any    `json:"tool_calls,omitempty"`
}

// BackendQuery is the body POSTed to the inference backend.
type BackendQuery struct {
	Question string       `json:"question"`
	Context  QueryContext `json:"context"`
}

// QueryContext carries everything the backend wants to know about the host
// and the session issuing the question.
type QueryContext struct {
	Stdin       string      `json:"stdin"`
	Attachments Attachments `json:"attachments"`
	Terminal    Terminal    `json:"terminal"`
	SystemInfo  SystemInfo  `json:"systeminfo"`
	Daemon      DaemonInfo  `json:"cla"`
}

type Attachments struct {
	Contents string `json:"contents"`
	MimeType string `json:"mimetype"`
}

type Terminal struct {
	Output string `json:"output"`
}

// SystemInfo holds host facts that cannot change without a reboot.
type SystemInfo struct {
	OS      string `json:"os"`
	Version string `json:"version"`
	Arch    string `json:"arch"`
	ID      string `json:"id"`
}

type DaemonInfo struct {
	Version string `json:"version"`
}

// BackendAnswer is the useful part of the backend response. An empty Text
// is a valid answer, not an error.
type BackendAnswer struct {
	Text string
}

type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
	Gateway *Gateway `json:"x_gateway,omitempty"`
}

type Choice struct {
	Index        int      `json:"index"`
	Message      *Message `json:"message,omitempty"`
	Delta        *Delta   `json:"delta,omitempty"`
	FinishReason string   `json:"finish_reason,omitempty"`
}

type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Gateway is daemon-added response metadata. UsageEstimated marks token
// counts derived from word-count heuristics rather than reported by the
// backend.
type Gateway struct {
	RequestID      string `json:"request_id"`
	LatencyMs      int64  `json:"latency_ms"`
	CacheHit       bool   `json:"cache_hit"`
	UsageEstimated bool   `json:"usage_estimated"`
	TraceID        string `json:"trace_id,omitempty"`
}

// StreamChunk is one SSE frame of an emulated streaming response. All
// chunks of one answer share the same ID; the terminal chunk carries
// finish_reason "stop" and an empty delta.
type StreamChunk struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

// HistoryEntry is one persisted question/answer turn. Entries are
// append-only; (SessionID, SequenceNo) is unique and SequenceNo is
// gap-free per session.
type HistoryEntry struct {
	SessionID  string    `json:"session_id"`
	SequenceNo int64     `json:"sequence_no"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	CreatedAt  time.Time `json:"created_at"`
}

type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type ModelsResponse struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}
