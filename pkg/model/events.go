package model

import "context"

// StreamEvent is one of ContentDelta, ToolCallDelta, StreamEnd or StreamFault.
// A stream delivers deltas in upstream order and then exactly one StreamEnd or
// StreamFault, unless its context is cancelled first.
type StreamEvent interface {
	isStreamEvent()
}

// ContentDelta is one text fragment.
type ContentDelta struct {
	Index int
	Text  string
}

// ToolCallDelta carries one piece of a tool_use block: the block start (ID
// and Name set), an input JSON fragment (PartialJSON) or the block end (Stop).
type ToolCallDelta struct {
	Index       int
	ID          string
	Name        string
	PartialJSON string
	Stop        bool
}

// StreamEnd is a clean completion.
type StreamEnd struct {
	StopReason string
	Usage      Usage
}

// StreamFault ends the stream with an error.
type StreamFault struct {
	Err error
}

func (ContentDelta) isStreamEvent()  {}
func (ToolCallDelta) isStreamEvent() {}
func (StreamEnd) isStreamEvent()     {}
func (StreamFault) isStreamEvent()   {}

// Streamer opens one streaming Messages request. Failures before the stream
// starts are returned directly; later failures arrive as StreamFault. The
// channel is closed when the stream ends or ctx is cancelled, and the
// underlying connection is released in both cases.
type Streamer interface {
	StreamMessages(ctx context.Context, req MessagesRequest) (<-chan StreamEvent, error)
}
