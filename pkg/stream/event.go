// Package stream defines the events an agent run emits and their
// server-sent-event framing.
package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Event types as they appear on the wire.
const (
	TypeText       = "text"
	TypeToolUse    = "tool_use"
	TypeToolResult = "tool_result"
	TypeDone       = "done"
	TypeError      = "error"
)

// Event is one of Text, ToolUse, ToolResult, Done or Error.
type Event interface {
	Type() string
	isEvent()
}

// Text is one upstream text fragment, exactly as received.
type Text struct {
	Content string
}

// ToolUse announces a tool invocation requested by the model.
type ToolUse struct {
	Name  string
	Input json.RawMessage
}

// ToolResult reports the output of a tool invocation.
type ToolResult struct {
	Name   string
	Result string
}

// Done ends a successful stream.
type Done struct{}

// Error ends a failed stream.
type Error struct {
	Message string
}

func (Text) Type() string       { return TypeText }
func (ToolUse) Type() string    { return TypeToolUse }
func (ToolResult) Type() string { return TypeToolResult }
func (Done) Type() string       { return TypeDone }
func (Error) Type() string      { return TypeError }

func (Text) isEvent()       {}
func (ToolUse) isEvent()    {}
func (ToolResult) isEvent() {}
func (Done) isEvent()       {}
func (Error) isEvent()      {}

// IsTerminal reports whether ev ends a stream.
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case Done, Error:
		return true
	default:
		return false
	}
}

// payload is the JSON object carried in each frame.
type payload struct {
	Type    string          `json:"type"`
	Content *string         `json:"content,omitempty"`
	Name    *string         `json:"name,omitempty"`
	Input   json.RawMessage `json:"input,omitempty"`
	Result  *string         `json:"result,omitempty"`
	Message *string         `json:"message,omitempty"`
}

// Marshal returns the JSON payload of ev without framing.
func Marshal(ev Event) ([]byte, error) {
	p := payload{Type: ev.Type()}
	var input []byte
	switch e := ev.(type) {
	case Text:
		p.Content = &e.Content
	case ToolUse:
		p.Name = &e.Name
		in, err := wireInput(e.Input)
		if err != nil {
			return nil, err
		}
		input = in
	case ToolResult:
		p.Name = &e.Name
		p.Result = &e.Result
	case Done:
	case Error:
		p.Message = &e.Message
	default:
		return nil, fmt.Errorf("unknown event type %T", ev)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	data := bytes.TrimRight(buf.Bytes(), "\n")
	if input == nil {
		return data, nil
	}

	// The encoder would compact the raw input, so it is appended as given
	// after the other fields.
	out := make([]byte, 0, len(data)+len(input)+len(`,"input":`))
	out = append(out, data[:len(data)-1]...)
	out = append(out, `,"input":`...)
	out = append(out, input...)
	return append(out, '}'), nil
}

// wireInput returns the tool input as it goes on the wire: the bytes given,
// trimmed of surrounding space. Input spanning several lines is compacted,
// since a data field is a single line, and empty input is written as {}.
func wireInput(raw json.RawMessage) ([]byte, error) {
	in := bytes.TrimSpace(raw)
	if len(in) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(in) {
		return nil, fmt.Errorf("tool_use input is not valid JSON: %q", in)
	}
	if bytes.ContainsAny(in, "\r\n") {
		var buf bytes.Buffer
		if err := json.Compact(&buf, in); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return in, nil
}

// Encode frames ev as "data: <json>\n\n". Events are fully constructed
// values, so a marshal failure is a programming error and panics.
func Encode(ev Event) string {
	data, err := Marshal(ev)
	if err != nil {
		panic(fmt.Sprintf("stream: encode %s event: %v", ev.Type(), err))
	}
	return "data: " + string(data) + "\n\n"
}

// Decode parses one frame produced by Encode.
func Decode(frame string) (Event, error) {
	line := strings.TrimRight(frame, "\r\n")
	if !strings.HasPrefix(line, "data:") {
		return nil, fmt.Errorf("frame has no data field: %q", frame)
	}
	data := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")

	var p payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}

	switch p.Type {
	case TypeText:
		return Text{Content: deref(p.Content)}, nil
	case TypeToolUse:
		return ToolUse{Name: deref(p.Name), Input: p.Input}, nil
	case TypeToolResult:
		return ToolResult{Name: deref(p.Name), Result: deref(p.Result)}, nil
	case TypeDone:
		return Done{}, nil
	case TypeError:
		return Error{Message: deref(p.Message)}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", p.Type)
	}
}
