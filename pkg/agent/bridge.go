// Package agent relays a streaming model conversation to a client as a
// sequence of stream.Events.
package agent

//go:generate mockgen -package=agent -destination=mock_streamer_test.go github.com/emanuelteklu/cc-sidecar/pkg/model Streamer

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/emanuelteklu/cc-sidecar/pkg/errors"
	"github.com/emanuelteklu/cc-sidecar/pkg/model"
	"github.com/emanuelteklu/cc-sidecar/pkg/observability"
	"github.com/emanuelteklu/cc-sidecar/pkg/stream"
)

const (
	// MissingCredentialMessage is the only event of a run without an API key.
	MissingCredentialMessage = "ANTHROPIC_API_KEY not configured"
	timeoutMessage           = "upstream request timed out"

	defaultTimeout   = 5 * time.Minute
	defaultMaxTokens = 4096
)

var errStreamClosed = stderrors.New("upstream stream closed without completing")

// Options configures a Bridge.
type Options struct {
	Model     string
	MaxTokens int
	// Timeout bounds a whole run, tool turns included.
	Timeout time.Duration
	// Tools enables the tool loop. With nil tools every run makes exactly
	// one upstream request.
	Tools ToolSet
	// MaxToolTurns is how many turns may call tools. Later turns still carry
	// the definitions but set tool_choice "none", so the model has to answer
	// in text.
	MaxToolTurns int
	Logger       *observability.Logger
}

// Bridge turns one conversation into one event stream per call to Stream.
// It keeps no per-run state and may be shared between requests.
type Bridge struct {
	streamer model.Streamer
	opts     Options
	logger   *observability.Logger
}

// credentialed is implemented by streamers that know whether they hold an
// API key.
type credentialed interface {
	HasCredential() bool
}

func NewBridge(streamer model.Streamer, opts Options) *Bridge {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.MaxToolTurns < 0 {
		opts.MaxToolTurns = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.Discard()
	}
	return &Bridge{streamer: streamer, opts: opts, logger: logger}
}

func (b *Bridge) hasCredential() bool {
	if b.streamer == nil {
		return false
	}
	if c, ok := b.streamer.(credentialed); ok {
		return c.HasCredential()
	}
	return true
}

// Stream starts a run and returns its events. The channel yields text, tool
// use and tool result events in upstream order, then exactly one Done or
// Error, and is then closed. Cancelling ctx stops the run and closes the
// upstream connection; no further events are sent in that case.
func (b *Bridge) Stream(ctx context.Context, messages []ChatMessage, extraContext string) <-chan stream.Event {
	out := make(chan stream.Event)
	go b.run(ctx, messages, extraContext, out)
	return out
}

type turnState int

const (
	stateConnecting turnState = iota
	stateStreaming
)

// run holds the state of one Stream call.
type run struct {
	b        *Bridge
	id       string
	consumer context.Context // cancelled when the client goes away
	upstream context.Context // consumer plus the run deadline
	out      chan<- stream.Event
	log      *observability.Logger

	events  int
	turns   int
	outcome string
}

func (b *Bridge) run(ctx context.Context, messages []ChatMessage, extraContext string, out chan<- stream.Event) {
	defer close(out)

	id := uuid.NewString()
	ctx, span := observability.StartSpan(ctx, "agent.run", trace.WithAttributes(
		observability.AttrRunID.String(id),
		observability.AttrModel.String(b.opts.Model),
		observability.AttrMessages.Int(len(messages)),
	))
	defer span.End()

	upstream, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	r := &run{
		b:        b,
		id:       id,
		consumer: ctx,
		upstream: upstream,
		out:      out,
		log:      b.logger.WithRun(id).WithContext(ctx),
		outcome:  "cancelled",
	}

	start := time.Now()
	observability.ActiveStreams.Inc()
	defer func() {
		observability.ActiveStreams.Dec()
		observability.AgentRuns.WithLabelValues(r.outcome).Inc()
		span.SetAttributes(observability.AttrRunOutcome.String(r.outcome))
		r.log.RunFinished(r.outcome, r.turns, r.events, float64(time.Since(start).Microseconds())/1000)
	}()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("agent run panicked", "panic", fmt.Sprint(rec))
			r.fail(fmt.Errorf("panic: %v", rec))
		}
	}()

	if !b.hasCredential() {
		r.emit(stream.Error{Message: MissingCredentialMessage})
		return
	}

	history := toModelMessages(messages)
	system := ComposeSystemPrompt(extraContext)

	for turn := 0; ; turn++ {
		canCall := b.opts.Tools != nil && turn < b.opts.MaxToolTurns
		req := model.MessagesRequest{
			Model:     b.opts.Model,
			MaxTokens: b.opts.MaxTokens,
			System:    system,
			Messages:  history,
		}
		if b.opts.Tools != nil {
			// The API rejects tool blocks in the history unless tools are
			// defined.
			req.Tools = b.opts.Tools.Definitions()
			if !canCall {
				req.ToolChoice = &model.ToolChoice{Type: model.ToolChoiceNone}
			}
		}

		res, ok := r.streamTurn(turn, req)
		if !ok {
			return
		}
		if !canCall || res.stopReason != model.StopToolUse || len(res.calls) == 0 {
			r.emit(stream.Done{})
			return
		}

		results := make([]model.ContentBlock, 0, len(res.calls))
		for _, call := range res.calls {
			output, failed := r.callTool(call)
			if !r.emit(stream.ToolResult{Name: call.name, Result: output}) {
				return
			}
			results = append(results, model.ContentBlock{
				Type:      "tool_result",
				ToolUseID: call.id,
				Content:   output,
				IsError:   failed,
			})
		}

		assistant, err := model.BlocksMessage(RoleAssistant, res.blocks)
		if err != nil {
			r.fail(err)
			return
		}
		user, err := model.BlocksMessage(RoleUser, results)
		if err != nil {
			r.fail(err)
			return
		}
		history = append(history, assistant, user)
	}
}

// emit sends ev unless the consumer has gone or the stream already ended.
func (r *run) emit(ev stream.Event) bool {
	if r.outcome != "cancelled" {
		return false
	}
	select {
	case r.out <- ev:
	case <-r.consumer.Done():
		return false
	}
	r.events++
	observability.AgentEvents.WithLabelValues(ev.Type()).Inc()
	switch ev.(type) {
	case stream.Done:
		r.outcome = "done"
	case stream.Error:
		r.outcome = "error"
	}
	return true
}

// fail ends the stream with an Error event. A departed consumer gets nothing.
func (r *run) fail(err error) {
	if r.consumer.Err() != nil {
		return
	}
	appErr := r.classify(err)
	observability.RecordError(r.consumer, err)
	trace.SpanFromContext(r.consumer).SetStatus(codes.Error, appErr.Message)

	attrs := []any{"error", err.Error(), "code", string(appErr.Code)}
	var apiErr *model.APIError
	if stderrors.As(err, &apiErr) && apiErr.IsRateLimitError() {
		attrs = append(attrs, "rate_limited", true, "retry_after", apiErr.RetryAfter.String())
	}
	r.log.Warn("agent run failed", attrs...)
	r.emit(stream.Error{Message: appErr.Message})
}

// classify maps a run failure to its code and client-facing message.
func (r *run) classify(err error) *errors.Error {
	var apiErr *model.APIError
	switch {
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(r.upstream.Err(), context.DeadlineExceeded):
		return errors.Wrap(err, errors.ErrCodeTimeout, timeoutMessage)
	case stderrors.As(err, &apiErr):
		return errors.Wrap(err, errors.ErrCodeUpstream, "API error: "+apiErr.Message)
	default:
		return errors.Wrap(err, errors.ErrCodeInternal, "internal error: "+err.Error())
	}
}

type toolCall struct {
	index   int
	id      string
	name    string
	input   strings.Builder
	decoded json.RawMessage
	invalid error
}

type turnResult struct {
	stopReason string
	blocks     []model.ContentBlock
	calls      []*toolCall
}

// streamTurn relays one upstream response. It returns false once the run is
// over, with the terminal event (if any) already emitted.
func (r *run) streamTurn(turn int, req model.MessagesRequest) (*turnResult, bool) {
	r.turns++
	ctx, span := observability.StartSpan(r.upstream, "agent.turn", trace.WithAttributes(
		observability.AttrTurn.Int(turn),
		observability.AttrToolsOffered.Int(len(req.Tools)),
	))
	defer span.End()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sent := time.Now()
	events, err := r.b.streamer.StreamMessages(ctx, req)
	if err != nil {
		span.RecordError(err)
		r.fail(err)
		return nil, false
	}

	state := stateConnecting
	texts := make(map[int]*strings.Builder)
	calls := make(map[int]*toolCall)
	var finished []*toolCall

	for {
		var ev model.StreamEvent
		select {
		case <-r.consumer.Done():
			return nil, false
		case <-r.upstream.Done():
			r.fail(r.upstream.Err())
			return nil, false
		case next, ok := <-events:
			if !ok {
				if err := r.upstream.Err(); err != nil {
					r.fail(err)
				} else {
					r.fail(errStreamClosed)
				}
				return nil, false
			}
			ev = next
		}

		if state == stateConnecting {
			switch ev.(type) {
			case model.ContentDelta, model.ToolCallDelta:
				state = stateStreaming
				observability.AgentFirstFragment.Observe(time.Since(sent).Seconds())
			}
		}

		switch e := ev.(type) {
		case model.ContentDelta:
			sb, ok := texts[e.Index]
			if !ok {
				sb = &strings.Builder{}
				texts[e.Index] = sb
			}
			sb.WriteString(e.Text)
			if !r.emit(stream.Text{Content: e.Text}) {
				return nil, false
			}

		case model.ToolCallDelta:
			call, ok := calls[e.Index]
			if !ok {
				call = &toolCall{index: e.Index}
				calls[e.Index] = call
			}
			if e.ID != "" {
				call.id = e.ID
			}
			if e.Name != "" {
				call.name = e.Name
			}
			call.input.WriteString(e.PartialJSON)
			if !e.Stop {
				continue
			}
			call.finish()
			finished = append(finished, call)
			if !r.emit(stream.ToolUse{Name: call.name, Input: call.decoded}) {
				return nil, false
			}

		case model.StreamEnd:
			span.SetAttributes(
				observability.AttrStopReason.String(e.StopReason),
				observability.AttrInputTokens.Int(e.Usage.InputTokens),
				observability.AttrOutputTokens.Int(e.Usage.OutputTokens),
			)
			if e.StopReason == model.StopMaxTokens {
				r.log.Warn("upstream response cut off at max_tokens",
					"turn", turn,
					"max_tokens", req.MaxTokens,
				)
			}
			return &turnResult{
				stopReason: e.StopReason,
				blocks:     assistantBlocks(texts, finished),
				calls:      finished,
			}, true

		case model.StreamFault:
			span.RecordError(e.Err)
			r.fail(e.Err)
			return nil, false

		default:
			r.fail(fmt.Errorf("unexpected stream event %T", ev))
			return nil, false
		}
	}
}

// finish parses the accumulated input fragments into compact JSON.
func (c *toolCall) finish() {
	raw := bytes.TrimSpace([]byte(c.input.String()))
	if len(raw) == 0 {
		c.decoded = json.RawMessage("{}")
		return
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		c.invalid = err
		c.decoded = json.RawMessage("{}")
		return
	}
	c.decoded = json.RawMessage(buf.Bytes())
}

func (r *run) callTool(call *toolCall) (string, bool) {
	ctx, span := observability.StartSpan(r.upstream, "agent.tool", trace.WithAttributes(
		observability.AttrToolName.String(call.name),
	))
	defer span.End()

	if call.invalid != nil {
		observability.AgentToolCalls.WithLabelValues(call.name, "failure").Inc()
		return "error: invalid tool input: " + call.invalid.Error(), true
	}

	output, err := r.b.opts.Tools.Call(ctx, call.name, call.decoded)
	if err != nil {
		span.RecordError(err)
		observability.AgentToolCalls.WithLabelValues(call.name, "failure").Inc()
		msg := err.Error()
		if appErr, ok := errors.As(err); ok {
			msg = appErr.ClientMessage()
		}
		r.log.ToolCalled(call.name, true, 0)
		return "error: " + msg, true
	}
	observability.AgentToolCalls.WithLabelValues(call.name, "success").Inc()
	r.log.ToolCalled(call.name, false, len(output))
	return output, false
}

// assistantBlocks rebuilds the assistant turn in content-block order.
func assistantBlocks(texts map[int]*strings.Builder, calls []*toolCall) []model.ContentBlock {
	type indexed struct {
		index int
		block model.ContentBlock
	}
	var all []indexed
	for i, sb := range texts {
		if sb.Len() == 0 {
			continue
		}
		all = append(all, indexed{i, model.ContentBlock{Type: "text", Text: sb.String()}})
	}
	for _, c := range calls {
		all = append(all, indexed{c.index, model.ContentBlock{
			Type:  "tool_use",
			ID:    c.id,
			Name:  c.name,
			Input: c.decoded,
		}})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].index < all[j].index })

	blocks := make([]model.ContentBlock, len(all))
	for i, b := range all {
		blocks[i] = b.block
	}
	return blocks
}
