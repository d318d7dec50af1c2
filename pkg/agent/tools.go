package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/emanuelteklu/cc-sidecar/pkg/errors"
	"github.com/emanuelteklu/cc-sidecar/pkg/model"
	"github.com/emanuelteklu/cc-sidecar/pkg/ops"
)

// ToolSet is what the bridge offers the model. Call returns the text handed
// back as the tool result.
type ToolSet interface {
	Definitions() []model.Tool
	Call(ctx context.Context, name string, input json.RawMessage) (string, error)
}

// maxToolResult bounds what a single tool call sends back upstream.
const maxToolResult = 64 * 1024

const (
	ToolListResearch = "list_research_briefs"
	ToolReadResearch = "read_research_brief"
	ToolReadQueue    = "read_task_queue"
	ToolReadUsage    = "read_token_usage"
)

// WorkspaceTools exposes read-only views of the workspace data.
type WorkspaceTools struct {
	ws *ops.Workspace
}

func NewWorkspaceTools(ws *ops.Workspace) *WorkspaceTools {
	return &WorkspaceTools{ws: ws}
}

var noInputSchema = json.RawMessage(`{"type":"object","properties":{}}`)

func (t *WorkspaceTools) Definitions() []model.Tool {
	return []model.Tool{
		{
			Name:        ToolListResearch,
			Description: "List the overnight research briefs (slug, name, modified time), newest first.",
			InputSchema: noInputSchema,
		},
		{
			Name:        ToolReadResearch,
			Description: "Read the markdown of one research brief by slug.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"slug":{"type":"string","description":"Brief slug, letters, digits, '-' and '_' only"}},"required":["slug"]}`),
		},
		{
			Name:        ToolReadQueue,
			Description: "Read the overnight task queue.",
			InputSchema: noInputSchema,
		},
		{
			Name:        ToolReadUsage,
			Description: "Read the current token usage report.",
			InputSchema: noInputSchema,
		},
	}
}

func (t *WorkspaceTools) Call(ctx context.Context, name string, input json.RawMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var (
		out []byte
		err error
	)
	switch name {
	case ToolListResearch:
		list, lerr := t.ws.Library.List()
		if lerr != nil {
			return "", lerr
		}
		out, err = json.Marshal(list)
	case ToolReadResearch:
		var args struct {
			Slug string `json:"slug"`
		}
		if uerr := json.Unmarshal(input, &args); uerr != nil {
			return "", errors.Wrap(uerr, errors.ErrCodeInvalidInput, "invalid tool input")
		}
		var brief *ops.Brief
		if brief, err = t.ws.Library.Get(args.Slug); err == nil {
			out = []byte(brief.Content)
		}
	case ToolReadQueue:
		out, err = t.ws.Queue.List()
	case ToolReadUsage:
		out, err = t.ws.Usage.Get()
	default:
		return "", errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("unknown tool %q", name))
	}
	if err != nil {
		return "", err
	}

	if len(out) > maxToolResult {
		cut := maxToolResult
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		return string(out[:cut]) + "\n...[truncated]", nil
	}
	return string(out), nil
}
