// Package ops exposes the assistant's workspace data: the overnight task
// queue, research briefs and token usage. All file access goes through
// filestore and therefore through the path guard.
package ops

import (
	"encoding/json"
	"strings"

	"github.com/emanuelteklu/cc-sidecar/pkg/errors"
	"github.com/emanuelteklu/cc-sidecar/pkg/filestore"
)

const (
	DefaultPriority = "normal"
	StatusQueued    = "queued"
)

// Task is one entry appended to the overnight queue.
type Task struct {
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Status      string `json:"status"`
}

// Queue is the JSON list at the task-queue path. Append is an unlocked
// read-modify-write; two concurrent appends can lose one of the tasks.
type Queue struct {
	store *filestore.Store
	path  string
}

func NewQueue(store *filestore.Store, path string) *Queue {
	return &Queue{store: store, path: path}
}

// List returns the persisted queue exactly as stored, or [] when the file
// does not exist.
func (q *Queue) List() (json.RawMessage, error) {
	raw, err := q.store.ReadRaw(q.path)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			return json.RawMessage("[]"), nil
		}
		if errors.IsCode(err, errors.ErrCodeMalformed) {
			return nil, malformedQueue(err)
		}
		return nil, err
	}
	return raw, nil
}

// Append adds a queued task and returns it with the new queue length.
func (q *Queue) Append(description, priority string) (Task, int, error) {
	if strings.TrimSpace(description) == "" {
		return Task{}, 0, errors.New(errors.ErrCodeInvalidInput, "description is required")
	}
	if strings.TrimSpace(priority) == "" {
		priority = DefaultPriority
	}

	var items []json.RawMessage
	raw, err := q.store.ReadRaw(q.path)
	switch {
	case errors.IsCode(err, errors.ErrCodeNotFound):
	case errors.IsCode(err, errors.ErrCodeMalformed):
		return Task{}, 0, malformedQueue(err)
	case err != nil:
		return Task{}, 0, err
	default:
		if string(raw) != "null" {
			if uerr := json.Unmarshal(raw, &items); uerr != nil {
				return Task{}, 0, malformedQueue(uerr)
			}
		}
	}

	task := Task{Description: description, Priority: priority, Status: StatusQueued}
	encoded, err := json.Marshal(task)
	if err != nil {
		return Task{}, 0, errors.Wrap(err, errors.ErrCodeInternal, "encoding task")
	}
	items = append(items, encoded)

	if err := q.store.WriteJSON(q.path, items); err != nil {
		return Task{}, 0, err
	}
	return task, len(items), nil
}

func malformedQueue(cause error) error {
	return errors.Wrap(cause, errors.ErrCodeMalformed, "task queue is not a JSON list").
		WithUserMessage("Task queue is malformed")
}
