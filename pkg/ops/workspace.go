package ops

import (
	"github.com/emanuelteklu/cc-sidecar/pkg/config"
	"github.com/emanuelteklu/cc-sidecar/pkg/filestore"
)

// Workspace bundles the data sources the API and the agent tools read.
type Workspace struct {
	Queue   *Queue
	Library *Library
	Usage   *Usage
}

func NewWorkspace(store *filestore.Store, p config.PathsConfig) *Workspace {
	return &Workspace{
		Queue:   NewQueue(store, p.TaskQueue),
		Library: NewLibrary(store, p.ResearchDir),
		Usage:   NewUsage(store, p.TokenUsage),
	}
}
