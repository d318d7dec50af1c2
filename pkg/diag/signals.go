package diag

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"golang.org/x/sync/errgroup"

	"github.com/emanuelteklu/cc-sidecar/pkg/observability"
)

// DateLayout matches git's %ai rendering.
const DateLayout = "2006-01-02 15:04:05 -0700"

const (
	defaultWindow      = 7 * 24 * time.Hour
	defaultLimit       = 50
	defaultRepoTimeout = 5 * time.Second
	scanConcurrency    = 4
)

// Commit is one entry of GET /api/signals.
type Commit struct {
	Type    string `json:"type"`
	Repo    string `json:"repo"`
	Hash    string `json:"hash"`
	Message string `json:"message"`
	Date    string `json:"date"`
	Seed    string `json:"seed"`

	when time.Time
}

// SignalOptions configures a SignalScanner.
type SignalOptions struct {
	DevDir      string
	Window      time.Duration
	Limit       int
	RepoTimeout time.Duration
	Logger      *observability.Logger
}

// SignalScanner lists recent commits from every repository directly under a
// development directory.
type SignalScanner struct {
	opts   SignalOptions
	logger *observability.Logger
	now    func() time.Time
}

func NewSignalScanner(opts SignalOptions) *SignalScanner {
	if opts.Window <= 0 {
		opts.Window = defaultWindow
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	if opts.RepoTimeout <= 0 {
		opts.RepoTimeout = defaultRepoTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.Discard()
	}
	return &SignalScanner{opts: opts, logger: logger, now: time.Now}
}

// Scan never fails: unreadable directories and broken repositories are
// logged and skipped. The result is newest first and never nil.
func (s *SignalScanner) Scan(ctx context.Context) []Commit {
	repos, err := s.repositories()
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("signals: cannot read dev dir", "dir", s.opts.DevDir, "error", err)
		}
		return []Commit{}
	}

	since := s.now().Add(-s.opts.Window)
	found := make([][]Commit, len(repos))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)
	for i, repo := range repos {
		g.Go(func() error {
			commits, err := s.scanRepo(gctx, repo, since)
			if err != nil {
				observability.SignalRepoFailures.Inc()
				s.logger.Warn("signals: skipping repository", "repo", repo, "error", err)
				return nil
			}
			found[i] = commits
			return nil
		})
	}
	_ = g.Wait()

	all := make([]Commit, 0)
	for _, commits := range found {
		all = append(all, commits...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].when.After(all[j].when)
	})
	if len(all) > s.opts.Limit {
		all = all[:s.opts.Limit]
	}
	return all
}

// repositories returns the directories under DevDir that have a .git entry,
// sorted by name.
func (s *SignalScanner) repositories() ([]string, error) {
	entries, err := os.ReadDir(s.opts.DevDir)
	if err != nil {
		return nil, err
	}
	var repos []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(s.opts.DevDir, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
			continue
		}
		repos = append(repos, dir)
	}
	return repos, nil
}

func (s *SignalScanner) scanRepo(ctx context.Context, dir string, since time.Time) ([]Commit, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RepoTimeout)
	defer cancel()

	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		// No commits yet.
		if stderrors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get HEAD: %w", err)
	}

	// Newest committer time first: the walk ends at the first commit outside
	// the window, and ctx is checked on every step.
	iter, err := repo.Log(&git.LogOptions{
		From:  head.Hash(),
		Order: git.LogOrderCommitterTime,
	})
	if err != nil {
		return nil, fmt.Errorf("get log: %w", err)
	}
	defer iter.Close()

	name := filepath.Base(dir)
	var commits []Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.Committer.When.Before(since) {
			return storer.ErrStop
		}
		subject, _, _ := strings.Cut(c.Message, "\n")
		subject = strings.TrimSpace(subject)
		commits = append(commits, Commit{
			Type:    "commit",
			Repo:    name,
			Hash:    c.Hash.String()[:8],
			Message: subject,
			Date:    c.Author.When.Format(DateLayout),
			Seed:    fmt.Sprintf("[%s] %s", name, subject),
			when:    c.Author.When,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk log: %w", err)
	}
	return commits, nil
}
