// Package pathguard confines file access to a fixed set of directories.
package pathguard

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/emanuelteklu/cc-sidecar/pkg/errors"
)

// maxLinkHops bounds how many dangling symlinks resolve will follow.
const maxLinkHops = 40

// Guard validates paths against allowed bases. It holds no mutable state and
// is safe for concurrent use.
type Guard struct {
	bases []string
}

// New resolves each base once. Bases that do not exist yet are resolved
// through their deepest existing ancestor.
func New(bases ...string) (*Guard, error) {
	if len(bases) == 0 {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "no allowed base directories configured")
	}

	resolved := make([]string, 0, len(bases))
	seen := make(map[string]bool, len(bases))
	for _, base := range bases {
		if strings.TrimSpace(base) == "" {
			return nil, errors.New(errors.ErrCodeConfigInvalid, "empty allowed base directory")
		}
		r, err := resolve(base, 0)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "resolving allowed base").
				WithContext("base", base)
		}
		if !seen[r] {
			seen[r] = true
			resolved = append(resolved, r)
		}
	}
	return &Guard{bases: resolved}, nil
}

// Bases returns the resolved allowed directories.
func (g *Guard) Bases() []string {
	return append([]string(nil), g.bases...)
}

// Validate returns the fully resolved form of requested when it is one of the
// bases or lies beneath one. Callers must use the returned path for I/O.
func (g *Guard) Validate(requested string) (string, error) {
	if strings.TrimSpace(requested) == "" || strings.ContainsRune(requested, 0) {
		return "", notAllowed(requested, nil)
	}

	resolved, err := resolve(requested, 0)
	if err != nil {
		return "", notAllowed(requested, err)
	}

	for _, base := range g.bases {
		if within(base, resolved) {
			return resolved, nil
		}
	}
	return "", notAllowed(requested, nil)
}

func notAllowed(requested string, cause error) error {
	msg := "Path not allowed"
	if cause != nil {
		return errors.Wrap(cause, errors.ErrCodePathNotAllowed, msg).WithContext("path", requested)
	}
	return errors.New(errors.ErrCodePathNotAllowed, msg).WithContext("path", requested)
}

// within reports whether p is base or a descendant of it, comparing whole
// path components.
func within(base, p string) bool {
	if p == base {
		return true
	}
	prefix := base
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(p, prefix)
}

// resolve makes p absolute and resolves every symlink in it. Missing trailing
// components are joined onto their resolved parent; a symlink whose target
// does not exist is followed to that target so it cannot smuggle a later
// write outside the bases.
func resolve(p string, hops int) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	parent := filepath.Dir(abs)
	if parent == abs {
		return abs, nil
	}

	info, lerr := os.Lstat(abs)
	if lerr == nil && info.Mode()&os.ModeSymlink != 0 {
		if hops >= maxLinkHops {
			return "", fmt.Errorf("too many levels of symbolic links: %s", abs)
		}
		target, err := os.Readlink(abs)
		if err != nil {
			return "", err
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(parent, target)
		}
		return resolve(target, hops+1)
	}

	resolvedParent, err := resolve(parent, hops)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(abs)), nil
}
