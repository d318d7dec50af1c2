package pathguard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/emanuelteklu/cc-sidecar/pkg/errors"
)

// setupBase returns a resolved temp directory so comparisons survive
// platforms where TMPDIR is itself a symlink.
func setupBase(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("eval temp dir: %v", err)
	}
	return dir
}

func mustGuard(t *testing.T, bases ...string) *Guard {
	t.Helper()
	g, err := New(bases...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestValidate_AllowsBaseAndChildren(t *testing.T) {
	base := setupBase(t)
	if err := os.MkdirAll(filepath.Join(base, "data"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, "data", "q.json"), []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}
	g := mustGuard(t, base)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"base itself", base, base},
		{"existing file", filepath.Join(base, "data", "q.json"), filepath.Join(base, "data", "q.json")},
		{"missing file", filepath.Join(base, "data", "new.json"), filepath.Join(base, "data", "new.json")},
		{"missing nested", filepath.Join(base, "a", "b", "c.md"), filepath.Join(base, "a", "b", "c.md")},
		{"dot segments inside", filepath.Join(base, "data", "..", "data", "q.json"), filepath.Join(base, "data", "q.json")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Validate(tt.in)
			if err != nil {
				t.Fatalf("Validate(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("Validate(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidate_RejectsOutside(t *testing.T) {
	base := setupBase(t)
	g := mustGuard(t, base)

	rejects := []string{
		filepath.Join(base, "..", "..", "etc", "passwd"),
		"/etc/passwd",
		base + "ment",
		filepath.Dir(base),
		"",
	}

	for _, p := range rejects {
		if _, err := g.Validate(p); !errors.IsCode(err, errors.ErrCodePathNotAllowed) {
			t.Errorf("Validate(%q) error = %v, want PATH_NOT_ALLOWED", p, err)
		}
	}
}

func TestValidate_RelativeTraversal(t *testing.T) {
	base := setupBase(t)
	g := mustGuard(t, base)

	t.Chdir(base)
	if _, err := g.Validate("../../etc/passwd"); !errors.IsCode(err, errors.ErrCodePathNotAllowed) {
		t.Fatalf("expected traversal to be rejected, got %v", err)
	}
	got, err := g.Validate("notes.md")
	if err != nil {
		t.Fatalf("relative child should be allowed: %v", err)
	}
	if got != filepath.Join(base, "notes.md") {
		t.Fatalf("got %q", got)
	}
}

func TestValidate_SymlinkEscape(t *testing.T) {
	base := setupBase(t)
	outside := setupBase(t)
	if err := os.WriteFile(filepath.Join(outside, "secret"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(base, "escape")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	g := mustGuard(t, base)

	for _, p := range []string{
		filepath.Join(base, "escape"),
		filepath.Join(base, "escape", "secret"),
		filepath.Join(base, "escape", "not-yet-created"),
	} {
		if _, err := g.Validate(p); !errors.IsCode(err, errors.ErrCodePathNotAllowed) {
			t.Errorf("Validate(%q) error = %v, want PATH_NOT_ALLOWED", p, err)
		}
	}
}

func TestValidate_DanglingSymlinkEscape(t *testing.T) {
	base := setupBase(t)
	outside := setupBase(t)
	target := filepath.Join(outside, "planted.json")
	if err := os.Symlink(target, filepath.Join(base, "queue.json")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	g := mustGuard(t, base)

	if _, err := g.Validate(filepath.Join(base, "queue.json")); !errors.IsCode(err, errors.ErrCodePathNotAllowed) {
		t.Fatalf("dangling link to outside should be rejected, got %v", err)
	}
}

func TestValidate_SymlinkInsideBase(t *testing.T) {
	base := setupBase(t)
	realDir := filepath.Join(base, "realDir")
	if err := os.MkdirAll(realDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(realDir, filepath.Join(base, "alias")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	g := mustGuard(t, base)

	got, err := g.Validate(filepath.Join(base, "alias", "note.md"))
	if err != nil {
		t.Fatalf("link inside base should be allowed: %v", err)
	}
	if got != filepath.Join(realDir, "note.md") {
		t.Fatalf("got %q, want resolved target", got)
	}
}

func TestValidate_MultipleBases(t *testing.T) {
	a := setupBase(t)
	b := setupBase(t)
	g := mustGuard(t, a, b)

	if len(g.Bases()) != 2 {
		t.Fatalf("Bases() = %v", g.Bases())
	}
	for _, p := range []string{filepath.Join(a, "x"), filepath.Join(b, "y")} {
		if _, err := g.Validate(p); err != nil {
			t.Errorf("Validate(%q): %v", p, err)
		}
	}
}

func TestNew_RejectsEmpty(t *testing.T) {
	if _, err := New(); !errors.IsCode(err, errors.ErrCodeConfigInvalid) {
		t.Fatalf("expected CONFIG_INVALID, got %v", err)
	}
	if _, err := New(" "); !errors.IsCode(err, errors.ErrCodeConfigInvalid) {
		t.Fatalf("expected CONFIG_INVALID for blank base, got %v", err)
	}
}

func TestWithin(t *testing.T) {
	tests := []struct {
		base, p string
		want    bool
	}{
		{"/srv/base", "/srv/base", true},
		{"/srv/base", "/srv/base/x", true},
		{"/srv/base", "/srv/basement", false},
		{"/srv/base", "/srv", false},
		{"/", "/anything", true},
	}
	for _, tt := range tests {
		if got := within(tt.base, tt.p); got != tt.want {
			t.Errorf("within(%q, %q) = %v, want %v", tt.base, tt.p, got, tt.want)
		}
	}
}
