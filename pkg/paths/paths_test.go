package paths

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLogsBaseDirDefaultsToRelativePath(t *testing.T) {
	t.Setenv(EnvSidecarLogDir, "")
	if got := LogsBaseDir(); got != filepath.Join(".sidecar", "logs") {
		t.Fatalf("unexpected base logs dir: %q", got)
	}
}

func TestLogsBaseDirExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvSidecarLogDir, "~/sidecar/logs")
	want := filepath.Join(home, "sidecar", "logs")
	if got := LogsBaseDir(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestExpandHomeSupportsBareHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if got := ExpandHome("~"); got != home {
		t.Fatalf("expected %q, got %q", home, got)
	}
}

func TestExpandHomeLeavesOtherPathsAlone(t *testing.T) {
	for _, p := range []string{"/abs/path", "relative/path", "~user/x"} {
		if got := ExpandHome(p); got != p {
			t.Errorf("ExpandHome(%q) = %q", p, got)
		}
	}
}

func TestSplitList(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	sep := string(os.PathListSeparator)

	got := SplitList("~/a" + sep + sep + "/b")
	want := []string{filepath.Join(home, "a"), "/b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SplitList = %v, want %v", got, want)
	}
}
