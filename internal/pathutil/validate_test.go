package pathutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePath(t *testing.T) {
	tmpDir := t.TempDir()
	realFile := filepath.Join(tmpDir, "realfile.txt")
	if err := os.WriteFile(realFile, []byte("test"), 0o600); err != nil {
		t.Fatalf("create test file: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "empty path returns ErrEmptyPath", path: "", wantErr: ErrEmptyPath},
		{name: "path with null byte returns ErrNullBytes", path: "some\x00path", wantErr: ErrNullBytes},
		{name: "valid relative path succeeds", path: "reports/defects.log"},
		{name: "path with dot-dot is cleaned", path: "some/../reports"},
		{name: "existing file resolves", path: realFile},
		{name: "non-existent path returns cleaned path", path: filepath.Join(tmpDir, "missing", "file.txt")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ValidatePath(tt.path)
			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Errorf("ValidatePath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidatePath(%q) unexpected error: %v", tt.path, err)
				return
			}
			if result == "" {
				t.Errorf("ValidatePath(%q) returned empty string", tt.path)
			}
		})
	}
}

func TestValidatePath_SymlinkResolution(t *testing.T) {
	tmpDir := t.TempDir()
	realFile := filepath.Join(tmpDir, "realfile.txt")
	if err := os.WriteFile(realFile, []byte("test"), 0o600); err != nil {
		t.Fatalf("create test file: %v", err)
	}
	symlinkPath := filepath.Join(tmpDir, "symlink.txt")
	if err := os.Symlink(realFile, symlinkPath); err != nil {
		t.Fatalf("create symlink: %v", err)
	}

	result, err := ValidatePath(symlinkPath)
	if err != nil {
		t.Fatalf("ValidatePath(%q) error: %v", symlinkPath, err)
	}
	expectedPath, err := filepath.EvalSymlinks(realFile)
	if err != nil {
		t.Fatalf("EvalSymlinks(%q) error: %v", realFile, err)
	}
	if result != expectedPath {
		t.Errorf("ValidatePath(%q) = %q, want %q", symlinkPath, result, expectedPath)
	}
}

func TestJoinWithin(t *testing.T) {
	dir := t.TempDir()
	base, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatalf("EvalSymlinks: %v", err)
	}

	got, err := JoinWithin(dir, "defects.qe.20240101.20240131.bounce.report")
	if err != nil {
		t.Fatalf("JoinWithin: %v", err)
	}
	if want := filepath.Join(base, "defects.qe.20240101.20240131.bounce.report"); got != want {
		t.Errorf("JoinWithin = %q, want %q", got, want)
	}

	got, err = JoinWithin("", "defects.log")
	if err != nil {
		t.Fatalf("JoinWithin with empty dir: %v", err)
	}
	if got != "defects.log" {
		t.Errorf("JoinWithin with empty dir = %q, want defects.log", got)
	}

	for _, name := range []string{"../escape", "a/b", `a\b`, "..", "."} {
		t.Run(name, func(t *testing.T) {
			if _, err := JoinWithin(dir, name); !errors.Is(err, ErrInvalidName) {
				t.Errorf("JoinWithin(%q) error = %v, want ErrInvalidName", name, err)
			}
		})
	}

	if _, err := JoinWithin(dir, ""); err != ErrEmptyPath {
		t.Errorf("JoinWithin empty name error = %v, want ErrEmptyPath", err)
	}
	if _, err := JoinWithin(dir, "a\x00b"); err != ErrNullBytes {
		t.Errorf("JoinWithin null byte error = %v, want ErrNullBytes", err)
	}
}

func TestSafeName(t *testing.T) {
	tests := map[string]string{
		"qe":           "qe",
		"web/mobile":   "web_mobile",
		`a\b:c`:        "a_b_c",
		"tab\tname":    "tab_name",
		"plain spaces": "plain spaces",
	}
	for in, want := range tests {
		if got := SafeName(in); got != want {
			t.Errorf("SafeName(%q) = %q, want %q", in, got, want)
		}
	}
}
