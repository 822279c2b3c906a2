package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("leafsim %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestRunReplayInspect(t *testing.T) {
	data := t.TempDir()
	tuningPath := filepath.Join("..", "..", "configs", "tuning.yaml")
	forcingPath := filepath.Join("..", "..", "configs", "forcing.yaml")

	out := execute(t, "run",
		"--tuning", tuningPath,
		"--forcing", forcingPath,
		"--data", data,
		"--days", "75",
	)
	if !strings.Contains(out, "day=75") {
		t.Fatalf("run output: %s", out)
	}

	runDirs, err := filepath.Glob(filepath.Join(data, "ryegrass-*"))
	if err != nil || len(runDirs) != 1 {
		t.Fatalf("run dirs: %v %v", runDirs, err)
	}
	runDir := runDirs[0]
	snap := filepath.Join(runDir, "snapshots", "day-000030.snap.zst")

	out = execute(t, "replay",
		"--snapshot", snap,
		"--days-log", filepath.Join(runDir, "days"),
		"--forcing", forcingPath,
		"--to-day", "0",
	)
	if !strings.Contains(out, "replay ok: checked=45 days (from day=30)") {
		t.Fatalf("replay output: %s", out)
	}

	out = execute(t, "inspect", "--snapshot", snap, "--db", filepath.Join(data, "index.sqlite"), "--run", "")
	if !strings.Contains(out, "day=30") || !strings.Contains(out, filepath.Base(runDir)) {
		t.Fatalf("inspect output: %s", out)
	}
}

func TestRunFailureWritesNoSnapshot(t *testing.T) {
	data := t.TempDir()
	forcingPath := filepath.Join(t.TempDir(), "forcing.yaml")
	bad := []byte("days:\n  - day: 1\n    through: 2\n    photosynthesis: 2\n  - day: 3\n    organs:\n      flower: {}\n")
	if err := os.WriteFile(forcingPath, bad, 0o644); err != nil {
		t.Fatalf("write forcing: %v", err)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"run",
		"--tuning", filepath.Join("..", "..", "configs", "tuning.yaml"),
		"--forcing", forcingPath,
		"--data", data,
		"--days", "10",
		"--no-index",
	})
	if err := rootCmd.ExecuteContext(context.Background()); err == nil {
		t.Fatalf("expected run to fail on an unknown organ")
	}

	snaps, err := filepath.Glob(filepath.Join(data, "*", "snapshots", "*.snap.zst"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(snaps) != 0 {
		t.Fatalf("failed run should not snapshot, found %v", snaps)
	}
}
