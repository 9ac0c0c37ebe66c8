package main

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/csheth/lecturepad/internal/tuitest"
)

func TestLecturepadNoteAndHelpFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("builds and drives the binary")
	}
	t.Parallel()

	cmdDir := moduleDir(t)
	fixture := filepath.Join(cmdDir, "testdata", "course.json")
	if _, err := os.Stat(fixture); err != nil {
		t.Fatalf("fixture missing: %v", err)
	}

	binary := buildBinary(t, cmdDir)
	tmp := t.TempDir()
	rec, err := tuitest.Run(context.Background(), tuitest.Config{
		Command: []string{binary, "-no-alt-screen", "-no-autoplay", "-store", "memory", "-course", "c1", "-user", "u1", "-course-file", fixture},
		Dir:     cmdDir,
		Env: []string{
			"LOG_PATH=" + filepath.Join(tmp, "lecturepad.log"),
			"LECTUREPAD_CACHE_DIR=" + filepath.Join(tmp, "cache"),
			"LLM_ENDPOINT=http://127.0.0.1:1/v1",
		},
		Width:  120,
		Height: 40,
		Steps: []tuitest.Step{
			{WaitFor: "Lecture 1/2 · Welcome", Input: []byte("a")},
			{WaitFor: "Note at 00:00", Input: tuitest.Type("first note")},
			{Delay: 200 * time.Millisecond, Input: tuitest.KeyEnter},
			{WaitFor: "Note added at 00:00.", Input: []byte("?")},
			{WaitFor: "Player Cheatsheet", Input: tuitest.KeyCtrlC},
		},
		Timeout:        20 * time.Second,
		AllowInterrupt: true,
	})
	if err != nil {
		t.Fatalf("run CLI: %v", err)
	}

	for _, want := range []string{"Concurrency in Go", "Instructor: Ada Lovelace", "00:00 / 03:00", "[00:00]", "first note", "Notes (1)"} {
		if !rec.Contains(want) {
			frame, _ := rec.FinalFrame()
			t.Fatalf("output missing %q; final frame:\n%s", want, frame.Plain)
		}
	}
}

func moduleDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("runtime caller unavailable")
	}
	return filepath.Dir(file)
}

func buildBinary(t *testing.T, cmdDir string) string {
	t.Helper()
	name := "lecturepad-integration"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	binPath := filepath.Join(t.TempDir(), name)
	cmd := exec.Command("go", "build", "-o", binPath, ".")
	cmd.Dir = cmdDir
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build CLI: %v\n%s", err, output)
	}
	return binPath
}
