// cmd/seeclaw/main_test.go
package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
}

func TestHandlePanic(t *testing.T) {
	defer resetMocks()

	t.Run("writes crash log", func(t *testing.T) {
		var written string
		var path string
		exitCode := -1
		osWriteFile = func(name string, data []byte, _ os.FileMode) error {
			path = name
			written = string(data)
			return nil
		}
		osExit = func(code int) { exitCode = code }

		func() {
			defer handlePanic()
			panic("input driver exploded")
		}()

		assert.Equal(t, crashLogFile, path)
		assert.True(t, strings.HasPrefix(written, "panic: input driver exploded"))
		assert.Contains(t, written, "goroutine", "stack trace should be included")
		assert.Equal(t, 2, exitCode)
	})

	t.Run("log write failure", func(t *testing.T) {
		exitCode := -1
		osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only fs") }
		osExit = func(code int) { exitCode = code }

		func() {
			defer handlePanic()
			panic("boom")
		}()
		assert.Equal(t, 1, exitCode)
	})

	t.Run("no panic", func(t *testing.T) {
		called := false
		osExit = func(int) { called = true }
		func() {
			defer handlePanic()
		}()
		assert.False(t, called)
	})
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"version", []string{"version"}},
		{"run  open the editor", []string{"run", "open", "the", "editor"}},
		{`run "open the editor" --dry-run`, []string{"run", "open the editor", "--dry-run"}},
		{`chat ""`, []string{"chat", ""}},
		{"\tconfig\tshow ", []string{"config", "show"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, splitArgs(tt.line))
		})
	}
}

func TestInteractive(t *testing.T) {
	var out bytes.Buffer
	in := strings.NewReader("\nversion\nexit\nversion\n")

	err := interactive(context.Background(), in, &out)
	require.NoError(t, err)

	text := out.String()
	assert.Equal(t, 1, strings.Count(text, "seeclaw dev"), "commands after exit must not run")
	assert.Equal(t, 3, strings.Count(text, "seeclaw > "))
}

func TestInteractiveStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer

	err := interactive(ctx, strings.NewReader("version\n"), &out)
	require.NoError(t, err)
	assert.NotContains(t, out.String(), "seeclaw dev")
}
