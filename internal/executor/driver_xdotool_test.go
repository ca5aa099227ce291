// internal/executor/driver_xdotool_test.go
package executor

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/seeclaw/internal/config"
)

// recorder captures xdotool invocations instead of running them.
type recorder struct {
	mu       sync.Mutex
	calls    [][]string
	location string
	err      error
}

func (r *recorder) run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string{name}, args...))
	if len(args) > 0 && args[0] == "getmouselocation" {
		return []byte(r.location), nil
	}
	return nil, r.err
}

func (r *recorder) last() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

func newTestXdotool(t *testing.T, cfg config.ExecutorConfig) (*XdotoolDriver, *recorder) {
	t.Helper()
	rec := &recorder{}
	d := NewXdotoolDriver(cfg, zaptest.NewLogger(t))
	d.run = rec.run
	d.rng = rand.New(rand.NewPCG(1, 2))
	return d, rec
}

func TestXdotool_Clicks(t *testing.T) {
	d, rec := newTestXdotool(t, config.ExecutorConfig{XdotoolPath: "/usr/bin/xdotool"})
	ctx := context.Background()

	require.NoError(t, d.MouseClick(ctx, 10, 20))
	assert.Equal(t, []string{"/usr/bin/xdotool", "mousemove", "--sync", "10", "20", "click", "1"}, rec.last())

	require.NoError(t, d.MouseDoubleClick(ctx, 5, 6))
	assert.Equal(t, []string{"/usr/bin/xdotool", "mousemove", "--sync", "5", "6", "click", "--repeat", "2", "--delay", "80", "1"}, rec.last())

	require.NoError(t, d.MouseRightClick(ctx, 1, 2))
	assert.Equal(t, "3", rec.last()[len(rec.last())-1])
}

func TestXdotool_HumanMotion(t *testing.T) {
	d, rec := newTestXdotool(t, config.ExecutorConfig{HumanMotion: true})
	rec.location = "X=0\nY=0\nSCREEN=0\nWINDOW=123\n"

	require.NoError(t, d.MouseClick(context.Background(), 400, 300))
	require.Len(t, rec.calls, 2)
	args := rec.last()

	assert.Equal(t, "mousemove", args[1])
	assert.Contains(t, args, "sleep")
	// The final hop lands exactly on the target before the click.
	n := len(args)
	assert.Equal(t, []string{"mousemove", "400", "300", "click", "1"}, args[n-5:])
}

func TestXdotool_HumanMotionFallsBack(t *testing.T) {
	d, rec := newTestXdotool(t, config.ExecutorConfig{HumanMotion: true})
	rec.location = "garbage"

	require.NoError(t, d.MouseClick(context.Background(), 7, 8))
	assert.Equal(t, []string{"xdotool", "mousemove", "--sync", "7", "8", "click", "1"}, rec.last())
}

func TestXdotool_Scroll(t *testing.T) {
	d, rec := newTestXdotool(t, config.ExecutorConfig{})
	ctx := context.Background()

	require.NoError(t, d.Scroll(ctx, NoPosition, NoPosition, ScrollDown, 3))
	assert.Equal(t, []string{"xdotool", "click", "--repeat", "3", "--delay", "40", "5"}, rec.last())

	require.NoError(t, d.Scroll(ctx, 50, 60, ScrollLeft, 0))
	assert.Equal(t, []string{"xdotool", "mousemove", "--sync", "50", "60", "click", "--repeat", "1", "--delay", "40", "6"}, rec.last())

	err := d.Scroll(ctx, 0, 0, "diagonal", 1)
	assert.ErrorIs(t, err, ErrInvalidDirection)
}

func TestXdotool_TypeText(t *testing.T) {
	d, rec := newTestXdotool(t, config.ExecutorConfig{TypeDelay: 12 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, d.TypeText(ctx, "hello world"))
	assert.Equal(t, []string{"xdotool", "type", "--clearmodifiers", "--delay", "12", "--", "hello world"}, rec.last())

	t.Run("cjk goes through the clipboard", func(t *testing.T) {
		var pasted string
		d.clipWrite = func(s string) error { pasted = s; return nil }
		require.NoError(t, d.TypeText(ctx, "你好"))
		assert.Equal(t, "你好", pasted)
		assert.Equal(t, []string{"xdotool", "key", "--clearmodifiers", "ctrl+v"}, rec.last())
	})

	t.Run("clipboard failure", func(t *testing.T) {
		d.clipWrite = func(string) error { return errors.New("no display") }
		err := d.TypeText(ctx, "カタカナ")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "clipboard")
	})

	t.Run("empty text is a no-op", func(t *testing.T) {
		before := len(rec.calls)
		require.NoError(t, d.TypeText(ctx, ""))
		assert.Len(t, rec.calls, before)
	})
}

func TestXdotool_Keys(t *testing.T) {
	d, rec := newTestXdotool(t, config.ExecutorConfig{})
	ctx := context.Background()

	require.NoError(t, d.Hotkey(ctx, []string{"Ctrl", "shift", "esc"}))
	assert.Equal(t, []string{"xdotool", "key", "--clearmodifiers", "ctrl+shift+Escape"}, rec.last())

	require.NoError(t, d.KeyPress(ctx, "enter"))
	assert.Equal(t, []string{"xdotool", "key", "--clearmodifiers", "Return"}, rec.last())

	assert.ErrorIs(t, d.Hotkey(ctx, []string{" "}), ErrEmptyKeys)
	assert.ErrorIs(t, d.KeyPress(ctx, ""), ErrEmptyKeys)
}

func TestXdotool_CommandError(t *testing.T) {
	d, rec := newTestXdotool(t, config.ExecutorConfig{})
	rec.err = errors.New("exit status 1")
	assert.Error(t, d.KeyPress(context.Background(), "a"))
}

func TestNew_SelectsDriver(t *testing.T) {
	logger := zaptest.NewLogger(t)

	d, err := New(config.ExecutorConfig{Driver: DriverDryRun}, logger)
	require.NoError(t, err)
	assert.IsType(t, &DryRunDriver{}, d)

	d, err = New(config.ExecutorConfig{Driver: DriverXdotool}, logger)
	require.NoError(t, err)
	assert.IsType(t, &XdotoolDriver{}, d)

	_, err = New(config.ExecutorConfig{Driver: "robotgo"}, logger)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unknown or unsupported"))
}
