// internal/executor/driver_xdotool.go
package executor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"math/rand/v2"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"go.uber.org/zap"

	"github.com/xkilldash9x/seeclaw/internal/config"
)

// runFunc executes an external command and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// XdotoolDriver drives an X11 session through the xdotool binary.
type XdotoolDriver struct {
	path        string
	typeDelay   time.Duration
	humanMotion bool
	logger      *zap.Logger

	run       runFunc
	clipWrite func(string) error
	rng       *rand.Rand
}

// NewXdotoolDriver creates a driver that shells out to xdotool.
func NewXdotoolDriver(cfg config.ExecutorConfig, logger *zap.Logger) *XdotoolDriver {
	path := cfg.XdotoolPath
	if path == "" {
		path = "xdotool"
	}
	return &XdotoolDriver{
		path:        path,
		typeDelay:   cfg.TypeDelay,
		humanMotion: cfg.HumanMotion,
		logger:      logger.Named("xdotool"),
		run:         execRun,
		clipWrite:   clipboard.WriteAll,
		rng:         rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5ee)),
	}
}

func (d *XdotoolDriver) exec(ctx context.Context, args ...string) ([]byte, error) {
	d.logger.Debug("xdotool", zap.Strings("args", args))
	return d.run(ctx, d.path, args...)
}

// MouseClick moves to (x, y) and clicks the left button once.
func (d *XdotoolDriver) MouseClick(ctx context.Context, x, y int) error {
	return d.clickAt(ctx, x, y, "1", 1)
}

// MouseDoubleClick moves to (x, y) and clicks the left button twice.
func (d *XdotoolDriver) MouseDoubleClick(ctx context.Context, x, y int) error {
	return d.clickAt(ctx, x, y, "1", 2)
}

// MouseRightClick moves to (x, y) and clicks the right button.
func (d *XdotoolDriver) MouseRightClick(ctx context.Context, x, y int) error {
	return d.clickAt(ctx, x, y, "3", 1)
}

func (d *XdotoolDriver) clickAt(ctx context.Context, x, y int, button string, repeat int) error {
	args := d.moveArgs(ctx, image.Pt(x, y))
	args = append(args, "click")
	if repeat > 1 {
		args = append(args, "--repeat", strconv.Itoa(repeat), "--delay", "80")
	}
	args = append(args, button)
	_, err := d.exec(ctx, args...)
	return err
}

// moveArgs returns the mousemove commands that bring the pointer to target.
// With human motion enabled the move is split into a chained series of short
// hops along a curved path.
func (d *XdotoolDriver) moveArgs(ctx context.Context, target image.Point) []string {
	direct := []string{"mousemove", "--sync", strconv.Itoa(target.X), strconv.Itoa(target.Y)}
	if !d.humanMotion {
		return direct
	}
	from, err := d.pointerLocation(ctx)
	if err != nil {
		d.logger.Debug("Pointer location unavailable, moving directly.", zap.Error(err))
		return direct
	}

	path := curvedPath(from, target, d.rng)
	total := fittsDuration(vecOf(from).dist(vecOf(target)), d.rng)
	pause := strconv.FormatFloat(total.Seconds()/float64(len(path)), 'f', 3, 64)

	args := make([]string, 0, len(path)*5)
	for i, p := range path {
		if i > 0 {
			args = append(args, "sleep", pause)
		}
		args = append(args, "mousemove", strconv.Itoa(p.X), strconv.Itoa(p.Y))
	}
	return args
}

// pointerLocation parses `xdotool getmouselocation --shell`.
func (d *XdotoolDriver) pointerLocation(ctx context.Context) (image.Point, error) {
	out, err := d.exec(ctx, "getmouselocation", "--shell")
	if err != nil {
		return image.Point{}, err
	}
	var p image.Point
	var gotX, gotY bool
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		k, v, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		switch k {
		case "X":
			p.X, gotX = n, true
		case "Y":
			p.Y, gotY = n, true
		}
	}
	if !gotX || !gotY {
		return image.Point{}, fmt.Errorf("unexpected getmouselocation output: %q", strings.TrimSpace(string(out)))
	}
	return p, nil
}

// Scroll uses the X wheel buttons: 4 up, 5 down, 6 left, 7 right.
func (d *XdotoolDriver) Scroll(ctx context.Context, x, y int, dir string, amount int) error {
	button := map[string]string{ScrollUp: "4", ScrollDown: "5", ScrollLeft: "6", ScrollRight: "7"}[dir]
	if button == "" {
		return fmt.Errorf("%w: %q", ErrInvalidDirection, dir)
	}
	if amount < 1 {
		amount = 1
	}
	var args []string
	if x != NoPosition && y != NoPosition {
		args = d.moveArgs(ctx, image.Pt(x, y))
	}
	args = append(args, "click", "--repeat", strconv.Itoa(amount), "--delay", "40", button)
	_, err := d.exec(ctx, args...)
	return err
}

// TypeText types Latin text with synthesized key events. Text containing CJK
// characters is placed on the clipboard and pasted with ctrl+v.
func (d *XdotoolDriver) TypeText(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if ContainsCJK(text) {
		if err := d.clipWrite(text); err != nil {
			return fmt.Errorf("failed to write text to clipboard: %w", err)
		}
		return d.Hotkey(ctx, []string{"ctrl", "v"})
	}
	delay := strconv.FormatInt(d.typeDelay.Milliseconds(), 10)
	_, err := d.exec(ctx, "type", "--clearmodifiers", "--delay", delay, "--", text)
	return err
}

// Hotkey presses the keys together, e.g. ["ctrl", "shift", "t"].
func (d *XdotoolDriver) Hotkey(ctx context.Context, keys []string) error {
	combo := make([]string, 0, len(keys))
	for _, k := range keys {
		if n := NormalizeKey(k); n != "" {
			combo = append(combo, n)
		}
	}
	if len(combo) == 0 {
		return ErrEmptyKeys
	}
	_, err := d.exec(ctx, "key", "--clearmodifiers", strings.Join(combo, "+"))
	return err
}

// KeyPress presses and releases a single key.
func (d *XdotoolDriver) KeyPress(ctx context.Context, key string) error {
	k := NormalizeKey(key)
	if k == "" {
		return ErrEmptyKeys
	}
	_, err := d.exec(ctx, "key", "--clearmodifiers", k)
	return err
}
