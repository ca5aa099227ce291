// internal/agent/vision.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/xkilldash9x/seeclaw/internal/llmclient"
	"github.com/xkilldash9x/seeclaw/internal/perception"
)

// resolveVisually captures the screen and asks the vision model where target
// is. The returned reference is a grid label, an element id or, after focus
// refinement, "@x,y".
func (e *Engine) resolveVisually(g *goalState, target string) (string, error) {
	e.activity(fmt.Sprintf("Looking for %q", target))
	snap, err := e.perceive(g, perception.PerceiveOptions{})
	if err != nil {
		return "", fmt.Errorf("screen capture failed: %w", err)
	}

	provider, cc, err := e.deps.Providers.CallConfigForRole(llmclient.RoleVision)
	if err != nil {
		return "", fmt.Errorf("no vision model available: %w", err)
	}

	vctx, cancel := context.WithTimeout(g.ctx, e.cfg.VisionTimeout)
	defer cancel()

	reply, err := e.askVision(vctx, provider, cc, visionPrompt(target, snap), snap.Image)
	if err != nil {
		return "", visionError(g.ctx, vctx, err)
	}
	ref, box, err := pickTarget(reply, snap)
	if err != nil {
		return "", err
	}

	if e.deps.Perception.Focus.Enabled {
		if refined, ok := e.refine(vctx, provider, cc, snap, box, target); ok {
			e.logger.Debug("Focus refinement moved the target.", zap.String("coarse", ref), zap.String("refined", refined))
			ref = refined
		}
	}
	e.logger.Info("Target resolved.", zap.String("target", target), zap.String("ref", ref))
	return ref, nil
}

func (e *Engine) askVision(ctx context.Context, provider llmclient.Provider, cc llmclient.CallConfig, prompt string, png []byte) (string, error) {
	msgs := []llmclient.Message{
		llmclient.SystemMessage(visionSystemPrompt),
		llmclient.UserMessage(prompt, png),
	}
	resp, err := provider.Chat(ctx, msgs, nil, cc, e.sink())
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// visionError separates user cancellation from the vision deadline.
func visionError(goalCtx, visionCtx context.Context, err error) error {
	if goalCtx.Err() != nil {
		return goalCtx.Err()
	}
	if errors.Is(visionCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrVisionTimeout, err)
	}
	return fmt.Errorf("vision model call failed: %w", err)
}

// pickTarget reads the vision reply. Anything that does not name a target on
// snap counts as not found.
func pickTarget(reply string, snap *perception.Snapshot) (string, perception.BBox, error) {
	obj, ok := llmclient.ExtractJSONObject(reply)
	if !ok {
		return "", perception.BBox{}, fmt.Errorf("%w: unreadable vision reply %q", ErrTargetNotFound, clip(reply, 120))
	}
	if v, present := obj["found"]; present && !cast.ToBool(v) {
		return "", perception.BBox{}, ErrTargetNotFound
	}

	cell := strings.TrimSpace(cast.ToString(obj["cell"]))
	id := strings.TrimSpace(cast.ToString(obj["element_id"]))

	if n := snap.GridN; n > 0 && cell != "" {
		if col, row, ok := perception.ParseGridLabel(cell); ok && col < n && row < n {
			return perception.CellLabel(col, row), perception.CellBBox(col, row, n), nil
		}
	}
	for _, cand := range []string{id, cell} {
		if cand == "" {
			continue
		}
		if el, ok := snap.Element(cand); ok {
			return el.ID, el.BBox, nil
		}
	}
	return "", perception.BBox{}, fmt.Errorf("%w: reply named no target on screen (%s)", ErrTargetNotFound, clip(reply, 120))
}

// refine sends a zoomed crop around box and maps the model's point back onto
// the screen.
func (e *Engine) refine(ctx context.Context, provider llmclient.Provider, cc llmclient.CallConfig, snap *perception.Snapshot, box perception.BBox, target string) (string, bool) {
	if snap.Raw == nil {
		return "", false
	}
	focus := e.deps.Perception.Focus
	crop, err := perception.CropElement(snap.Raw, box, focus.Padding, focus.MinSize)
	if err != nil {
		e.logger.Debug("Focus crop failed.", zap.Error(err))
		return "", false
	}
	png, err := perception.EncodePNG(crop.Image)
	if err != nil {
		return "", false
	}

	w, h := crop.Image.Bounds().Dx(), crop.Image.Bounds().Dy()
	reply, err := e.askVision(ctx, provider, cc, focusPrompt(target, w, h), png)
	if err != nil {
		e.logger.Debug("Focus refinement call failed.", zap.Error(err))
		return "", false
	}
	obj, ok := llmclient.ExtractJSONObject(reply)
	if !ok {
		return "", false
	}
	if v, present := obj["found"]; present && !cast.ToBool(v) {
		return "", false
	}
	if obj["x"] == nil || obj["y"] == nil {
		return "", false
	}
	x, errX := cast.ToFloat64E(obj["x"])
	y, errY := cast.ToFloat64E(obj["y"])
	if errX != nil || errY != nil || x < 0 || y < 0 || x >= float64(w) || y >= float64(h) {
		return "", false
	}

	pt := crop.ToPhysical(x, y)
	if pt.X < 0 || pt.Y < 0 || pt.X >= snap.Meta.PhysicalWidth || pt.Y >= snap.Meta.PhysicalHeight {
		return "", false
	}
	return fmt.Sprintf("@%d,%d", pt.X, pt.Y), true
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
