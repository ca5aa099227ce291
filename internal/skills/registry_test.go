// internal/skills/registry_test.go
package skills

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/seeclaw/internal/config"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistryFromConfig(config.SkillsConfig{Entries: []config.SkillEntry{
		{Name: "os/open_software", Description: "Launch an application.", Content: "Press win, type {{app}}, press enter."},
		{Name: "notes", Content: "Keep it short."},
	}}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return r
}

func TestRegistry_NamesAndGet(t *testing.T) {
	r := newTestRegistry(t)
	assert.Equal(t, []string{"notes", "os/open_software"}, r.Names())

	s, ok := r.Get("os/open_software")
	require.True(t, ok)
	assert.Equal(t, "os", s.Category())

	s, _ = r.Get("notes")
	assert.Equal(t, "general", s.Category())
}

func TestRegistry_Invoke(t *testing.T) {
	r := newTestRegistry(t)

	out, err := r.Invoke("os/open_software", map[string]any{"app": "notepad", "retries": 2})
	require.NoError(t, err)
	assert.Equal(t, "Skill \"os/open_software\":\nPress win, type notepad, press enter.\n\nInputs:\n- retries: 2", out)

	out, err = r.Invoke("notes", nil)
	require.NoError(t, err)
	assert.Equal(t, "Skill \"notes\":\nKeep it short.", out)

	_, err = r.Invoke("missing", nil)
	assert.ErrorIs(t, err, ErrUnknownSkill)
}

func TestRegistry_RegisterValidation(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	assert.Error(t, r.Register(Skill{Name: " ", Content: "x"}))
	assert.Error(t, r.Register(Skill{Name: "empty"}))

	_, err := NewRegistryFromConfig(config.SkillsConfig{Entries: []config.SkillEntry{{Name: "bad"}}}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "skills.entries[0]")
}

func TestRegistry_PlannerContext(t *testing.T) {
	assert.Empty(t, NewRegistry(zaptest.NewLogger(t)).PlannerContext())

	ctx := newTestRegistry(t).PlannerContext()
	assert.Contains(t, ctx, "# Available Skills")
	assert.Contains(t, ctx, "- os/open_software (os): Launch an application.")
	assert.Contains(t, ctx, "- notes (general)\n")
}
