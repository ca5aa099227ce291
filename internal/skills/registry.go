// internal/skills/registry.go
package skills

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/xkilldash9x/seeclaw/internal/config"
)

// ErrUnknownSkill is returned when invoke_skill names a skill that is not registered.
var ErrUnknownSkill = errors.New("unknown skill")

// Skill is a named block of instructions handed back to the planner.
type Skill struct {
	Name        string
	Description string
	Content     string
}

// Category is the first path segment of the name ("os/open_software" -> "os").
func (s Skill) Category() string {
	if cat, _, ok := strings.Cut(s.Name, "/"); ok {
		return cat
	}
	return "general"
}

// Registry holds skills by name. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]Skill
	logger *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{skills: make(map[string]Skill), logger: logger.Named("skills")}
}

// NewRegistryFromConfig registers every configured entry.
func NewRegistryFromConfig(cfg config.SkillsConfig, logger *zap.Logger) (*Registry, error) {
	r := NewRegistry(logger)
	for i, e := range cfg.Entries {
		if err := r.Register(Skill{Name: e.Name, Description: e.Description, Content: e.Content}); err != nil {
			return nil, fmt.Errorf("skills.entries[%d]: %w", i, err)
		}
	}
	return r, nil
}

// Register adds or replaces a skill.
func (r *Registry) Register(s Skill) error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return errors.New("skill name must not be empty")
	}
	if strings.TrimSpace(s.Content) == "" {
		return fmt.Errorf("skill %q has no content", s.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.skills[s.Name]; exists {
		r.logger.Warn("Replacing existing skill.", zap.String("skill", s.Name))
	}
	r.skills[s.Name] = s
	return nil
}

// Get looks a skill up by name.
func (r *Registry) Get(name string) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	return s, ok
}

// Names lists registered skills in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.skills))
	for n := range r.skills {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Invoke renders the named skill. Placeholders of the form {{key}} in the
// content are replaced by the matching input; leftover inputs are appended.
func (r *Registry) Invoke(name string, inputs map[string]any) (string, error) {
	s, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSkill, name)
	}

	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	content := s.Content
	var extra []string
	for _, k := range keys {
		v := cast.ToString(inputs[k])
		placeholder := "{{" + k + "}}"
		if strings.Contains(content, placeholder) {
			content = strings.ReplaceAll(content, placeholder, v)
			continue
		}
		extra = append(extra, fmt.Sprintf("- %s: %s", k, v))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Skill %q:\n%s", s.Name, strings.TrimSpace(content))
	if len(extra) > 0 {
		b.WriteString("\n\nInputs:\n")
		b.WriteString(strings.Join(extra, "\n"))
	}
	r.logger.Debug("Skill invoked.", zap.String("skill", name), zap.Int("inputs", len(inputs)))
	return b.String(), nil
}

// PlannerContext describes the registered skills for the system prompt.
// It returns "" when nothing is registered.
func (r *Registry) PlannerContext() string {
	names := r.Names()
	if len(names) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("# Available Skills\n\nCall invoke_skill with one of these names to receive its instructions:\n\n")
	for _, n := range names {
		s, _ := r.Get(n)
		fmt.Fprintf(&b, "- %s (%s)", s.Name, s.Category())
		if s.Description != "" {
			fmt.Fprintf(&b, ": %s", s.Description)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
