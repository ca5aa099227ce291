// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RedactedSentinel replaces secrets in any configuration that leaves the process.
const RedactedSentinel = "***"

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	LLM() LLMConfig
	Safety() SafetyConfig
	Loop() LoopConfig
	Agent() AgentConfig
	Perception() PerceptionConfig
	History() HistoryConfig
	MCP() MCPConfig
	Executor() ExecutorConfig
	Skills() SkillsConfig
	Server() ServerConfig

	SetActiveProvider(id string)
	SetGridSize(n int)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	LLMCfg        LLMConfig        `mapstructure:"llm" yaml:"llm"`
	SafetyCfg     SafetyConfig     `mapstructure:"safety" yaml:"safety"`
	LoopCfg       LoopConfig       `mapstructure:"loop" yaml:"loop"`
	AgentCfg      AgentConfig      `mapstructure:"agent" yaml:"agent"`
	PerceptionCfg PerceptionConfig `mapstructure:"perception" yaml:"perception"`
	HistoryCfg    HistoryConfig    `mapstructure:"history" yaml:"history"`
	MCPCfg        MCPConfig        `mapstructure:"mcp" yaml:"mcp"`
	ExecutorCfg   ExecutorConfig   `mapstructure:"executor" yaml:"executor"`
	SkillsCfg     SkillsConfig     `mapstructure:"skills" yaml:"skills"`
	ServerCfg     ServerConfig     `mapstructure:"server" yaml:"server"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig         { return c.LoggerCfg }
func (c *Config) LLM() LLMConfig               { return c.LLMCfg }
func (c *Config) Safety() SafetyConfig         { return c.SafetyCfg }
func (c *Config) Loop() LoopConfig             { return c.LoopCfg }
func (c *Config) Agent() AgentConfig           { return c.AgentCfg }
func (c *Config) Perception() PerceptionConfig { return c.PerceptionCfg }
func (c *Config) History() HistoryConfig       { return c.HistoryCfg }
func (c *Config) MCP() MCPConfig               { return c.MCPCfg }
func (c *Config) Executor() ExecutorConfig     { return c.ExecutorCfg }
func (c *Config) Skills() SkillsConfig         { return c.SkillsCfg }
func (c *Config) Server() ServerConfig         { return c.ServerCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetActiveProvider(id string) { c.LLMCfg.ActiveProvider = id }
func (c *Config) SetGridSize(n int)           { c.PerceptionCfg.GridSize = n }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// Adapter names the wire protocol a provider entry speaks.
type Adapter string

const (
	AdapterOpenAI    Adapter = "openai"
	AdapterAnthropic Adapter = "anthropic"
	AdapterGemini    Adapter = "gemini"
)

// DefaultTemperature is used when neither the role nor the provider sets one.
const DefaultTemperature = 0.1

// LLMConfig lists the configured model providers and the role mapping.
type LLMConfig struct {
	ActiveProvider string                    `mapstructure:"active_provider" yaml:"active_provider"`
	Providers      map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
	Roles          RolesConfig               `mapstructure:"roles" yaml:"roles"`
}

// ProviderConfig defines a single model endpoint.
type ProviderConfig struct {
	DisplayName string   `mapstructure:"display_name" yaml:"display_name"`
	APIBase     string   `mapstructure:"api_base" yaml:"api_base"`
	Model       string   `mapstructure:"model" yaml:"model"`
	Temperature *float64 `mapstructure:"temperature" yaml:"temperature,omitempty"`
	// Adapter is empty or "openai" for OpenAI-compatible endpoints.
	Adapter           Adapter       `mapstructure:"adapter" yaml:"adapter,omitempty"`
	APIKey            string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxTokens         int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// EffectiveTemperature returns the configured temperature or DefaultTemperature.
func (p ProviderConfig) EffectiveTemperature() float64 {
	if p.Temperature == nil {
		return DefaultTemperature
	}
	return *p.Temperature
}

// APIKeyEnvVar is the environment variable consulted for a provider's key.
func APIKeyEnvVar(id string) string {
	mapper := func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}
	return "SEECLAW_" + strings.Map(mapper, strings.ToUpper(id)) + "_API_KEY"
}

// ResolveAPIKey prefers SEECLAW_<ID>_API_KEY over the key stored in the file.
func (p ProviderConfig) ResolveAPIKey(id string) string {
	if key := strings.TrimSpace(os.Getenv(APIKeyEnvVar(id))); key != "" {
		return key
	}
	return p.APIKey
}

// RolesConfig maps agent roles to specific provider+model combinations.
type RolesConfig struct {
	Routing *RoleEntry `mapstructure:"routing" yaml:"routing,omitempty"`
	Chat    *RoleEntry `mapstructure:"chat" yaml:"chat,omitempty"`
	Tools   *RoleEntry `mapstructure:"tools" yaml:"tools,omitempty"`
	Vision  *RoleEntry `mapstructure:"vision" yaml:"vision,omitempty"`
}

// Lookup returns the entry for a named role. Unknown roles report false.
func (r RolesConfig) Lookup(role string) (*RoleEntry, bool) {
	switch role {
	case "routing":
		return r.Routing, r.Routing != nil
	case "chat":
		return r.Chat, r.Chat != nil
	case "tools":
		return r.Tools, r.Tools != nil
	case "vision":
		return r.Vision, r.Vision != nil
	default:
		return nil, false
	}
}

// RoleEntry binds a role to a provider key and model.
type RoleEntry struct {
	Provider    string   `mapstructure:"provider" yaml:"provider"`
	Model       string   `mapstructure:"model" yaml:"model"`
	Stream      *bool    `mapstructure:"stream" yaml:"stream,omitempty"`
	Temperature *float64 `mapstructure:"temperature" yaml:"temperature,omitempty"`
}

// StreamEnabled defaults to true when the entry leaves stream unset.
func (r RoleEntry) StreamEnabled() bool {
	return r.Stream == nil || *r.Stream
}

// SafetyConfig holds the approval policy inputs.
type SafetyConfig struct {
	AllowTerminalCommands bool `mapstructure:"allow_terminal_commands" yaml:"allow_terminal_commands"`
	// RequireApprovalFor adds action types to the approval-gated set.
	RequireApprovalFor []string `mapstructure:"require_approval_for" yaml:"require_approval_for"`
	// AutoApprove removes action types from the approval-gated set.
	AutoApprove            []string `mapstructure:"auto_approve" yaml:"auto_approve"`
	MaxConsecutiveFailures int      `mapstructure:"max_consecutive_failures" yaml:"max_consecutive_failures"`
	MaxLoopDurationMinutes int      `mapstructure:"max_loop_duration_minutes" yaml:"max_loop_duration_minutes"`
}

// LoopMode values.
const (
	LoopModeUntilDone    = "until_done"
	LoopModeTimed        = "timed"
	LoopModeFailureLimit = "failure_limit"
)

// LoopConfig bounds the lifetime of a single goal. Zero limits fall back to the
// safety section.
type LoopConfig struct {
	Mode               string `mapstructure:"mode" yaml:"mode"`
	MaxDurationMinutes int    `mapstructure:"max_duration_minutes" yaml:"max_duration_minutes"`
	MaxFailures        int    `mapstructure:"max_failures" yaml:"max_failures"`
}

// AgentConfig holds settings for the run loop.
type AgentConfig struct {
	SettleDelay       time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	VisionTimeout     time.Duration `mapstructure:"vision_timeout" yaml:"vision_timeout"`
	MaxEvalCycles     int           `mapstructure:"max_eval_cycles" yaml:"max_eval_cycles"`
	TerminalTimeout   time.Duration `mapstructure:"terminal_timeout" yaml:"terminal_timeout"`
	MaxTerminalOutput int           `mapstructure:"max_terminal_output" yaml:"max_terminal_output"`
	EventBuffer       int           `mapstructure:"event_buffer" yaml:"event_buffer"`
	SystemPrompt      string        `mapstructure:"system_prompt" yaml:"system_prompt"`
}

// PerceptionConfig configures capture, detection, merging and annotation.
type PerceptionConfig struct {
	MonitorIndex        int             `mapstructure:"monitor_index" yaml:"monitor_index"`
	GridSize            int             `mapstructure:"grid_size" yaml:"grid_size"`
	EnableAccessibility bool            `mapstructure:"enable_accessibility" yaml:"enable_accessibility"`
	MergeIoU            float64         `mapstructure:"merge_iou" yaml:"merge_iou"`
	HierarchyEpsilon    float64         `mapstructure:"hierarchy_epsilon" yaml:"hierarchy_epsilon"`
	AccessibilityNMSIoU float64         `mapstructure:"accessibility_nms_iou" yaml:"accessibility_nms_iou"`
	Detector            DetectorConfig  `mapstructure:"detector" yaml:"detector"`
	Focus               FocusConfig     `mapstructure:"focus" yaml:"focus"`
	Stability           StabilityConfig `mapstructure:"stability" yaml:"stability"`
}

// DetectorConfig configures the optional YOLO model.
type DetectorConfig struct {
	ModelPath     string  `mapstructure:"model_path" yaml:"model_path"`
	InputSize     int     `mapstructure:"input_size" yaml:"input_size"`
	ConfThreshold float64 `mapstructure:"conf_threshold" yaml:"conf_threshold"`
	IoUThreshold  float64 `mapstructure:"iou_threshold" yaml:"iou_threshold"`
	// ClassSet selects a preset list: "default", "legacy" or "coco".
	ClassSet    string   `mapstructure:"class_set" yaml:"class_set"`
	ClassNames  []string `mapstructure:"class_names" yaml:"class_names"`
	ONNXLibrary string   `mapstructure:"onnx_library" yaml:"onnx_library"`
}

// FocusConfig configures the zoomed second vision pass.
type FocusConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Padding int  `mapstructure:"padding" yaml:"padding"`
	MinSize int  `mapstructure:"min_size" yaml:"min_size"`
}

// StabilityConfig configures the wait-for-quiet-screen check between steps.
type StabilityConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	MaxWait         time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
	Interval        time.Duration `mapstructure:"interval" yaml:"interval"`
	Threshold       float64       `mapstructure:"threshold" yaml:"threshold"`
	MinStableFrames int           `mapstructure:"min_stable_frames" yaml:"min_stable_frames"`
}

// HistoryConfig controls the JSONL session log.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
}

// MCPConfig lists external tool servers.
type MCPConfig struct {
	Servers []MCPServerConfig `mapstructure:"servers" yaml:"servers"`
}

// MCPServerConfig describes a stdio MCP server.
type MCPServerConfig struct {
	Name    string   `mapstructure:"name" yaml:"name"`
	Command string   `mapstructure:"command" yaml:"command"`
	Args    []string `mapstructure:"args" yaml:"args"`
	Enabled *bool    `mapstructure:"enabled" yaml:"enabled,omitempty"`
}

// IsEnabled defaults to true.
func (s MCPServerConfig) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

// ExecutorConfig selects the input driver.
type ExecutorConfig struct {
	// Driver is "xdotool" or "dry_run".
	Driver      string        `mapstructure:"driver" yaml:"driver"`
	XdotoolPath string        `mapstructure:"xdotool_path" yaml:"xdotool_path"`
	TypeDelay   time.Duration `mapstructure:"type_delay" yaml:"type_delay"`
	// HumanMotion moves the pointer along a curved path before clicking
	// instead of jumping straight to the target.
	HumanMotion bool `mapstructure:"human_motion" yaml:"human_motion"`
}

// SkillsConfig registers skills inline.
type SkillsConfig struct {
	Entries []SkillEntry `mapstructure:"entries" yaml:"entries"`
}

// ServerConfig configures the HTTP and WebSocket bridge used by a frontend.
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
	// AllowedOrigins lists browser origins accepted on the WebSocket. Empty
	// means same-origin only; "*" accepts any origin.
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// SkillEntry is a named block of instructions returned to the planner on invoke_skill.
type SkillEntry struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Description string `mapstructure:"description" yaml:"description"`
	Content     string `mapstructure:"content" yaml:"content"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "seeclaw")
	v.SetDefault("logger.log_file", "seeclaw.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- LLM --
	v.SetDefault("llm.active_provider", "openai")
	v.SetDefault("llm.providers", map[string]interface{}{
		"openai": map[string]interface{}{
			"display_name": "OpenAI",
			"api_base":     "https://api.openai.com/v1",
			"model":        "gpt-4o",
			"timeout":      "120s",
		},
	})

	// -- Safety --
	v.SetDefault("safety.allow_terminal_commands", false)
	v.SetDefault("safety.require_approval_for", []string{"execute_terminal", "mcp_call"})
	v.SetDefault("safety.max_consecutive_failures", 5)
	v.SetDefault("safety.max_loop_duration_minutes", 0)

	// -- Loop --
	v.SetDefault("loop.mode", LoopModeUntilDone)

	// -- Agent --
	v.SetDefault("agent.settle_delay", "800ms")
	v.SetDefault("agent.vision_timeout", "60s")
	v.SetDefault("agent.max_eval_cycles", 3)
	v.SetDefault("agent.terminal_timeout", "2m")
	v.SetDefault("agent.max_terminal_output", 4000)
	v.SetDefault("agent.event_buffer", 16)

	// -- Perception --
	v.SetDefault("perception.monitor_index", 0)
	v.SetDefault("perception.grid_size", 12)
	v.SetDefault("perception.enable_accessibility", true)
	v.SetDefault("perception.merge_iou", 0.3)
	v.SetDefault("perception.hierarchy_epsilon", 0.005)
	v.SetDefault("perception.accessibility_nms_iou", 0.5)
	v.SetDefault("perception.detector.model_path", "models/gui_detector.onnx")
	v.SetDefault("perception.detector.input_size", 640)
	v.SetDefault("perception.detector.conf_threshold", 0.25)
	v.SetDefault("perception.detector.iou_threshold", 0.45)
	v.SetDefault("perception.detector.class_set", "default")
	v.SetDefault("perception.focus.enabled", false)
	v.SetDefault("perception.focus.padding", 80)
	v.SetDefault("perception.focus.min_size", 512)
	v.SetDefault("perception.stability.enabled", false)
	v.SetDefault("perception.stability.max_wait", "5s")
	v.SetDefault("perception.stability.interval", "200ms")
	v.SetDefault("perception.stability.threshold", 0.02)
	v.SetDefault("perception.stability.min_stable_frames", 3)

	// -- History --
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.dir", "history")

	// -- Executor --
	v.SetDefault("executor.driver", "xdotool")
	v.SetDefault("executor.xdotool_path", "xdotool")
	v.SetDefault("executor.type_delay", "12ms")
	v.SetDefault("executor.human_motion", false)

	// -- Server --
	v.SetDefault("server.listen_addr", "127.0.0.1:7878")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.shutdown_timeout", "10s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.LLMCfg.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	if c.SafetyCfg.MaxConsecutiveFailures < 0 {
		return fmt.Errorf("safety.max_consecutive_failures must not be negative")
	}
	if err := c.LoopCfg.Validate(); err != nil {
		return fmt.Errorf("loop configuration invalid: %w", err)
	}
	if c.AgentCfg.MaxEvalCycles <= 0 {
		return fmt.Errorf("agent.max_eval_cycles must be a positive integer")
	}
	if c.AgentCfg.VisionTimeout <= 0 {
		return fmt.Errorf("agent.vision_timeout must be a positive duration")
	}
	if err := c.PerceptionCfg.Validate(); err != nil {
		return fmt.Errorf("perception configuration invalid: %w", err)
	}
	for i, s := range c.MCPCfg.Servers {
		if s.Name == "" || s.Command == "" {
			return fmt.Errorf("mcp.servers[%d] requires both name and command", i)
		}
	}
	switch c.ExecutorCfg.Driver {
	case "xdotool", "dry_run":
	default:
		return fmt.Errorf("executor.driver must be one of xdotool, dry_run (got %q)", c.ExecutorCfg.Driver)
	}
	if c.ServerCfg.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr must not be empty")
	}
	return nil
}

// Validate checks that the active provider and every role reference exist.
func (l *LLMConfig) Validate() error {
	if len(l.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured under llm.providers")
	}
	if _, ok := l.Providers[l.ActiveProvider]; !ok {
		return fmt.Errorf("active_provider %q is not defined under llm.providers", l.ActiveProvider)
	}
	for id, p := range l.Providers {
		switch p.Adapter {
		case "", AdapterOpenAI, AdapterAnthropic, AdapterGemini:
		default:
			return fmt.Errorf("provider %q has unsupported adapter %q", id, p.Adapter)
		}
		if (p.Adapter == "" || p.Adapter == AdapterOpenAI) && p.APIBase == "" {
			return fmt.Errorf("provider %q requires api_base", id)
		}
	}
	for _, role := range []string{"routing", "chat", "tools", "vision"} {
		entry, ok := l.Roles.Lookup(role)
		if !ok {
			continue
		}
		if _, known := l.Providers[entry.Provider]; !known {
			return fmt.Errorf("role %q references unknown provider %q", role, entry.Provider)
		}
	}
	return nil
}

// Validate checks the loop mode.
func (l *LoopConfig) Validate() error {
	switch l.Mode {
	case LoopModeUntilDone, LoopModeTimed, LoopModeFailureLimit:
	default:
		return fmt.Errorf("mode must be one of until_done, timed, failure_limit (got %q)", l.Mode)
	}
	if l.MaxDurationMinutes < 0 || l.MaxFailures < 0 {
		return fmt.Errorf("max_duration_minutes and max_failures must not be negative")
	}
	return nil
}

// Validate checks detector thresholds and overlap tolerances.
func (p *PerceptionConfig) Validate() error {
	d := p.Detector
	if d.ConfThreshold < 0 || d.ConfThreshold > 1 {
		return fmt.Errorf("detector.conf_threshold must be between 0.0 and 1.0")
	}
	if d.IoUThreshold < 0 || d.IoUThreshold > 1 {
		return fmt.Errorf("detector.iou_threshold must be between 0.0 and 1.0")
	}
	if d.InputSize <= 0 {
		return fmt.Errorf("detector.input_size must be a positive integer")
	}
	if p.MergeIoU < 0 || p.MergeIoU > 1 || p.AccessibilityNMSIoU < 0 || p.AccessibilityNMSIoU > 1 {
		return fmt.Errorf("merge_iou and accessibility_nms_iou must be between 0.0 and 1.0")
	}
	if p.HierarchyEpsilon < 0 || p.HierarchyEpsilon > 0.1 {
		return fmt.Errorf("hierarchy_epsilon must be between 0.0 and 0.1")
	}
	return nil
}

// Redacted returns a copy with every stored API key replaced by RedactedSentinel.
func (c *Config) Redacted() *Config {
	out := *c
	out.LLMCfg.Providers = make(map[string]ProviderConfig, len(c.LLMCfg.Providers))
	for id, p := range c.LLMCfg.Providers {
		if p.APIKey != "" {
			p.APIKey = RedactedSentinel
		}
		out.LLMCfg.Providers[id] = p
	}
	return &out
}

// MergeRedacted copies incoming into a new config while keeping the stored key
// for any provider whose incoming key is the redaction sentinel.
func MergeRedacted(incoming, existing *Config) *Config {
	out := *incoming
	out.LLMCfg.Providers = make(map[string]ProviderConfig, len(incoming.LLMCfg.Providers))
	for id, p := range incoming.LLMCfg.Providers {
		if p.APIKey == RedactedSentinel {
			p.APIKey = ""
			if old, ok := existing.LLMCfg.Providers[id]; ok {
				p.APIKey = old.APIKey
			}
		}
		out.LLMCfg.Providers[id] = p
	}
	return &out
}
