// internal/executor/keys.go
package executor

import "strings"

// keyAliases maps the names a model tends to produce onto X keysyms.
var keyAliases = map[string]string{
	"enter":     "Return",
	"return":    "Return",
	"esc":       "Escape",
	"escape":    "Escape",
	"tab":       "Tab",
	"space":     "space",
	"backspace": "BackSpace",
	"delete":    "Delete",
	"del":       "Delete",
	"insert":    "Insert",
	"home":      "Home",
	"end":       "End",
	"pageup":    "Prior",
	"pgup":      "Prior",
	"pagedown":  "Next",
	"pgdn":      "Next",
	"up":        "Up",
	"down":      "Down",
	"left":      "Left",
	"right":     "Right",
	"ctrl":      "ctrl",
	"control":   "ctrl",
	"alt":       "alt",
	"option":    "alt",
	"shift":     "shift",
	"win":       "super",
	"windows":   "super",
	"cmd":       "super",
	"command":   "super",
	"meta":      "super",
	"super":     "super",
	"capslock":  "Caps_Lock",
	"print":     "Print",
}

// NormalizeKey converts a loose key name to the keysym xdotool expects.
// Unknown names pass through unchanged, so "a", "F5" and keysyms work as-is.
func NormalizeKey(key string) string {
	k := strings.TrimSpace(key)
	if alias, ok := keyAliases[strings.ToLower(k)]; ok {
		return alias
	}
	if len(k) >= 2 && (k[0] == 'f' || k[0] == 'F') && isDigits(k[1:]) {
		return "F" + k[1:]
	}
	return k
}

// SplitHotkey splits "ctrl+shift+t" into its individual keys, dropping blanks.
func SplitHotkey(combo string) []string {
	var keys []string
	for _, part := range strings.Split(combo, "+") {
		if p := strings.TrimSpace(part); p != "" {
			keys = append(keys, p)
		}
	}
	return keys
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
