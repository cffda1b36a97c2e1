package tool

import (
	"fmt"
	"strings"
)

var keyAliases = map[string]string{
	"ctrl":       "Control",
	"control":    "Control",
	"cmd":        "Meta",
	"command":    "Meta",
	"meta":       "Meta",
	"super":      "Meta",
	"win":        "Meta",
	"alt":        "Alt",
	"option":     "Alt",
	"shift":      "Shift",
	"enter":      "Enter",
	"return":     "Enter",
	"esc":        "Escape",
	"escape":     "Escape",
	"tab":        "Tab",
	"space":      " ",
	"backspace":  "Backspace",
	"delete":     "Delete",
	"del":        "Delete",
	"insert":     "Insert",
	"home":       "Home",
	"end":        "End",
	"pageup":     "PageUp",
	"pagedown":   "PageDown",
	"up":         "ArrowUp",
	"down":       "ArrowDown",
	"left":       "ArrowLeft",
	"right":      "ArrowRight",
	"arrowup":    "ArrowUp",
	"arrowdown":  "ArrowDown",
	"arrowleft":  "ArrowLeft",
	"arrowright": "ArrowRight",
}

// CanonicalKey maps a key name as the model writes it to the DOM key name.
// Single characters are kept as they are; function keys become F1..F12.
func CanonicalKey(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("empty key name")
	}
	if len([]rune(trimmed)) == 1 {
		return trimmed, nil
	}
	lower := strings.ToLower(trimmed)
	if k, ok := keyAliases[lower]; ok {
		return k, nil
	}
	if len(lower) <= 3 && lower[0] == 'f' {
		var n int
		if _, err := fmt.Sscanf(lower[1:], "%d", &n); err == nil && n >= 1 && n <= 12 {
			return fmt.Sprintf("F%d", n), nil
		}
	}
	return "", fmt.Errorf("unknown key %q", name)
}

// ParseKeyCombination splits "Control+Shift+T" into canonical key names, modifiers first as written.
func ParseKeyCombination(combo string) ([]string, error) {
	if strings.TrimSpace(combo) == "" {
		return nil, fmt.Errorf("keys are required")
	}
	var keys []string
	// "+" on its own, or at the end of "Control++", is the plus key.
	parts := strings.Split(combo, "+")
	for i := 0; i < len(parts); i++ {
		part := parts[i]
		if part == "" {
			if i == len(parts)-1 || (i+1 < len(parts) && parts[i+1] == "") {
				keys = append(keys, "+")
				i++
			}
			continue
		}
		k, err := CanonicalKey(part)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no keys in %q", combo)
	}
	return keys, nil
}
