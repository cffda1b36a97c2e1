package rod

import (
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
)

var namedKeys = map[string]input.Key{
	"Control":    input.ControlLeft,
	"Shift":      input.ShiftLeft,
	"Alt":        input.AltLeft,
	"Meta":       input.MetaLeft,
	"Enter":      input.Enter,
	"Tab":        input.Tab,
	"Escape":     input.Escape,
	"Backspace":  input.Backspace,
	"Delete":     input.Delete,
	"Insert":     input.Insert,
	"Home":       input.Home,
	"End":        input.End,
	"PageUp":     input.PageUp,
	"PageDown":   input.PageDown,
	"ArrowLeft":  input.ArrowLeft,
	"ArrowUp":    input.ArrowUp,
	"ArrowRight": input.ArrowRight,
	"ArrowDown":  input.ArrowDown,
	" ":          input.Space,
	"F1":         input.F1,
	"F2":         input.F2,
	"F3":         input.F3,
	"F4":         input.F4,
	"F5":         input.F5,
	"F6":         input.F6,
	"F7":         input.F7,
	"F8":         input.F8,
	"F9":         input.F9,
	"F10":        input.F10,
	"F11":        input.F11,
	"F12":        input.F12,
}

// keyboardChars are the characters of the US layout input.Key knows, shifted or not.
const keyboardChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789" +
	"`~!@#$%^&*()-_=+[{]}\\|;:'\",<.>/?"

// lookupKey resolves a canonical key name to a keyboard key.
func lookupKey(name string) (input.Key, error) {
	if k, ok := namedKeys[name]; ok {
		return k, nil
	}
	if len(name) == 1 && strings.Contains(keyboardChars, name) {
		return input.Key(name[0]), nil
	}
	return 0, fmt.Errorf("unsupported key %q", name)
}

// pressKeys holds every key but the last, taps the last, then releases the held keys.
func pressKeys(page *rod.Page, names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("no keys")
	}
	keys := make([]input.Key, 0, len(names))
	for _, n := range names {
		k, err := lookupKey(n)
		if err != nil {
			return err
		}
		keys = append(keys, k)
	}

	last := len(keys) - 1
	return page.KeyActions().Press(keys[:last]...).Type(keys[last]).Do()
}
