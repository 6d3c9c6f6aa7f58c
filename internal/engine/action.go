package engine

import (
	"encoding/json"
	"math"
)

// Action is a decoded action payload. Payloads are JSON objects, so numbers
// arrive as float64; the accessors below smooth that over.
type Action map[string]any

// TypeMessage is the chat action type.
const TypeMessage = "message"

// ID is the claimed action id, or 0 when absent or not an integer.
func (a Action) ID() int {
	n, _ := a.Int("id")
	return n
}

func (a Action) Type() string    { return a.String("type") }
func (a Action) Message() string { return a.String("message") }
func (a Action) Entity() string  { return a.String("entity") }

func (a Action) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Int reads an integral number stored under key.
func (a Action) Int(key string) (int, bool) {
	switch v := a[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

// Clone returns a shallow copy, enough for engines that only set top-level keys.
func (a Action) Clone() Action {
	c := make(Action, len(a))
	for k, v := range a {
		c[k] = v
	}
	return c
}

// Without returns a copy of a with key removed.
func (a Action) Without(key string) Action {
	c := a.Clone()
	delete(c, key)
	return c
}
