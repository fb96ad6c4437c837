package main

import (
	"encoding/json"
	"html"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/deepteams/mustache"
)

// jsonHost implements the engine callbacks over a decoded JSON document.
// The current scope travels in UData1: maps for objects, []any for the
// element picked by each iteration, scalars for leaf contexts.
type jsonHost struct {
	out io.Writer
	log *zap.SugaredLogger
}

func (h *jsonHost) OnText(sec *mustache.Section, text []byte) error {
	_, err := h.out.Write(text)
	return err
}

func (h *jsonHost) OnArg(sec *mustache.Section, name []byte, escape bool) error {
	v, _ := lookup(sec, string(name))
	s := formatValue(v)
	if escape {
		s = html.EscapeString(s)
	}
	_, err := io.WriteString(h.out, s)
	return err
}

func (h *jsonHost) OnSectionTest(sec *mustache.Section, name []byte, callable bool) (int, error) {
	v, ok := lookup(sec, string(name))
	if !ok {
		return 0, nil
	}
	switch x := v.(type) {
	case nil:
		return 0, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case []any:
		return len(x), nil
	case string:
		if x == "" {
			return 0, nil
		}
		return 1, nil
	case float64:
		if x == 0 {
			return 0, nil
		}
		return 1, nil
	default:
		// Objects are truthy and become the section's scope.
		return 1, nil
	}
}

func (h *jsonHost) OnSectionStart(sec *mustache.Section, name []byte, index int) error {
	v, ok := lookup(sec, string(name))
	if !ok {
		return nil
	}
	if arr, isArr := v.([]any); isArr {
		if index < len(arr) {
			sec.UData1 = arr[index]
		}
		return nil
	}
	sec.UData1 = v
	return nil
}

func (h *jsonHost) OnError(udata1, udata2 any) {
	h.log.Debugw("render aborted")
}

// lookup resolves name against the section's scope chain. A plain name
// is searched in the current scope and then outward through the
// parents; a dotted name resolves its first key that way and the rest
// strictly inside the value found. "." is the current scope itself.
func lookup(sec *mustache.Section, name string) (any, bool) {
	if name == "." {
		return sec.UData1, true
	}
	keys := strings.Split(name, ".")
	for s := sec; s != nil; s = s.Parent() {
		v, ok := fetch(s.UData1, keys[0])
		if !ok {
			continue
		}
		for _, k := range keys[1:] {
			v, ok = fetch(v, k)
			if !ok {
				return nil, false
			}
		}
		return v, true
	}
	return nil, false
}

// fetch reads one key from a scope value.
func fetch(scope any, key string) (any, bool) {
	switch m := scope.(type) {
	case map[string]any:
		v, ok := m[key]
		return v, ok
	case []any:
		// Numeric keys index into arrays.
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(m) {
			return nil, false
		}
		return m[i], true
	default:
		return nil, false
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		// Compound values render as compact JSON.
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
