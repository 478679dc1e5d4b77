package content

import (
	"encoding/json"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/cuemby/strata/pkg/types"
)

const (
	keyLabel    = "label"
	keyValue    = "value"
	keyMaxEntry = "maxentry"
	keyAccept   = "accept"
	keyItems    = "items"

	prefixElements = "elements."
	prefixParams   = "params."
)

// flatten turns a payload into comparable keyed values. Absent elements and
// params have no key at all.
func flatten(p types.Payload) map[string]any {
	out := map[string]any{
		keyLabel:    p.Label,
		keyValue:    p.Value,
		keyMaxEntry: p.MaxEntry,
		keyAccept:   normalizeStrings(p.Accept),
		keyItems:    normalizeRefs(p.Items),
	}
	for name, ref := range p.Elements {
		out[prefixElements+name] = ref
	}
	for name, v := range p.Params {
		out[prefixParams+name] = normalizeParam(v)
	}
	return out
}

// normalizeParam gives a param the shape it has once read back from storage
// or the API, so an int default and the float64 it decodes to compare equal
func normalizeParam(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// normalizeParams copies params through normalizeParam
func normalizeParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = normalizeParam(v)
	}
	return out
}

func normalizeStrings(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return slices.Clone(s)
}

func normalizeRefs(s []types.Ref) []types.Ref {
	if len(s) == 0 {
		return nil
	}
	return slices.Clone(s)
}

// assign writes a flattened value back. A nil value removes elements and params.
func assign(p *types.Payload, key string, v any) {
	switch {
	case key == keyLabel:
		p.Label, _ = v.(string)
	case key == keyValue:
		p.Value, _ = v.(string)
	case key == keyMaxEntry:
		p.MaxEntry, _ = v.(int)
	case key == keyAccept:
		s, _ := v.([]string)
		p.Accept = slices.Clone(s)
	case key == keyItems:
		s, _ := v.([]types.Ref)
		p.Items = slices.Clone(s)
	case strings.HasPrefix(key, prefixElements):
		name := strings.TrimPrefix(key, prefixElements)
		ref, ok := v.(types.Ref)
		if !ok {
			delete(p.Elements, name)
			return
		}
		if p.Elements == nil {
			p.Elements = make(map[string]types.Ref)
		}
		p.Elements[name] = ref
	case strings.HasPrefix(key, prefixParams):
		name := strings.TrimPrefix(key, prefixParams)
		if v == nil {
			delete(p.Params, name)
			return
		}
		if p.Params == nil {
			p.Params = make(map[string]any)
		}
		p.Params[name] = v
	}
}

// merge performs a three-way merge of mine and theirs against base
func merge(base, theirs, mine types.Payload) (types.Payload, []string) {
	b, t, m := flatten(base), flatten(theirs), flatten(mine)

	keys := make(map[string]struct{}, len(b)+len(t)+len(m))
	for _, src := range []map[string]any{b, t, m} {
		for k := range src {
			keys[k] = struct{}{}
		}
	}

	out := mine.Clone()
	var conflicts []string
	for _, key := range slices.Sorted(maps.Keys(keys)) {
		bv, tv, mv := b[key], t[key], m[key]
		switch {
		case reflect.DeepEqual(mv, tv):
		case reflect.DeepEqual(mv, bv):
			assign(&out, key, tv)
		case reflect.DeepEqual(tv, bv):
		default:
			conflicts = append(conflicts, key)
		}
	}
	return out, conflicts
}
