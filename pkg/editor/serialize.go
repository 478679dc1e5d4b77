package editor

import (
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/cuemby/strata/pkg/content"
	"github.com/cuemby/strata/pkg/textutil"
	"github.com/cuemby/strata/pkg/types"
)

// Serialize returns the wire form of an entity as seen through its draft
func Serialize(e *content.Entity) *types.SerializedContent {
	label, value := e.Label(), e.Value()
	c := e.Content()
	sc := &types.SerializedContent{
		UID:          e.UID(),
		Type:         e.Type(),
		Label:        &label,
		Value:        &value,
		IsContentSet: e.IsSet(),
		Params:       e.Params(),
		Revision:     c.Revision,
		State:        string(c.State),
	}

	if e.IsSet() {
		if accept := e.Accept(); len(accept) > 0 {
			sc.Accept = make(map[string]string, len(accept))
			for _, typ := range accept {
				sc.Accept[typ] = typ
			}
		}
		set, _ := e.Set()
		sc.Items = make([]types.ItemRef, 0, set.Count())
		for _, ref := range set.All() {
			sc.Items = append(sc.Items, types.ItemRef{NodeType: ref.Type, UID: ref.UID})
		}
	} else {
		if def := e.Definition(); def != nil && len(def.Elements) > 0 {
			sc.Accept = maps.Clone(def.Elements)
		}
		elements := e.Elements()
		sc.Data = make(map[string]string, len(elements))
		for name, ref := range elements {
			sc.Data[name] = ref.UID
		}
	}

	if d := e.Draft(); d != nil {
		sc.Draft = &types.DraftInfo{
			UID:       d.UID,
			State:     d.State.String(),
			Base:      d.Revision,
			Conflicts: slices.Clone(d.Conflicts),
		}
	}
	return sc
}

// unserialize copies the scalar fields of sc into the entity. Setters are
// only called for changed values so untouched drafts stay clean.
func unserialize(e *content.Entity, sc *types.SerializedContent) {
	if sc.Label != nil && *sc.Label != e.Label() {
		e.SetLabel(*sc.Label)
	}
	if sc.Value != nil && *sc.Value != e.Value() {
		e.SetValue(*sc.Value)
	}
	keys := slices.Sorted(maps.Keys(sc.Params))
	for _, key := range keys {
		if current, ok := e.Param(key); ok && reflect.DeepEqual(current, sc.Params[key]) {
			continue
		}
		e.SetParam(key, sc.Params[key])
	}
}

// mainContent exposes the main content of a page to URL schemes
type mainContent struct {
	e    *content.Entity
	load func(ref types.Ref) (*content.Entity, error)
}

func (m mainContent) Type() string {
	return m.e.Type()
}

// Field returns the text of an element, a parameter, or the label or value
// of the content itself
func (m mainContent) Field(name string) string {
	if ref, ok := m.e.Element(name); ok {
		child, err := m.load(ref)
		if err != nil {
			return ""
		}
		return textutil.StripTags(child.Value())
	}
	if v, ok := m.e.Param(name); ok {
		return fmt.Sprint(v)
	}
	switch name {
	case "label":
		return m.e.Label()
	case "value":
		return textutil.StripTags(m.e.Value())
	}
	return ""
}
