package content

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/cuemby/strata/pkg/types"
)

// Change describes one key that differs between two payloads. Patch holds a
// textual patch for string values and is empty otherwise.
type Change struct {
	Key   string `json:"key"`
	Old   any    `json:"old,omitempty"`
	New   any    `json:"new,omitempty"`
	Patch string `json:"patch,omitempty"`
}

var dmp = diffmatchpatch.New()

// Diff lists the keys that changed from one payload to another, sorted by key
func Diff(from, to types.Payload) []Change {
	a, b := flatten(from), flatten(to)
	keys := slices.Sorted(maps.Keys(a))
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	var changes []Change
	for _, key := range keys {
		ov, nv := a[key], b[key]
		if reflect.DeepEqual(ov, nv) {
			continue
		}
		changes = append(changes, Change{
			Key:   key,
			Old:   ov,
			New:   nv,
			Patch: patch(ov, nv),
		})
	}
	return changes
}

func patch(ov, nv any) string {
	oldText, oldOK := asText(ov)
	newText, newOK := asText(nv)
	if !oldOK && !newOK {
		return ""
	}
	diffs := dmp.DiffMain(oldText, newText, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return dmp.PatchToText(dmp.PatchMake(oldText, diffs))
}

func asText(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case types.Ref:
		return t.Type + ":" + t.UID, true
	case []types.Ref:
		var s string
		for _, r := range t {
			s += r.Type + ":" + r.UID + "\n"
		}
		return s, true
	case int:
		return fmt.Sprint(t), true
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}
