package normalize

// Flatten unwraps {type, properties: {...}} envelopes anywhere in v. The
// inner properties move up one level and the envelope's type is reattached,
// along with animation and theme when the envelope carries them. A "type" of
// "object" is a JSON-Schema echo and does not overwrite the inner type.
func Flatten(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if props, ok := t["properties"].(map[string]any); ok {
			out := make(map[string]any, len(props)+3)
			for k, pv := range props {
				out[k] = pv
			}
			if typ, ok := t["type"]; ok && typ != nil && typ != "object" {
				out["type"] = typ
			}
			for _, k := range []string{"animation", "theme"} {
				if wv, ok := t[k]; ok && wv != nil {
					out[k] = wv
				}
			}
			t = out
		}
		for k, e := range t {
			t[k] = Flatten(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = Flatten(e)
		}
		return t
	default:
		return v
	}
}

// FlattenObject is Flatten for a top-level object.
func FlattenObject(obj map[string]any) map[string]any {
	if out, ok := Flatten(obj).(map[string]any); ok {
		return out
	}
	return obj
}
