package llm

// Schema helpers produce JSON-Schema fragments as generic maps. Task schemas
// are deliberately loose: models return numbers as strings, so numeric fields
// accept both and the normalizer coerces them afterwards.

// ObjectSchema builds an object schema that tolerates extra properties.
func ObjectSchema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func StringProp() map[string]any {
	return map[string]any{"type": []any{"string", "null"}}
}

// NumericProp accepts a number, a numeric-looking string or null.
func NumericProp() map[string]any {
	return map[string]any{"type": []any{"number", "string", "null"}}
}

func BoolProp() map[string]any {
	return map[string]any{"type": []any{"boolean", "string", "null"}}
}

// EnumProp constrains a string to a closed set (null allowed).
func EnumProp(values []string) map[string]any {
	enum := make([]any, 0, len(values)+1)
	for _, v := range values {
		enum = append(enum, v)
	}
	enum = append(enum, nil)
	return map[string]any{"enum": enum}
}

func StringArrayProp() map[string]any {
	return map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}
}
