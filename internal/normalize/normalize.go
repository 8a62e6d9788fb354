// Package normalize turns raw model output into a flat record of plain
// values: JSON is located and decoded, schema-shaped envelopes are
// unwrapped, numeric and boolean fields are coerced and controlled fields
// are mapped onto the vocabulary.
package normalize

import (
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/property-importer/internal/vocab"
)

// Result describes one normalization.
type Result struct {
	Data     map[string]any
	Strategy string
	Dropped  []string
	Err      error
}

// Normalize never fails: text that yields no usable object becomes {}.
func Normalize(text string, v *vocab.Vocabulary) map[string]any {
	return NormalizeDetailed(text, v).Data
}

// NormalizeDetailed is Normalize with the strategy that matched and the
// vocabulary fields that were dropped.
func NormalizeDetailed(text string, v *vocab.Vocabulary) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("normalize.panic", "panic", r)
			res = Result{Data: map[string]any{}, Err: fmt.Errorf("normalize: %v", r)}
		}
	}()

	obj, strategy, err := ExtractJSON(text)
	if err != nil {
		return Result{Data: map[string]any{}, Err: err}
	}
	obj = FlattenObject(obj)
	CoerceNumbers(obj)
	var dropped []string
	if v != nil {
		dropped = ApplyVocabulary(obj, v)
	}
	return Result{Data: obj, Strategy: strategy, Dropped: dropped}
}
