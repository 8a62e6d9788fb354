package normalize

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// Sentinel markers a prompt can ask the model to wrap its JSON in.
const (
	SentinelStart = "___JSON_START___"
	SentinelEnd   = "___JSON_END___"
)

// ErrNoJSON is returned when no strategy yields a JSON object.
var ErrNoJSON = errors.New("no JSON object found in model output")

// Strategy locates a JSON candidate inside free-form model output.
type Strategy struct {
	Name string
	Find func(text string) (string, bool)
}

var (
	reSentinel = regexp.MustCompile(`(?s)` + SentinelStart + `(.*?)` + SentinelEnd)
	reFence    = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")
)

var (
	SentinelStrategy = Strategy{Name: "sentinel", Find: findSentinel}
	FenceStrategy    = Strategy{Name: "fence", Find: findFence}
	BraceStrategy    = Strategy{Name: "brace", Find: findBraces}
)

// Strategies is the extraction order. Earlier entries win.
var Strategies = []Strategy{SentinelStrategy, FenceStrategy, BraceStrategy}

func findSentinel(text string) (string, bool) {
	m := reSentinel.FindStringSubmatch(text)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return "", false
	}
	return m[1], true
}

func findFence(text string) (string, bool) {
	m := reFence.FindStringSubmatch(text)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return "", false
	}
	return m[1], true
}

func findBraces(text string) (string, bool) {
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first == -1 || last <= first {
		return "", false
	}
	return text[first : last+1], true
}

// ExtractJSON walks Strategies in order and returns the first candidate that
// decodes to a JSON object, with the name of the strategy that found it.
// A candidate that is found but does not decode falls through to the next
// strategy.
func ExtractJSON(text string) (map[string]any, string, error) {
	for _, s := range Strategies {
		candidate, ok := s.Find(text)
		if !ok {
			continue
		}
		obj, err := decodeObject(candidate)
		if err != nil {
			continue
		}
		return obj, s.Name, nil
	}
	return nil, "", ErrNoJSON
}

func decodeObject(s string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, ErrNoJSON
	}
	return obj, nil
}
