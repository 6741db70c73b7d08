package tts

// Voice describes a fallback-engine voice.
type Voice struct {
	Name string // display name
	Lang string // language tag, e.g. "en-US"
	URI  string // unique identifier
}

// NormalizeVoiceID extracts a voice identifier from a single wire value. The
// remote synthesis library reports voices as plain strings or as objects
// keyed by "key", "id" or "voiceId"; anything else yields "".
func NormalizeVoiceID(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		for _, field := range []string{"key", "id", "voiceId"} {
			if s, ok := val[field].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// NormalizeVoiceList flattens a wire-shaped voice listing into identifiers,
// preserving order and dropping entries it cannot identify. Accepted shapes:
// a list of strings, a list of objects with a key/id/voiceId field, or a
// mapping keyed by identifier.
func NormalizeVoiceList(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		ids := make([]string, 0, len(val))
		for _, item := range val {
			if id := NormalizeVoiceID(item); id != "" {
				ids = append(ids, id)
			}
		}
		return ids
	case map[string]any:
		ids := make([]string, 0, len(val))
		for k := range val {
			ids = append(ids, k)
		}
		return ids
	}
	return nil
}

// NormalizeVoiceSet converts a wire-shaped voice listing into a deduplicated
// identifier set.
func NormalizeVoiceSet(v any) map[string]struct{} {
	set := make(map[string]struct{})
	for _, id := range NormalizeVoiceList(v) {
		set[id] = struct{}{}
	}
	return set
}
