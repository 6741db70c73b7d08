package tts

import (
	"sort"
	"testing"
)

func TestNormalizeVoiceID(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"plain string", "en_US-amy-medium", "en_US-amy-medium"},
		{"object with key", map[string]any{"key": "a"}, "a"},
		{"object with id", map[string]any{"id": "b"}, "b"},
		{"object with voiceId", map[string]any{"voiceId": "c"}, "c"},
		{"key wins over id", map[string]any{"key": "a", "id": "b"}, "a"},
		{"empty key falls through", map[string]any{"key": "", "id": "b"}, "b"},
		{"unidentifiable object", map[string]any{"label": "x"}, ""},
		{"nil", nil, ""},
		{"number", 7, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeVoiceID(tt.in); got != tt.want {
				t.Errorf("NormalizeVoiceID(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// The three wire shapes the remote library has been seen to use must all
// normalize to the same set.
func TestNormalizeVoiceSetWireShapes(t *testing.T) {
	inputs := map[string]any{
		"list of strings": []string{"a", "b"},
		"list of objects": []any{map[string]any{"key": "a"}, map[string]any{"id": "b"}},
		"map keyed by id":  map[string]any{"a": 1, "b": 1},
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			set := NormalizeVoiceSet(in)
			if len(set) != 2 {
				t.Fatalf("set size = %d, want 2", len(set))
			}
			for _, id := range []string{"a", "b"} {
				if _, ok := set[id]; !ok {
					t.Errorf("set missing %q", id)
				}
			}
		})
	}
}

func TestNormalizeVoiceSetDeduplicates(t *testing.T) {
	set := NormalizeVoiceSet([]string{"a", "a", "b"})
	if len(set) != 2 {
		t.Errorf("set size = %d, want 2", len(set))
	}
}

func TestNormalizeVoiceListOrderAndDrops(t *testing.T) {
	in := []any{
		map[string]any{"key": "first"},
		map[string]any{"label": "skipped"},
		"second",
	}
	got := NormalizeVoiceList(in)
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("NormalizeVoiceList = %v, want [first second]", got)
	}
}

func TestNormalizeVoiceListMap(t *testing.T) {
	got := NormalizeVoiceList(map[string]any{"b": 1, "a": 1})
	sort.Strings(got)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("NormalizeVoiceList = %v, want [a b]", got)
	}
}

func TestNormalizeVoiceListUnknownShape(t *testing.T) {
	if got := NormalizeVoiceList(42); got != nil {
		t.Errorf("NormalizeVoiceList(42) = %v, want nil", got)
	}
}
