package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestMerge_OverlayWins(t *testing.T) {
	base := map[string]any{"a": "base", "b": "base-only"}
	overlay := map[string]any{"a": "overlay", "c": "overlay-only"}

	merged := Merge(base, overlay)
	assert.Equal(t, "overlay", merged["a"])
	assert.Equal(t, "base-only", merged["b"])
	assert.Equal(t, "overlay-only", merged["c"])
}

func TestMerge_InputsUnmodified(t *testing.T) {
	base := map[string]any{"a": "base"}
	overlay := map[string]any{"a": "overlay"}

	merged := Merge(base, overlay)
	merged["a"] = "mutated"
	merged["new"] = true

	assert.Equal(t, "base", base["a"])
	assert.Equal(t, "overlay", overlay["a"])
	assert.NotContains(t, base, "new")
	assert.NotContains(t, overlay, "new")
}

func TestMerge_NilMaps(t *testing.T) {
	assert.Empty(t, Merge(nil, nil))
	assert.Equal(t, map[string]any{"a": "x"}, Merge(map[string]any{"a": "x"}, nil))
	assert.Equal(t, map[string]any{"a": "x"}, Merge(nil, map[string]any{"a": "x"}))
}

func TestMerge_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		gen := rapid.MapOf(rapid.StringMatching(`[a-z]{1,8}`), rapid.Int())
		base := anyMap(gen.Draw(t, "base"))
		overlay := anyMap(gen.Draw(t, "overlay"))

		merged := Merge(base, overlay)

		// Every overlay key wins; every base-only key survives
		for k, v := range overlay {
			if merged[k] != v {
				t.Fatalf("overlay key %q not taken: got %v want %v", k, merged[k], v)
			}
		}
		for k, v := range base {
			if _, shadowed := overlay[k]; !shadowed && merged[k] != v {
				t.Fatalf("base key %q lost: got %v want %v", k, merged[k], v)
			}
		}
		if len(merged) > len(base)+len(overlay) {
			t.Fatalf("merge invented keys: %d > %d+%d", len(merged), len(base), len(overlay))
		}
	})
}

func anyMap(in map[string]int) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
