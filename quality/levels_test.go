package quality

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/assetflow/device"
)

func TestLevels_Validate(t *testing.T) {
	tests := []struct {
		name    string
		levels  Levels
		wantErr bool
	}{
		{name: "valid", levels: Levels{{10, 1}, {20, 0.5}, {40, 0.2}}},
		{name: "single", levels: Levels{{10, 1}}},
		{name: "empty", levels: nil, wantErr: true},
		{name: "level 0 degraded", levels: Levels{{10, 0.9}}, wantErr: true},
		{name: "not increasing", levels: Levels{{10, 1}, {10, 0.5}}, wantErr: true},
		{name: "decreasing", levels: Levels{{10, 1}, {5, 0.5}}, wantErr: true},
		{name: "zero quality", levels: Levels{{10, 1}, {20, 0}}, wantErr: true},
		{name: "quality above one", levels: Levels{{10, 1}, {20, 1.5}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.levels.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidLevels)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLevels_Select(t *testing.T) {
	levels := Levels{{10, 1}, {25, 0.6}, {50, 0.35}, {100, 0.15}}

	assert.Equal(t, 0, levels.Select(0))
	assert.Equal(t, 0, levels.Select(10), "threshold is inclusive")
	assert.Equal(t, 1, levels.Select(10.01))
	assert.Equal(t, 2, levels.Select(49))
	assert.Equal(t, 3, levels.Select(100))
	assert.Equal(t, 3, levels.Select(1e9), "no match falls back to the last level")

	assert.Equal(t, 1.0, levels.Quality(-1))
	assert.Equal(t, 0.15, levels.Quality(99))
}

func TestLevelsFromPolicy(t *testing.T) {
	for _, tier := range []device.Tier{device.TierMobile, device.TierTablet, device.TierDesktop} {
		policy := device.QualityPolicyFor(device.BaseProfile(tier))
		levels, err := LevelsFromPolicy(policy.Levels)
		require.NoError(t, err, tier)
		assert.Len(t, levels, len(policy.Levels))
	}

	_, err := LevelsFromPolicy([]device.LevelSpec{{Distance: 5, Quality: 1}, {Distance: 1, Quality: 0.5}})
	assert.ErrorIs(t, err, ErrInvalidLevels)
}

// TestProperty_Select_MonotonicDistance 距离递增时等级不降，且每一步都等于首个匹配的阈值
func TestProperty_Select_MonotonicDistance(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "levels")
		levels := make(Levels, n)
		threshold := 0.0
		for i := range levels {
			threshold += rapid.Float64Range(0.5, 50).Draw(rt, "step")
			q := 1.0
			if i > 0 {
				q = rapid.Float64Range(0.01, 1).Draw(rt, "quality")
			}
			levels[i] = Level{DistanceThreshold: threshold, QualityFactor: q}
		}
		require.NoError(rt, levels.Validate())

		distances := rapid.SliceOfN(rapid.Float64Range(0, threshold*1.5), 1, 50).Draw(rt, "distances")
		sort.Float64s(distances)

		prev := 0
		for _, d := range distances {
			got := levels.Select(d)
			require.GreaterOrEqual(rt, got, prev, "quality never increases as distance grows")

			want := len(levels) - 1
			for i, l := range levels {
				if l.DistanceThreshold >= d {
					want = i
					break
				}
			}
			require.Equal(rt, want, got)
			prev = got
		}
	})
}
