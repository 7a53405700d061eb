package device

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClassify_UserAgent(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want Tier
	}{
		{"iphone", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)", TierMobile},
		{"android phone", "Mozilla/5.0 (Linux; Android 14; Pixel 8) Mobile Safari", TierMobile},
		{"android tablet", "Mozilla/5.0 (Linux; Android 14; SM-X910) Safari", TierTablet},
		{"ipad", "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X)", TierTablet},
		{"desktop", "Mozilla/5.0 (X11; Linux x86_64) Chrome/120", TierDesktop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Classify(Environment{UserAgent: tt.ua})
			assert.Equal(t, tt.want, p.Tier)
		})
	}
}

func TestClassify_TouchHeuristics(t *testing.T) {
	p := Classify(Environment{TouchPoints: 5, ScreenWidth: 390, ScreenHeight: 844})
	assert.Equal(t, TierMobile, p.Tier)

	p = Classify(Environment{TouchPoints: 5, ScreenWidth: 1180, ScreenHeight: 820})
	assert.Equal(t, TierTablet, p.Tier)

	p = Classify(Environment{ScreenWidth: 390, ScreenHeight: 844})
	assert.Equal(t, TierDesktop, p.Tier, "no touch support means no mobile heuristics")
}

func TestClassify_MemoryCeiling(t *testing.T) {
	p := Classify(Environment{UserAgent: "desktop", DeviceMemoryGB: Some(4.0)})
	assert.Equal(t, TierDesktop, p.Tier)
	assert.Equal(t, int64(1*gb), p.MemoryLimitBytes)

	p = Classify(Environment{UserAgent: "desktop", DeviceMemoryGB: Some(1.0)})
	assert.Equal(t, TierTablet, p.Tier)
	assert.Equal(t, int64(256*mb), p.MemoryLimitBytes)
}

func TestClassifier_Memoized(t *testing.T) {
	c := NewClassifier(Environment{UserAgent: "iPhone"}, zap.NewNop())

	first := c.Classify()
	c.env.UserAgent = "X11; Linux"
	assert.Equal(t, first.Tier, c.Classify().Tier, "result must be memoized")

	c.Reset()
	assert.Equal(t, TierDesktop, c.Classify().Tier)
}

func TestProfile_Formats(t *testing.T) {
	p := BaseProfile(TierMobile)
	assert.True(t, p.HasFormat("GLB"))
	assert.False(t, p.HasFormat("fbx"))
	assert.Equal(t, []string{"draco", "glb"}, p.Formats())
}

func TestOption_Unknown(t *testing.T) {
	var battery Option[Battery]
	_, ok := battery.Get()
	assert.False(t, ok)
	assert.Equal(t, "unknown", battery.String())
	assert.Equal(t, "ANGLE", Some("ANGLE").String())
	assert.Equal(t, 3.0, None[float64]().OrElse(3))
}

func TestEnvironmentFromHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("User-Agent", "SomeBrowser/1.0")
	h.Set("Sec-CH-UA-Mobile", "?1")
	h.Set("Device-Memory", "2")
	h.Set("DPR", "3")

	env := EnvironmentFromHeaders(h)
	mem, ok := env.DeviceMemoryGB.Get()
	require.True(t, ok)
	assert.Equal(t, 2.0, mem)
	assert.Equal(t, 3.0, env.PixelRatio)
	assert.Equal(t, TierMobile, Classify(env).Tier)
}

func TestProfileFromHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")
	h.Set("Device-Memory", "4")

	p := ProfileFromHeaders(h)
	assert.Equal(t, TierDesktop, p.Tier)
	assert.Equal(t, int64(1*gb), p.MemoryLimitBytes, "limited to a quarter of device memory")
}

func TestQualityPolicyFor(t *testing.T) {
	for _, tier := range []Tier{TierMobile, TierTablet, TierDesktop} {
		policy := QualityPolicyFor(BaseProfile(tier))
		require.NotEmpty(t, policy.Levels)
		for i := 1; i < len(policy.Levels); i++ {
			assert.Greater(t, policy.Levels[i].Distance, policy.Levels[i-1].Distance, "tier %s", tier)
			assert.LessOrEqual(t, policy.Levels[i].Quality, policy.Levels[i-1].Quality, "tier %s", tier)
		}
	}

	mobile := QualityPolicyFor(BaseProfile(TierMobile))
	desktop := QualityPolicyFor(BaseProfile(TierDesktop))
	assert.True(t, mobile.StartEnabled)
	assert.False(t, desktop.StartEnabled)
	assert.True(t, desktop.AllowAutoDisable)
	assert.Less(t, mobile.Levels[len(mobile.Levels)-1].Quality, desktop.Levels[len(desktop.Levels)-1].Quality)

	assert.False(t, OptimizationSettingsFor(BaseProfile(TierMobile)).ShadowsEnabled)
	assert.True(t, OptimizationSettingsFor(BaseProfile(TierDesktop)).ShadowsEnabled)
}
