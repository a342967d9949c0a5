package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		pattern string
		rawVal  float64
		want    float64
	}{
		{name: "bare", raw: "012.500", pattern: PatternBare, rawVal: 12.5, want: 5.21},
		{name: "bare-zero", raw: "0.00", pattern: PatternBare, rawVal: 0, want: 0},
		{name: "bare-negative", raw: "-5.00", pattern: PatternBare, rawVal: -5, want: -0.5},
		{name: "bare-integer", raw: "0021", pattern: PatternBare, rawVal: 21, want: 1200},
		{name: "status", raw: "ST,GS,+   10.123kg", pattern: PatternStatus, rawVal: 10.123, want: 321.01},
		{name: "kg-suffix", raw: "US 10.123kg", pattern: PatternKg, rawVal: 10.123, want: 321.01},
		{name: "grams", raw: "1500g", pattern: PatternGrams, rawVal: 1.5, want: 5.1},
		{name: "grams-spaced", raw: "NET 2000 g", pattern: PatternGrams, rawVal: 2, want: 2},
		{name: "fallback", raw: "W:00.5 x", pattern: PatternFallback, rawVal: 0.5, want: 5},
		{name: "fallback-trailing-dot", raw: "Peso: 12.50.", pattern: PatternFallback, rawVal: 12.5, want: 5.21},
		{name: "fallback-dot-separator", raw: "W.12.50", pattern: PatternFallback, rawVal: 12.5, want: 5.21},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := Decode(tc.raw)
			require.True(t, res.OK(), "decode miss for %q", tc.raw)
			assert.Equal(t, tc.pattern, res.Pattern)
			require.NotNil(t, res.RawValue)
			assert.InDelta(t, tc.rawVal, *res.RawValue, 1e-9)
			assert.InDelta(t, tc.want, *res.Weight, 1e-9)
		})
	}
}

func TestDecodeStatusPatternPrecedence(t *testing.T) {
	status := Decode("ST,GS,+   10.123kg")
	suffix := Decode("10.123kg")

	require.True(t, status.OK())
	require.True(t, suffix.OK())
	assert.Equal(t, PatternStatus, status.Pattern)
	assert.Equal(t, PatternKg, suffix.Pattern)
	assert.Equal(t, *suffix.RawValue, *status.RawValue)

	bare := Decode("10.123")
	require.True(t, bare.OK())
	assert.Equal(t, *bare.RawValue, *status.RawValue)
}

func TestDecodeNoValue(t *testing.T) {
	for _, raw := range []string{"", "   ", "bc", "ST,GS,+kg", "1.2.3", ".5", "W 1.2.3", "x .5"} {
		res := Decode(raw)
		assert.False(t, res.OK(), "expected no value for %q", raw)
		assert.Nil(t, res.Weight)
	}
}

func TestDecodeDistinguishesZeroFromMiss(t *testing.T) {
	zero := Decode("0")
	require.True(t, zero.OK())
	assert.Equal(t, 0.0, *zero.Weight)

	miss := Decode("--")
	assert.False(t, miss.OK())
}

func TestReverse(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "10.00", want: "00.01", ok: true},
		{in: "012.500", want: "005.210", ok: true},
		{in: "1200", want: "0021", ok: true},
		{in: "-3.25", want: "-52.3", ok: true},
		{in: "1.2.3", ok: false},
		{in: "1a.0", ok: false},
		{in: "", ok: false},
		{in: "5.", ok: false},
	}
	for _, tc := range tests {
		got, ok := Reverse(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got, tc.in)
		}
	}
}

func TestReverseIsItsOwnInverse(t *testing.T) {
	for _, in := range []string{"10.00", "012.500", "7", "-45.6"} {
		once, ok := Reverse(in)
		require.True(t, ok)
		twice, ok := Reverse(once)
		require.True(t, ok)
		assert.Equal(t, in, twice)
	}
}
