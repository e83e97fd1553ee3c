package xasio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluateScalarArithmetic(t *testing.T) {
	v, err := Evaluate("2 + 3 * 4", nil)
	require.NoError(t, err)
	require.True(t, v.IsScalar)
	require.Equal(t, 14.0, v.Scalar)
}

func TestEvaluatePowerRightAssociative(t *testing.T) {
	v, err := Evaluate("2 ** 3 ** 2", nil)
	require.NoError(t, err)
	require.Equal(t, 512.0, v.Scalar)
}

func TestEvaluateChannelArrays(t *testing.T) {
	ns := map[string]Value{
		"I0":         ArrayValue([]float64{1, 2, 4}),
		"Ir_Pt_corr": ArrayValue([]float64{2, 4, 8}),
	}
	v, err := Evaluate("log(Ir_Pt_corr / I0)", ns)
	require.NoError(t, err)
	require.InDelta(t, 0.6931471805599453, v.Array[0], 1e-9)
}

func TestEvaluateUnknownIdentifier(t *testing.T) {
	_, err := Evaluate("foo + 1", nil)
	require.Error(t, err)
}

func TestEvaluateMismatchedArrayLengths(t *testing.T) {
	ns := map[string]Value{
		"a": ArrayValue([]float64{1, 2}),
		"b": ArrayValue([]float64{1, 2, 3}),
	}
	_, err := Evaluate("a + b", ns)
	require.Error(t, err)
}

func TestExtractChannelPathsFullAndShort(t *testing.T) {
	avail := map[string]struct{}{
		"instrument/energy_enc": {},
		"instrument/I0":         {},
	}
	paths, err := ExtractChannelPaths("log(instrument__I0) + energy_enc", avail)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"instrument/I0", "instrument/energy_enc"}, paths)
}

func TestExtractChannelPathsAmbiguousShortNameSkipped(t *testing.T) {
	avail := map[string]struct{}{
		"instrument/I0": {},
		"detector/I0":   {},
	}
	paths, err := ExtractChannelPaths("I0 * 2", avail)
	require.NoError(t, err)
	require.Empty(t, paths)
}

func TestExtractChannelPathsIgnoresSafeFuncNames(t *testing.T) {
	avail := map[string]struct{}{"instrument/mu_roi": {}}
	paths, err := ExtractChannelPaths("sqrt(mu_roi)", avail)
	require.NoError(t, err)
	require.Equal(t, []string{"instrument/mu_roi"}, paths)
}
