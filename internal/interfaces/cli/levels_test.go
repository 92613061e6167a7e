package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/turtacn/FeatureScope/pkg/errors"
	"github.com/turtacn/FeatureScope/pkg/types/scatter"
)

func TestLevelsCmd_TableOnly(t *testing.T) {
	stdout, _, err := runCLI(t, "levels", "-o", "json")
	require.NoError(t, err)

	var res LevelsResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, []scatter.Threshold{{MinScale: 1, Level: "10"}, {MinScale: 3, Level: "30"}, {MinScale: 7, Level: "90"}}, res.Thresholds)
	assert.Empty(t, res.Decisions)
}

func TestLevelsCmd_Decisions(t *testing.T) {
	stdout, _, err := runCLI(t, "levels", "0.1", "3.5", "20", "--available", "10,30", "-o", "json")
	require.NoError(t, err)

	var res LevelsResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	require.Len(t, res.Decisions, 3)

	low := res.Decisions[0]
	assert.Equal(t, 0.5, low.Clamped, "clamped to the minimum scale")
	assert.Equal(t, "10", low.Level)

	mid := res.Decisions[1]
	assert.Equal(t, "30", mid.Level)
	assert.False(t, mid.FellBack)

	high := res.Decisions[2]
	assert.Equal(t, 8.0, high.Clamped)
	assert.Equal(t, "90", high.Requested)
	assert.Equal(t, "10", high.Level, "falls back to the lowest available level")
	assert.True(t, high.FellBack)
}

func TestLevelsCmd_TableOutput(t *testing.T) {
	stdout, _, err := runCLI(t, "levels", "-o", "table")
	require.NoError(t, err)
	assert.Equal(t, "MIN SCALE  LEVEL\n---------  -----\n1          10\n3          30\n7          90\n", stdout)

	stdout, _, err = runCLI(t, "levels", "8", "--available", "10,30")
	require.NoError(t, err)
	assert.Contains(t, stdout, "10 (fallback)")
}

func TestLevelsCmd_InvalidScale(t *testing.T) {
	for _, arg := range []string{"abc", "Inf", "NaN"} {
		_, _, err := runCLI(t, "levels", arg)
		require.Error(t, err, arg)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeScaleInvalid), arg)
	}
}

func TestLevelsCmd_Remote(t *testing.T) {
	srv, _ := startServer(t)
	stdout, _, err := runCLI(t, "--server", srv.URL, "levels", "3.5", "8", "--available", "10,30", "--remote", "-o", "json")
	require.NoError(t, err)

	var res LevelsResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	require.Len(t, res.Thresholds, 3)
	require.Len(t, res.Decisions, 2)
	assert.Equal(t, "30", res.Decisions[0].Level)
	assert.True(t, res.Decisions[1].FellBack)
}

func TestParseFeatureIDs(t *testing.T) {
	assert.Equal(t, []scatter.FeatureID{"1", "22", "3"}, parseFeatureIDs(" 1, 22,,3 "))
	assert.Nil(t, parseFeatureIDs(""))
}
