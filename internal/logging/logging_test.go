package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nhle/mailai/internal/model"
)

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(model.LogConfig{Level: "debug", Format: "json"}, &buf)

	log.Debug().Str("uid", "7").Msg("fetched")

	require.Contains(t, buf.String(), `"uid":"7"`)
	require.Contains(t, buf.String(), `"message":"fetched"`)
}

func TestNewLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := New(model.LogConfig{Level: "warn", Format: "json"}, &buf)

	log.Info().Msg("hidden")
	require.Empty(t, buf.String())

	log.Warn().Msg("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestNewUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(model.LogConfig{Level: "loud", Format: "json"}, &buf)

	log.Debug().Msg("hidden")
	log.Info().Msg("shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
}
