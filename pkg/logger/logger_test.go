package logger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/nfe-conciliacao/pkg/logger"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, logger.ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, logger.ParseLevel(" WARN "))
	assert.Equal(t, zerolog.InfoLevel, logger.ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, logger.ParseLevel("verboso"))
}

func TestComponent_JSON(t *testing.T) {
	var buf bytes.Buffer
	lg := logger.New(logger.Config{Env: "production", Level: "info", Service: "nfe", Out: &buf})

	c := lg.Component("importer")
	c.Info().Str("import_id", "imp-1").Msg("importación terminada")
	lg.Debug().Msg("filtrado por nivel")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry), buf.String())
	assert.Equal(t, "nfe", entry["service"])
	assert.Equal(t, "importer", entry["component"])
	assert.Equal(t, "imp-1", entry["import_id"])
	assert.Equal(t, "importación terminada", entry["message"])
}
