package logging

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" warning "))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestNewWithOutput_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("warn", &buf)
	log.Info().Msg("hidden")
	log.Warn().Str("symbol", "AAPL").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"symbol":"AAPL"`)
}

func TestCronLogger(t *testing.T) {
	var buf bytes.Buffer
	cl := CronLogger{Log: NewWithOutput("debug", &buf)}
	cl.Info("schedule", "entry", 1)
	cl.Error(errors.New("boom"), "job panicked", "entry", 2)

	out := buf.String()
	assert.Contains(t, out, `"entry":1`)
	assert.Contains(t, out, `"error":"boom"`)
}
