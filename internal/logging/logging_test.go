package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	req := require.New(t)
	req.Equal(zerolog.DebugLevel, ParseLevel(" debug ", zerolog.InfoLevel))
	req.Equal(zerolog.WarnLevel, ParseLevel("WARNING", zerolog.InfoLevel))
	req.Equal(zerolog.InfoLevel, ParseLevel("bogus", zerolog.InfoLevel))
}

func TestNewWithWriter_JSON(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn", false)

	log.Info().Msg("dropped")
	req.Zero(buf.Len())

	log.Warn().Str("topic", "MESSAGE_CREATED").Msg("kept")
	req.Contains(buf.String(), `"topic":"MESSAGE_CREATED"`)
	req.Contains(buf.String(), `"message":"kept"`)
}
