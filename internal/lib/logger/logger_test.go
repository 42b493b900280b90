package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec), line)
		records = append(records, rec)
	}
	return records
}

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		env       string
		wantDebug bool
		wantSrc   bool
	}{
		{env: EnvDev, wantDebug: true},
		{env: EnvProd, wantSrc: true},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(tt.env, &buf)

			log.Debug("debug message")
			log.Info("info message")

			records := decodeLines(t, &buf)
			if tt.wantDebug {
				require.Len(t, records, 2)
				assert.Equal(t, "debug message", records[0]["msg"])
			} else {
				require.Len(t, records, 1)
				assert.Equal(t, "info message", records[0]["msg"])
			}
			last := records[len(records)-1]
			assert.Equal(t, "order-service", last["service"])
			_, hasSource := last["source"]
			assert.Equal(t, tt.wantSrc, hasSource)
		})
	}
}

func TestNew_UnknownEnvFallsBackToProd(t *testing.T) {
	var buf bytes.Buffer
	log := New("staging", &buf)
	log.Debug("hidden")

	records := decodeLines(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "WARN", records[0]["level"])
	assert.Equal(t, "staging", records[0]["env"])
}

func TestNew_LocalIsPretty(t *testing.T) {
	var buf bytes.Buffer
	New(EnvLocal, &buf).Debug("pretty message")

	assert.Contains(t, buf.String(), "pretty message")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())), "local output is not JSON")
}
