package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/meetiq/config"
	mqerrors "github.com/otherjamesbrown/meetiq/pkg/errors"
	"github.com/otherjamesbrown/meetiq/pkg/ingest/transcript"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/profile"
)

func TestResolveFormat(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OutputFormat = config.OutputFormatYAML

	tests := []struct {
		name     string
		override string
		want     config.OutputFormat
		wantErr  bool
	}{
		{name: "config default", want: config.OutputFormatYAML},
		{name: "override", override: "json", want: config.OutputFormatJSON},
		{name: "invalid", override: "csv", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveFormat(cfg, tt.override)
			if tt.wantErr {
				assert.True(t, mqerrors.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	empty := config.DefaultConfig()
	empty.OutputFormat = ""
	got, err := resolveFormat(empty, "")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultOutputFormat, got)
}

func TestParseType(t *testing.T) {
	table := profile.Default()

	id, err := parseType(table, "")
	require.NoError(t, err)
	assert.Empty(t, id)

	id, err = parseType(table, "decision-making")
	require.NoError(t, err)
	assert.Equal(t, profile.DecisionMaking, id)

	_, err = parseType(table, "retro")
	assert.True(t, mqerrors.IsValidation(err))
}

func TestReadTranscript_DetectsVTT(t *testing.T) {
	vtt := "WEBVTT\n\n1\n00:00:01.000 --> 00:00:04.000\nAlice: Morning everyone.\n\n2\n00:00:05.000 --> 00:00:09.500\nBob: Yesterday I shipped the fix.\n"
	// no extension, so the header decides
	path := filepath.Join(t.TempDir(), "Weekly Sync-20240312 0930-2")
	require.NoError(t, os.WriteFile(path, []byte(vtt), 0o600))

	lt, err := readTranscript(path, "", "")
	require.NoError(t, err)
	assert.Equal(t, transcript.FormatVTT, lt.Transcript.Format)
	require.Len(t, lt.Transcript.Segments, 2)
	assert.Equal(t, "Alice", lt.Transcript.Segments[0].Speaker)
	assert.Equal(t, 5*time.Second, lt.Transcript.Segments[1].Start)

	assert.Equal(t, "Weekly Sync", lt.Info.Title)
	assert.True(t, lt.Info.HasClock)
	assert.Equal(t, 9, lt.Info.Start.Hour())
	assert.Equal(t, 30, lt.Info.Start.Minute())
}

func TestReadTranscript_ExplicitFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.vtt")
	require.NoError(t, os.WriteFile(path, []byte("0:05 : Alice : hello\n"), 0o600))

	lt, err := readTranscript(path, transcript.FormatTXT, "")
	require.NoError(t, err)
	require.Len(t, lt.Transcript.Segments, 1)
	assert.Equal(t, "hello", lt.Transcript.Segments[0].Text)
}

func TestWriteStructured(t *testing.T) {
	v := map[string]int{"score": 72}

	var buf bytes.Buffer
	require.NoError(t, writeStructured(&buf, config.OutputFormatJSON, v))
	assert.Equal(t, "{\n  \"score\": 72\n}\n", buf.String())

	buf.Reset()
	require.NoError(t, writeStructured(&buf, config.OutputFormatYAML, v))
	assert.Equal(t, "score: 72\n", buf.String())

	assert.Error(t, writeStructured(&buf, config.OutputFormatText, v))
}

func TestNewLogger(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LogFormat = config.LogFormatJSON

	var buf bytes.Buffer
	log := NewLogger(cfg, &buf)
	log.Info("hidden")
	log.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	cfg.Debug = true
	buf.Reset()
	NewLogger(cfg, &buf).Debug("verbose")
	assert.Contains(t, buf.String(), "verbose")
}
