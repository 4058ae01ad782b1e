package transcript

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVTT_NumberedSpeakerHeaders(t *testing.T) {
	vttContent := `WEBVTT

1 "" (0)
00:00:00.000 --> 00:00:05.579
Okay, that sounds good. Thanks. All right, 321.

2 "Alan Dickens" (1262511360)
00:00:05.579 --> 00:00:06.858
Go.

3 "Mitul Mehta" (3330436864)
00:00:06.858 --> 00:00:34.950
Alright, thanks everyone for joining today. This is the agenda that we have lined up.
`

	result, err := ParseVTT(strings.NewReader(vttContent))
	require.NoError(t, err)
	require.Len(t, result.Segments, 3)

	assert.Equal(t, []string{"Alan Dickens", "Mitul Mehta"}, result.Speakers)
	assert.Equal(t, "", result.Segments[0].Speaker)

	alan := result.Segments[1]
	assert.Equal(t, "Alan Dickens", alan.Speaker)
	assert.Equal(t, "1262511360", alan.SpeakerID)
	assert.Equal(t, "Go.", alan.Text)
	assert.Equal(t, 5579*time.Millisecond, alan.Start)
	assert.Equal(t, 6858*time.Millisecond, alan.End)

	assert.Equal(t, 34950*time.Millisecond, result.Duration)
	assert.Equal(t, FormatVTT, result.Format)
}

func TestParseVTT_VoiceTags(t *testing.T) {
	vttContent := `WEBVTT

00:00:01.000 --> 00:00:04.000
<v Ana Lopez>Morning all</v>

00:00:04.500 --> 00:00:07.250
<v.loud Ben>Hi Ana</v>
`

	result, err := ParseVTT(strings.NewReader(vttContent))
	require.NoError(t, err)
	require.Len(t, result.Segments, 2)

	assert.Equal(t, "Ana Lopez", result.Segments[0].Speaker)
	assert.Equal(t, "Morning all", result.Segments[0].Text)
	assert.Equal(t, "Ben", result.Segments[1].Speaker)
	assert.Equal(t, "Hi Ana", result.Segments[1].Text)
	assert.Equal(t, 4500*time.Millisecond, result.Segments[1].Start)
	assert.Equal(t, 7250*time.Millisecond, result.Duration)
}

func TestParseVTT_CueIdentifiersNotesAndInlineSpeakers(t *testing.T) {
	vttContent := "\ufeff" + `WEBVTT

NOTE exported by tool
spans two lines

intro
00:00:01.000 --> 00:00:02.000
Ana: Welcome back

2
00:02.000 --> 00:03.500
Ben: <b>Thanks</b>
continued line
`

	result, err := ParseVTT(strings.NewReader(vttContent))
	require.NoError(t, err)
	require.Len(t, result.Segments, 2)

	assert.Equal(t, Segment{Speaker: "Ana", Text: "Welcome back", Start: time.Second, End: 2 * time.Second}, result.Segments[0])
	assert.Equal(t, "Ben", result.Segments[1].Speaker)
	assert.Equal(t, "Thanks continued line", result.Segments[1].Text)
	assert.Equal(t, 2*time.Second, result.Segments[1].Start)
	assert.Equal(t, []string{"Ana", "Ben"}, result.Speakers)
}

func TestParseVTT_Empty(t *testing.T) {
	result, err := ParseVTT(strings.NewReader("WEBVTT\n"))
	require.NoError(t, err)
	assert.Empty(t, result.Segments)
	assert.NotNil(t, result.Speakers)
	assert.False(t, result.Labelled())
}

func TestParseVTTTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"00:00:05.579", 5579 * time.Millisecond},
		{"01:02:03.004", time.Hour + 2*time.Minute + 3*time.Second + 4*time.Millisecond},
		{"02:03.500", 2*time.Minute + 3500*time.Millisecond},
		{"00:00:01,250", 1250 * time.Millisecond},
		{"garbage", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseVTTTimestamp(tt.in))
		})
	}
}
