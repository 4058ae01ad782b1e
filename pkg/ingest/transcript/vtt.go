package transcript

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// 1 "Speaker Name" (speaker_id) or 1 "" (0)
	vttSegmentHeaderRegex = regexp.MustCompile(`^\d+\s+"([^"]*)"(?:\s+\((\d+)\))?`)

	// 00:00:05.579 --> 00:00:06.858, hours optional
	vttTimestampRegex = regexp.MustCompile(`^((?:\d{2,}:)?\d{2}:\d{2}[.,]\d{3})\s+-->\s+((?:\d{2,}:)?\d{2}:\d{2}[.,]\d{3})`)

	// <v Speaker Name>text</v>
	vttVoiceRegex = regexp.MustCompile(`^<v(?:\.[^\s>]+)*\s+([^>]+)>(.*?)(?:</v>)?$`)

	// Speaker Name: text, as written by Zoom cloud recordings
	vttInlineSpeakerRegex = regexp.MustCompile(`^([^:<>]{1,60}?):\s+(.+)$`)

	vttTagRegex = regexp.MustCompile(`</?[^>]+>`)
)

// ParseVTT parses a WebVTT transcript. NOTE, STYLE and REGION blocks are
// skipped; cue text lines are joined with a space.
func ParseVTT(r io.Reader) (*Transcript, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	result := &Transcript{Segments: make([]Segment, 0), Format: FormatVTT}
	var speakers speakerSet
	var current *Segment
	var skipping bool

	flush := func() {
		if current != nil && current.Text != "" {
			speakers.add(current.Speaker)
			result.Segments = append(result.Segments, *current)
			if current.End > result.Duration {
				result.Duration = current.End
			}
		}
		current = nil
	}

	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}

		if line == "" {
			skipping = false
			if current != nil && current.Text != "" {
				flush()
			}
			continue
		}
		if skipping {
			continue
		}
		if strings.HasPrefix(line, "WEBVTT") {
			continue
		}
		if strings.HasPrefix(line, "NOTE") || line == "STYLE" || line == "REGION" {
			skipping = true
			continue
		}

		if m := vttSegmentHeaderRegex.FindStringSubmatch(line); m != nil {
			flush()
			current = &Segment{Speaker: strings.TrimSpace(m[1]), SpeakerID: m[2]}
			continue
		}

		if m := vttTimestampRegex.FindStringSubmatch(line); m != nil {
			// A bare cue without a numbered speaker header starts a new segment.
			if current == nil || current.Text != "" || current.End != 0 {
				flush()
				current = &Segment{}
			}
			current.Start = parseVTTTimestamp(m[1])
			current.End = parseVTTTimestamp(m[2])
			continue
		}

		if current == nil {
			// Cue identifier or stray text outside a cue.
			continue
		}

		text := line
		if m := vttVoiceRegex.FindStringSubmatch(line); m != nil {
			if current.Speaker == "" {
				current.Speaker = strings.TrimSpace(m[1])
			}
			text = m[2]
		} else if current.Speaker == "" && current.Text == "" {
			if m := vttInlineSpeakerRegex.FindStringSubmatch(line); m != nil {
				current.Speaker = strings.TrimSpace(m[1])
				text = m[2]
			}
		}
		text = strings.TrimSpace(vttTagRegex.ReplaceAllString(text, ""))
		if text == "" {
			continue
		}
		if current.Text != "" {
			current.Text += " "
		}
		current.Text += text
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	result.Speakers = speakers.list()
	return result, nil
}

// parseVTTTimestamp parses [HH:]MM:SS.mmm into a duration.
func parseVTTTimestamp(ts string) time.Duration {
	ts = strings.Replace(ts, ",", ".", 1)
	parts := strings.Split(ts, ":")
	if len(parts) == 2 {
		parts = append([]string{"0"}, parts...)
	}
	if len(parts) != 3 {
		return 0
	}

	hours, _ := strconv.Atoi(parts[0])
	minutes, _ := strconv.Atoi(parts[1])

	secParts := strings.SplitN(parts[2], ".", 2)
	seconds, _ := strconv.Atoi(secParts[0])
	millis := 0
	if len(secParts) > 1 {
		millis, _ = strconv.Atoi(secParts[1])
	}

	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(millis)*time.Millisecond
}
