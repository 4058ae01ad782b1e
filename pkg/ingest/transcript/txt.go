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
	// Matches transcript line: 0:11 : Speaker Name : Text content
	// or: 12:45 : Speaker Name (pronouns) : Text content
	txtTranscriptLineRegex = regexp.MustCompile(`^(\d+):(\d{2})\s*:\s*([^:]+?)\s*:\s*(.+)$`)

	// Unlabelled line with a leading timestamp: 0:11 Text content
	txtTimedLineRegex = regexp.MustCompile(`^(\d+):(\d{2})\s+(.+)$`)
)

// untimedStep spaces lines that carry no timestamp of their own.
const untimedStep = 5 * time.Second

// ParseTXT parses a plain text transcript. Labelled lines look like
// "m:ss : Speaker : text"; unlabelled "m:ss text" lines and bare text lines
// are kept without a speaker so heuristic attribution can take over. Bare
// lines are placed untimedStep after the previous line.
func ParseTXT(r io.Reader) (*Transcript, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	result := &Transcript{Segments: make([]Segment, 0), Format: FormatTXT}
	var speakers speakerSet
	var last time.Duration
	first := true

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		if line == "" {
			continue
		}

		var seg Segment
		if m := txtTranscriptLineRegex.FindStringSubmatch(line); m != nil {
			seg = Segment{
				Speaker: strings.TrimSpace(m[3]),
				Text:    strings.TrimSpace(m[4]),
				Start:   parseTXTTimestamp(m[1], m[2]),
			}
		} else if m := txtTimedLineRegex.FindStringSubmatch(line); m != nil {
			seg = Segment{
				Text:  strings.TrimSpace(m[3]),
				Start: parseTXTTimestamp(m[1], m[2]),
			}
		} else {
			at := last
			if len(result.Segments) > 0 {
				at += untimedStep
			}
			seg = Segment{Text: line, Start: at}
		}

		// TXT format doesn't have end times
		seg.End = seg.Start
		if seg.Start > last {
			last = seg.Start
		}
		speakers.add(seg.Speaker)
		result.Segments = append(result.Segments, seg)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	result.Speakers = speakers.list()
	result.Duration = last
	return result, nil
}

func parseTXTTimestamp(min, sec string) time.Duration {
	minutes, _ := strconv.Atoi(min)
	seconds, _ := strconv.Atoi(sec)
	return time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second
}
