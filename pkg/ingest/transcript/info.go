package transcript

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var (
	// Recording export: Meeting Title-YYYYMMDD HHMM-1
	recordingNamePattern = regexp.MustCompile(`^(.+)-(\d{8})\s+(\d{4})-\d+$`)

	// Transcript_Owner_s meeting_YYYYMMDD
	transcriptNamePattern = regexp.MustCompile(`^Transcript_(.+)_(\d{8})$`)

	// Meeting Name - MMDDYYYY or Meeting Name YYYYMMDD
	datedNamePattern = regexp.MustCompile(`^(.+?)[\s_-]+(\d{8})$`)

	whitespace = regexp.MustCompile(`\s+`)
)

// Info is the meeting metadata recoverable from a transcript file name.
type Info struct {
	Title string
	// Start is the meeting date, with the wall-clock time when HasClock.
	Start    time.Time
	HasClock bool
}

// InfoFromFilename extracts a title and start date from a transcript path.
// Unrecognised names yield the base name as the title and a zero Start.
func InfoFromFilename(path string) Info {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	if m := recordingNamePattern.FindStringSubmatch(name); m != nil {
		info := Info{Title: NormalizeTitle(m[1])}
		if t, err := time.Parse("20060102 1504", m[2]+" "+m[3]); err == nil {
			info.Start = t
			info.HasClock = true
		}
		return info
	}

	if m := transcriptNamePattern.FindStringSubmatch(name); m != nil {
		return Info{Title: NormalizeTitle(strings.ReplaceAll(m[1], "_", "'")), Start: parseDate(m[2])}
	}

	if m := datedNamePattern.FindStringSubmatch(name); m != nil {
		info := Info{Title: NormalizeTitle(m[1])}
		if date := parseDate(m[2]); !date.IsZero() {
			info.Start = date
		} else {
			info.Start = parseDateMMDDYYYY(m[2])
		}
		return info
	}

	return Info{Title: NormalizeTitle(name)}
}

// parseDate parses YYYYMMDD format.
func parseDate(s string) time.Time {
	if len(s) != 8 {
		return time.Time{}
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// parseDateMMDDYYYY parses MMDDYYYY format.
func parseDateMMDDYYYY(s string) time.Time {
	if len(s) != 8 {
		return time.Time{}
	}
	return parseDate(s[4:8] + s[0:2] + s[2:4])
}

// NormalizeTitle replaces separators with spaces and collapses whitespace.
func NormalizeTitle(title string) string {
	title = strings.NewReplacer("_", " ", "+", " ").Replace(title)
	return strings.TrimSpace(whitespace.ReplaceAllString(title, " "))
}
