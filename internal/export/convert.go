// Package export turns plain-text transcripts into subtitle and editing
// formats.
package export

import (
	"encoding/xml"
	"fmt"
	"strings"

	"whisper-desk/internal/domain"
)

// slotSeconds is the timeline slot given to each transcript line.
const slotSeconds = 5

// Formats lists the conversions Convert supports.
var Formats = []string{"srt", "vtt", "fcpxml"}

type cue struct {
	number int
	line   int
	start  int
	end    int
	text   string
}

// cues assigns each non-empty line the slot of its raw line index so that
// blank lines leave gaps in the timeline.
func cues(text string) []cue {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]cue, 0, len(lines))
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		start := i * slotSeconds
		out = append(out, cue{
			number: len(out) + 1,
			line:   i + 1,
			start:  start,
			end:    start + slotSeconds - 1,
			text:   trimmed,
		})
	}
	return out
}

func clock(seconds int, sep string) string {
	return fmt.Sprintf("%02d:%02d:%02d%s000", seconds/3600, (seconds%3600)/60, seconds%60, sep)
}

// ToSRT renders text as SubRip cues.
func ToSRT(text string) string {
	var b strings.Builder
	for _, c := range cues(text) {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", c.number, clock(c.start, ","), clock(c.end, ","), c.text)
	}
	return b.String()
}

// ToVTT renders text as a WebVTT document.
func ToVTT(text string) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, c := range cues(text) {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", c.number, clock(c.start, "."), clock(c.end, "."), c.text)
	}
	return b.String()
}

type fcpxmlDoc struct {
	XMLName   xml.Name        `xml:"fcpxml"`
	Version   string          `xml:"version,attr"`
	Resources fcpxmlResources `xml:"resources"`
	Library   fcpxmlLibrary   `xml:"library"`
}

type fcpxmlResources struct {
	Format fcpxmlFormat `xml:"format"`
}

type fcpxmlFormat struct {
	ID            string `xml:"id,attr"`
	Name          string `xml:"name,attr"`
	FrameDuration string `xml:"frameDuration,attr"`
	Width         int    `xml:"width,attr"`
	Height        int    `xml:"height,attr"`
}

type fcpxmlLibrary struct {
	Event fcpxmlEvent `xml:"event"`
}

type fcpxmlEvent struct {
	Name    string        `xml:"name,attr"`
	Project fcpxmlProject `xml:"project"`
}

type fcpxmlProject struct {
	Name     string         `xml:"name,attr"`
	Sequence fcpxmlSequence `xml:"sequence"`
}

type fcpxmlSequence struct {
	Format      string        `xml:"format,attr"`
	TCStart     string        `xml:"tcStart,attr"`
	TCFormat    string        `xml:"tcFormat,attr"`
	AudioLayout string        `xml:"audioLayout,attr"`
	AudioRate   string        `xml:"audioRate,attr"`
	Titles      []fcpxmlTitle `xml:"spine>title"`
}

type fcpxmlTitle struct {
	Ref      string     `xml:"ref,attr"`
	Name     string     `xml:"name,attr"`
	Start    string     `xml:"start,attr"`
	Duration string     `xml:"duration,attr"`
	Text     fcpxmlText `xml:"text"`
}

type fcpxmlText struct {
	Style fcpxmlTextStyle `xml:"text-style"`
}

type fcpxmlTextStyle struct {
	Ref   string `xml:"ref,attr"`
	Value string `xml:",chardata"`
}

// ToFCPXML renders text as a Final Cut Pro XML project with one title per
// line.
func ToFCPXML(text string) (string, error) {
	doc := fcpxmlDoc{
		Version: "1.10",
		Resources: fcpxmlResources{Format: fcpxmlFormat{
			ID:            "r1",
			Name:          "FFVideoFormat1920x1080p30",
			FrameDuration: "1001/30000s",
			Width:         1920,
			Height:        1080,
		}},
		Library: fcpxmlLibrary{Event: fcpxmlEvent{
			Name: "Whisper Transcription",
			Project: fcpxmlProject{
				Name: "Transcription Project",
				Sequence: fcpxmlSequence{
					Format:      "r1",
					TCStart:     "0s",
					TCFormat:    "NDF",
					AudioLayout: "stereo",
					AudioRate:   "48k",
					Titles:      []fcpxmlTitle{},
				},
			},
		}},
	}
	for _, c := range cues(text) {
		doc.Library.Event.Project.Sequence.Titles = append(doc.Library.Event.Project.Sequence.Titles, fcpxmlTitle{
			Ref:      "r1",
			Name:     fmt.Sprintf("Subtitle %d", c.line),
			Start:    fmt.Sprintf("%ds", c.start),
			Duration: fmt.Sprintf("%ds", slotSeconds-1),
			Text:     fcpxmlText{Style: fcpxmlTextStyle{Ref: "ts1", Value: c.text}},
		})
	}

	body, err := xml.MarshalIndent(doc, "", "    ")
	if err != nil {
		return "", fmt.Errorf("encode fcpxml: %w", err)
	}
	return xml.Header + "<!DOCTYPE fcpxml>\n" + string(body) + "\n", nil
}

// Convert dispatches to the serializer for format.
func Convert(text, format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "srt":
		return ToSRT(text), nil
	case "vtt":
		return ToVTT(text), nil
	case "fcpxml":
		return ToFCPXML(text)
	default:
		return "", &domain.ValidationError{Field: "format", Message: fmt.Sprintf("unsupported export format %q", format)}
	}
}
