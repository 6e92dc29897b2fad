package engine

import (
	"regexp"
	"strconv"
	"strings"

	"whisper-desk/internal/domain"
)

var (
	// [00:01:02.500 --> 00:01:05.000]  text
	segmentPattern  = regexp.MustCompile(`^\s*\[(\d+):(\d{2}):(\d{2})[.,](\d{1,3})\s*-->\s*(\d+):(\d{2}):(\d{2})[.,](\d{1,3})\]`)
	percentPattern  = regexp.MustCompile(`\[\s*(\d{1,3}(?:\.\d+)?)\s*%\s*\]`)
	callbackPattern = regexp.MustCompile(`progress\s*=\s*(\d{1,3}(?:\.\d+)?)\s*%`)
)

// maxSegmentProgress keeps segment-derived estimates below completion; only
// the timing summary reports 1.0.
const maxSegmentProgress = 0.99

// ParseProgressLine extracts a progress estimate from one engine output line.
// totalSeconds is the input duration; zero or less means unknown. It returns
// false for lines that carry no progress information.
func ParseProgressLine(line string, totalSeconds float64) (domain.ProgressInfo, bool) {
	if m := segmentPattern.FindStringSubmatch(line); m != nil {
		end := clockSeconds(m[5], m[6], m[7], m[8])
		info := domain.ProgressInfo{
			CurrentTime: &end,
			Message:     strings.TrimSpace(line),
		}
		if totalSeconds > 0 {
			info.Progress = clamp(end/totalSeconds, 0, maxSegmentProgress)
		}
		return info, true
	}

	if strings.Contains(line, "whisper_print_timings") {
		return domain.ProgressInfo{Progress: 1, Message: "Processing complete"}, true
	}

	if m := percentPattern.FindStringSubmatch(line); m != nil {
		if pct, err := strconv.ParseFloat(m[1], 64); err == nil {
			return domain.ProgressInfo{Progress: clamp(pct/100, 0, 1), Message: strings.TrimSpace(line)}, true
		}
	}
	if m := callbackPattern.FindStringSubmatch(line); m != nil {
		if pct, err := strconv.ParseFloat(m[1], 64); err == nil {
			return domain.ProgressInfo{Progress: clamp(pct/100, 0, 1), Message: strings.TrimSpace(line)}, true
		}
	}

	if isModelLoadLine(line) {
		return domain.ProgressInfo{Progress: 0, Message: "Loading model"}, true
	}
	return domain.ProgressInfo{}, false
}

func isModelLoadLine(line string) bool {
	return strings.Contains(line, "whisper_init_from_file") ||
		strings.Contains(line, "whisper_model_load: loading model") ||
		strings.HasPrefix(strings.TrimSpace(line), "whisper_model_load:") && strings.Contains(line, "loading")
}

func clockSeconds(h, m, s, frac string) float64 {
	hours, _ := strconv.Atoi(h)
	minutes, _ := strconv.Atoi(m)
	seconds, _ := strconv.Atoi(s)
	for len(frac) < 3 {
		frac += "0"
	}
	millis, _ := strconv.Atoi(frac)
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
