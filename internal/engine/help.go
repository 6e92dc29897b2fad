package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"whisper-desk/internal/domain"
)

// Option types reported by ParseHelp.
const (
	OptionTypeFlag    = "flag"
	OptionTypeInteger = "integer"
	OptionTypeFloat   = "float"
	OptionTypeString  = "string"
)

var (
	defaultValuePattern = regexp.MustCompile(`\(default:\s*([^)]*)\)`)
	longNamePattern     = regexp.MustCompile(`--([A-Za-z0-9][A-Za-z0-9-]*)`)
	shortNamePattern    = regexp.MustCompile(`(?:^|[\s,])-([A-Za-z0-9]{1,4})\b`)
	columnGapPattern    = regexp.MustCompile(`\s{2,}`)
)

// ParseHelp extracts options from the engine's --help output. Common options
// missing from the text are appended; when nothing parses, DefaultOptions is
// returned.
func ParseHelp(text string) []domain.EngineOption {
	var options []domain.EngineOption
	inOptions := false

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		lower := strings.ToLower(line)

		if strings.Contains(lower, "options:") || strings.Contains(lower, "arguments:") {
			inOptions = true
			continue
		}
		if !inOptions || line == "" {
			continue
		}
		if strings.HasPrefix(lower, "usage:") || strings.HasPrefix(lower, "example") {
			break
		}
		if !strings.HasPrefix(line, "-") {
			continue
		}
		if opt, ok := parseOptionLine(line); ok {
			options = append(options, opt)
		}
	}

	if len(options) == 0 {
		return DefaultOptions()
	}
	return mergeMissing(options, DefaultOptions())
}

func parseOptionLine(line string) (domain.EngineOption, bool) {
	column, description, bracketDefault := splitOptionLine(line)

	long := longNamePattern.FindStringSubmatch(column)
	short := shortNamePattern.FindStringSubmatch(column)

	opt := domain.EngineOption{Description: description}
	switch {
	case long != nil:
		opt.Name = long[1]
		if short != nil {
			opt.ShortName = short[1]
		}
	case short != nil:
		opt.Name = short[1]
	default:
		return domain.EngineOption{}, false
	}

	opt.DefaultValue = bracketDefault
	if m := defaultValuePattern.FindStringSubmatch(description); m != nil {
		opt.DefaultValue = strings.TrimSpace(m[1])
	}
	opt.Type = optionType(column, opt.DefaultValue)
	if opt.Name == "language" {
		opt.PossibleValues = languageValues
	}
	return opt, true
}

// splitOptionLine separates the flag column from the description. whisper-cli
// prints "-t N, --threads N [4] description"; older builds use a wide gap and
// a trailing "(default: x)".
func splitOptionLine(line string) (column, description, bracketDefault string) {
	if i := strings.Index(line, "["); i > 0 {
		if j := strings.Index(line[i:], "]"); j > 0 {
			return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+j+1:]), strings.TrimSpace(line[i+1 : i+j])
		}
	}

	start := 0
	if locs := longNamePattern.FindAllStringIndex(line, -1); len(locs) > 0 {
		start = locs[len(locs)-1][1]
	}
	if loc := columnGapPattern.FindStringIndex(line[start:]); loc != nil {
		return strings.TrimSpace(line[:start+loc[0]]), strings.TrimSpace(line[start+loc[1]:]), ""
	}
	return line, "", ""
}

func optionType(column, defaultValue string) string {
	// The left column carries a metavar (N, FNAME, LANG) unless the option is a switch.
	fields := strings.FieldsFunc(column, func(r rune) bool { return r == ' ' || r == ',' })
	hasArg := false
	for _, f := range fields {
		if !strings.HasPrefix(f, "-") {
			hasArg = true
			break
		}
	}
	if !hasArg {
		return OptionTypeFlag
	}

	switch {
	case defaultValue == "true" || defaultValue == "false":
		return OptionTypeFlag
	case isInteger(defaultValue):
		return OptionTypeInteger
	case isFloat(defaultValue):
		return OptionTypeFloat
	default:
		return OptionTypeString
	}
}

func isInteger(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '-' && i == 0 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isFloat(s string) bool {
	var f float64
	_, err := fmt.Sscanf(s, "%g", &f)
	return err == nil && strings.ContainsAny(s, ".eE")
}

func mergeMissing(options, defaults []domain.EngineOption) []domain.EngineOption {
	seen := make(map[string]struct{}, len(options))
	for _, o := range options {
		seen[o.Name] = struct{}{}
	}
	for _, d := range defaults {
		if _, ok := seen[d.Name]; !ok {
			options = append(options, d)
		}
	}
	return options
}

var languageValues = []string{
	"auto", "en", "zh", "de", "es", "ru", "ko", "fr", "ja", "pt", "tr", "pl",
	"ca", "nl", "ar", "sv", "it", "id", "hi", "fi", "vi", "he", "uk", "el",
}

// DefaultOptions is the option set assumed when help output is unavailable.
func DefaultOptions() []domain.EngineOption {
	out := make([]domain.EngineOption, 0, 14)
	for _, f := range OutputFormats {
		out = append(out, domain.EngineOption{
			Name:        "output-" + f,
			ShortName:   "o" + f,
			Description: fmt.Sprintf("output result in a %s file", f),
			Type:        OptionTypeFlag,
		})
	}
	return append(out,
		domain.EngineOption{Name: "language", ShortName: "l", Description: "spoken language ('auto' for auto-detect)", Type: OptionTypeString, DefaultValue: "en", PossibleValues: languageValues},
		domain.EngineOption{Name: "threads", ShortName: "t", Description: "number of threads to use during computation", Type: OptionTypeInteger, DefaultValue: "4"},
		domain.EngineOption{Name: "translate", ShortName: "tr", Description: "translate from source language to english", Type: OptionTypeFlag},
		domain.EngineOption{Name: "offset-t", ShortName: "ot", Description: "time offset in milliseconds", Type: OptionTypeInteger, DefaultValue: "0"},
		domain.EngineOption{Name: "duration", ShortName: "d", Description: "duration of audio to process in milliseconds", Type: OptionTypeInteger, DefaultValue: "0"},
		domain.EngineOption{Name: "print-progress", ShortName: "pp", Description: "print progress", Type: OptionTypeFlag},
		domain.EngineOption{Name: "no-timestamps", ShortName: "nt", Description: "do not print timestamps", Type: OptionTypeFlag},
	)
}

// Options runs the engine with --help and parses its output. Any failure
// falls back to DefaultOptions.
func (l *Locator) Options(ctx context.Context) []domain.EngineOption {
	return l.options(ctx, execRunner{})
}

func (l *Locator) options(ctx context.Context, runner commandRunner) []domain.EngineOption {
	path, err := l.Resolve()
	if err != nil {
		return DefaultOptions()
	}
	// whisper-cli exits non-zero on --help for some builds; the text is still usable.
	res, _ := runner.Run(ctx, "", path, "--help")
	text := res.Stdout + "\n" + res.Stderr
	if strings.TrimSpace(text) == "" {
		return DefaultOptions()
	}
	return ParseHelp(text)
}
