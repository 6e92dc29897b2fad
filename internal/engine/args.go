package engine

import (
	"sort"
	"strings"
)

// OutputFormats are the engine's --output-<format> switches.
var OutputFormats = []string{"txt", "srt", "vtt", "csv", "json", "lrc", "wts"}

// BuildArgs assembles the engine command line: model, input and output base
// first, then each option in key order as "--key" or "--key value". Keys that
// already start with "-" are passed through unchanged. When no output-format
// option is present, "--output-<defaultFormat>" is appended so that at least
// one result file is produced.
func BuildArgs(modelPath, inputPath, outputBase string, options map[string]string, defaultFormat string) []string {
	args := []string{"-m", modelPath, "-f", inputPath}
	if outputBase != "" {
		args = append(args, "-of", outputBase)
	}

	keys := make([]string, 0, len(options))
	for k := range options {
		if strings.TrimSpace(k) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	hasFormat := false
	for _, key := range keys {
		flag := strings.TrimSpace(key)
		if !strings.HasPrefix(flag, "-") {
			flag = "--" + flag
		}
		value := strings.TrimSpace(options[key])
		// Boolean switches: "true" means present, "false" means absent.
		if strings.EqualFold(value, "false") {
			continue
		}
		if IsOutputFormatFlag(flag) {
			hasFormat = true
		}

		args = append(args, flag)
		if value != "" && !strings.EqualFold(value, "true") {
			args = append(args, value)
		}
	}

	if !hasFormat && defaultFormat != "" {
		args = append(args, "--output-"+strings.TrimPrefix(defaultFormat, "output-"))
	}
	return args
}

// IsOutputFormatFlag reports whether flag selects an output format, in
// either long (--output-srt) or short (-osrt) form.
func IsOutputFormatFlag(flag string) bool {
	name := strings.TrimLeft(flag, "-")
	for _, f := range OutputFormats {
		if name == "output-"+f || name == "o"+f {
			return true
		}
	}
	return false
}
