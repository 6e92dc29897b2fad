// Package models manages the whisper.cpp ggml model files used by the engine.
package models

import (
	"whisper-desk/internal/domain"
)

type preset struct {
	id          string
	name        string
	sizeLabel   string
	description string
}

var presets = []preset{
	{"tiny.en", "Tiny (English)", "~75 MB", "Fastest, English-only model."},
	{"tiny", "Tiny (Multilingual)", "~75 MB", "Fastest multilingual model."},
	{"base.en", "Base (English)", "~142 MB", "Balanced speed/quality, English-only."},
	{"base", "Base (Multilingual)", "~142 MB", "Balanced speed/quality, multilingual."},
	{"small.en", "Small (English)", "~466 MB", "Higher quality, English-only."},
	{"small", "Small (Multilingual)", "~466 MB", "Higher quality multilingual model."},
	{"medium.en", "Medium (English)", "~1.5 GB", "High quality, English-only."},
	{"medium", "Medium (Multilingual)", "~1.5 GB", "High quality multilingual model."},
	{"large-v2", "Large v2", "~2.9 GB", "Very high quality multilingual model."},
	{"large-v3", "Large v3", "~2.9 GB", "Latest large multilingual model."},
	{"large-v3-turbo", "Large v3 Turbo", "~1.6 GB", "Faster large-v3 variant."},
}

// catalog expands the presets against a download base URL.
func catalog(baseURL string) []domain.WhisperModelOption {
	out := make([]domain.WhisperModelOption, 0, len(presets))
	for _, p := range presets {
		file := domain.ModelFileName(p.id)
		out = append(out, domain.WhisperModelOption{
			ID:          p.id,
			Name:        p.name,
			FileName:    file,
			URL:         baseURL + "/" + file,
			SizeLabel:   p.sizeLabel,
			Description: p.description,
		})
	}
	return out
}

func lookup(baseURL, id string) (domain.WhisperModelOption, bool) {
	for _, m := range catalog(baseURL) {
		if m.ID == id {
			return m, true
		}
	}
	return domain.WhisperModelOption{}, false
}
