package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// LoadUI reads UI labels from a JSON file shaped {"<lang>": {"<key>": "<text>"}}.
// A missing file leaves the service without labels.
func (s *Service) LoadUI(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("Translations file not found", slog.String("path", path))
			return nil
		}
		return err
	}
	var ui map[string]map[string]string
	if err := json.Unmarshal(data, &ui); err != nil {
		return fmt.Errorf("failed to parse translations file %s: %w", path, err)
	}
	s.ui = ui
	slog.Info("Loaded UI translations", slog.String("path", path), slog.Int("languages", len(ui)))
	return nil
}

// UIText looks up a label, falling back to English and then to the key.
func (s *Service) UIText(key, lang string) string {
	if v, ok := s.ui[lang][key]; ok {
		return v
	}
	if v, ok := s.ui[English][key]; ok {
		return v
	}
	return key
}

// AllUI returns every English key in lang. Keys without a manual translation
// are translated remotely, except for Tulu which falls back to English.
func (s *Service) AllUI(ctx context.Context, lang string) map[string]string {
	out := make(map[string]string, len(s.ui[English]))
	for k, v := range s.ui[lang] {
		out[k] = v
	}
	missing := make(map[string]string)
	for k, v := range s.ui[English] {
		if _, ok := out[k]; !ok {
			missing[k] = v
		}
	}
	if len(missing) == 0 {
		return out
	}
	if lang == Tulu {
		for k, v := range missing {
			out[k] = v
		}
		return out
	}
	for k, v := range s.TranslateBatch(ctx, missing, lang) {
		out[k] = v
	}
	return out
}
