package translate

import (
	"context"
	"strconv"
	"strings"

	"github.com/krau/cropdoctor/service"
)

// Localized is a diagnosis with its user-facing fields translated.
type Localized struct {
	service.Diagnosis
	Language     string          `json:"language"`
	DiseaseLocal string          `json:"disease_local,omitempty"`
	StageLocal   string          `json:"stage_local,omitempty"`
	CropLocal    string          `json:"crop_local,omitempty"`
	AdviceLocal  *service.Advice `json:"advice_local,omitempty"`
}

// DisplayName turns a class label such as "Tomato___Late_blight" into
// "Tomato - Late blight".
func DisplayName(label string) string {
	return strings.ReplaceAll(strings.ReplaceAll(label, "___", " - "), "_", " ")
}

// LocalizeDiagnosis adds translated disease, stage, crop and advice fields.
// English results are returned without local fields.
func (s *Service) LocalizeDiagnosis(ctx context.Context, d service.Diagnosis, lang string) Localized {
	out := Localized{Diagnosis: d, Language: lang}
	if lang == English || lang == "" {
		return out
	}
	if d.Disease != "" {
		out.DiseaseLocal = s.Translate(ctx, DisplayName(d.Disease), lang)
	}
	if d.Stage != "" {
		out.StageLocal = s.Translate(ctx, d.Stage, lang)
	}
	if d.Crop != "" {
		if name, ok := cropName(d.Crop, lang); ok {
			out.CropLocal = name
		} else {
			out.CropLocal = s.Translate(ctx, d.Crop, lang)
		}
	}
	if d.Advice != nil {
		out.AdviceLocal = s.localizeAdvice(ctx, d.Advice, lang)
	}
	return out
}

func (s *Service) localizeAdvice(ctx context.Context, a *service.Advice, lang string) *service.Advice {
	texts := map[string]string{"approach": a.Approach}
	put := func(prefix string, items []string) {
		for i, v := range items {
			texts[prefix+"."+strconv.Itoa(i)] = v
		}
	}
	put("treatment", a.Treatments)
	put("organic", a.Organic)
	put("prevention", a.Prevention)

	tr := s.TranslateBatch(ctx, texts, lang)
	get := func(prefix string, items []string) []string {
		if items == nil {
			return nil
		}
		out := make([]string, len(items))
		for i := range items {
			out[i] = tr[prefix+"."+strconv.Itoa(i)]
		}
		return out
	}
	return &service.Advice{
		Approach:   tr["approach"],
		Treatments: get("treatment", a.Treatments),
		Organic:    get("organic", a.Organic),
		Prevention: get("prevention", a.Prevention),
	}
}
