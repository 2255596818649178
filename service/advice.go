package service

import (
	"slices"
	"strings"
)

type Advice struct {
	Approach   string   `json:"approach"`
	Treatments []string `json:"treatments"`
	Organic    []string `json:"organic,omitempty"`
	Prevention []string `json:"prevention"`
}

var organicOptions = []string{
	"Neem oil (5ml/L)",
	"Trichoderma",
	"Bacillus thuringiensis",
	"Bordeaux mixture (1%)",
	"Garlic-chili spray",
}

var preventionSteps = []string{
	"Crop rotation",
	"Proper spacing",
	"Drip irrigation",
	"Disease-free seeds",
	"Regular monitoring",
	"Remove infected plants",
	"Mulching",
}

// treatments maps a normalized disease name to chemical or targeted products.
var treatments = map[string][]string{
	"early blight":                         {"Mancozeb (2g/L) every 7-10 days", "Chlorothalonil (2ml/L) every 7-10 days"},
	"late blight":                          {"Metalaxyl + Mancozeb (2.5g/L) every 5-7 days", "Cymoxanil + Mancozeb"},
	"septoria leaf spot":                   {"Chlorothalonil (2ml/L) weekly", "Copper fungicide (3g/L) weekly"},
	"bacterial spot":                       {"Copper fungicides"},
	"spider mites two-spotted spider mite": {"Neem oil (5ml/L)"},
	"brown spot":                           {"Mancozeb", "Propiconazole"},
	"bacterial leaf blight":                {"Copper oxychloride"},
	"black rot":                            {"Mancozeb (2.5g/L)"},
	"esca":                                 {"Lime sulfur"},
	"leaf blight":                          {"Copper oxychloride (3g/L)"},
	"blight":                               {"Mancozeb (2.5g/L)"},
	"common rust":                          {"Chlorothalonil (2ml/L)"},
}

func normalizeDisease(name string) string {
	return strings.ToLower(strings.TrimSpace(strings.ReplaceAll(name, "_", " ")))
}

// Advise turns a disease and stage into treatment guidance. Early stages lean
// on organic options, severe ones on immediate chemical control.
func Advise(disease, stage string) *Advice {
	if strings.EqualFold(disease, Healthy) {
		return &Advice{
			Approach:   "No treatment needed",
			Treatments: []string{},
			Prevention: slices.Clone(preventionSteps),
		}
	}

	products, known := treatments[normalizeDisease(disease)]
	if !known {
		products = []string{"Consult a local agricultural extension officer for a product recommendation"}
	}

	a := &Advice{Prevention: slices.Clone(preventionSteps)}
	switch stage {
	case StageEarly:
		a.Approach = "Organic treatment"
		a.Organic = slices.Clone(organicOptions)
		a.Treatments = []string{}
	case StageMedium:
		a.Approach = "Organic and chemical treatment"
		a.Organic = slices.Clone(organicOptions)
		a.Treatments = slices.Clone(products)
	default:
		a.Approach = "Immediate chemical intervention"
		a.Treatments = slices.Clone(products)
	}
	return a
}
