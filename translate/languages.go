package translate

import (
	"strings"

	"golang.org/x/text/language"
)

const (
	English = "en"
	Tulu    = "tcy"
)

var supported = map[string]string{
	"en":  "English",
	"hi":  "हिंदी (Hindi)",
	"te":  "తెలుగు (Telugu)",
	"ta":  "தமிழ் (Tamil)",
	"kn":  "ಕನ್ನಡ (Kannada)",
	"mr":  "मराठी (Marathi)",
	"ml":  "മലയാളം (Malayalam)",
	"tcy": "ತುಳು (Tulu)",
}

// Languages returns the supported language codes and their display names.
func Languages() map[string]string {
	out := make(map[string]string, len(supported))
	for k, v := range supported {
		out[k] = v
	}
	return out
}

// Normalize maps a BCP 47 tag such as "hi-IN" to a supported base code.
// Empty input means English.
func Normalize(lang string) (string, bool) {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return English, true
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return "", false
	}
	base, _ := tag.Base()
	code := base.String()
	if _, ok := supported[code]; !ok {
		return "", false
	}
	return code, true
}

// cropNames covers the crops farmers ask about most, so the common case needs
// no remote call.
var cropNames = map[string]map[string]string{
	"tomato": {"hi": "टमाटर", "te": "టమాటా", "ta": "தக்காளி", "kn": "ಟೊಮೇಟೊ", "mr": "टोमॅटो"},
	"rice":   {"hi": "चावल", "te": "వరి", "ta": "அரிசி", "kn": "ಅಕ್ಕಿ", "mr": "तांदूळ"},
	"potato": {"hi": "आलू", "te": "బంగాళదుంప", "ta": "உருளைக்கிழங்கு", "kn": "ಆಲೂಗಡ್ಡೆ", "mr": "बटाटा"},
	"maize":  {"hi": "मक्का", "te": "మొక్కజొన్న", "ta": "மக்காச்சோளம்", "kn": "ಮೆಕ್ಕೆಜೋಳ", "mr": "मका"},
	"grape":  {"hi": "अंगूर", "te": "ద్రాక్ష", "ta": "திராட்சை", "kn": "ದ್ರಾಕ್ಷಿ", "mr": "द्राक्ष"},
	"wheat":  {"hi": "गेहूं", "te": "గోధుమ", "ta": "கோதுமை", "kn": "ಗೋಧಿ", "mr": "गहू"},
	"cotton": {"hi": "कपास", "te": "పత్తి", "ta": "பருத்தி", "kn": "ಹತ್ತಿ", "mr": "कापूस"},
}

func cropName(crop, lang string) (string, bool) {
	names, ok := cropNames[strings.ToLower(crop)]
	if !ok {
		return "", false
	}
	name, ok := names[lang]
	return name, ok
}
