package translate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/krau/cropdoctor/service"
)

type fakeTranslator struct {
	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
	fail     map[string]bool
}

func (f *fakeTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail[text] {
		return "", errors.New("backend down")
	}
	return "[" + target + "] " + text, nil
}

func TestTranslateCaches(t *testing.T) {
	f := &fakeTranslator{}
	s := New(f, 2)
	ctx := context.Background()

	for range 3 {
		if got := s.Translate(ctx, "Early", "hi"); got != "[hi] Early" {
			t.Fatalf("Translate = %q", got)
		}
	}
	if f.calls.Load() != 1 {
		t.Errorf("backend called %d times, want 1", f.calls.Load())
	}
	if _, ok := s.cache.Get("Early", "en", "hi"); !ok {
		t.Error("translation not cached under text_source_target")
	}
}

func TestTranslateShortCircuits(t *testing.T) {
	f := &fakeTranslator{}
	s := New(f, 2)
	ctx := context.Background()

	if got := s.Translate(ctx, "Severe", English); got != "Severe" {
		t.Errorf("English target changed text: %q", got)
	}
	if got := s.Translate(ctx, "Severe", Tulu); got != "Severe" {
		t.Errorf("Tulu target changed text: %q", got)
	}
	if got := s.Translate(ctx, "", "hi"); got != "" {
		t.Errorf("empty text changed: %q", got)
	}
	if f.calls.Load() != 0 {
		t.Errorf("backend called %d times, want 0", f.calls.Load())
	}
	if got := New(nil, 0).Translate(ctx, "Severe", "hi"); got != "Severe" {
		t.Errorf("nil backend changed text: %q", got)
	}
}

func TestTranslateFailureKeepsText(t *testing.T) {
	f := &fakeTranslator{fail: map[string]bool{"Medium": true}}
	s := New(f, 2)
	if got := s.Translate(context.Background(), "Medium", "ta"); got != "Medium" {
		t.Errorf("Translate = %q, want original", got)
	}
	if s.cache.Len() != 0 {
		t.Error("failure was cached")
	}
}

func TestTranslateBatchBounded(t *testing.T) {
	f := &fakeTranslator{delay: 5 * time.Millisecond, fail: map[string]bool{"text 7": true}}
	s := New(f, 3)

	texts := make(map[string]string)
	for i := range 20 {
		k := "k" + string(rune('a'+i))
		texts[k] = "text " + string(rune('0'+i%10))
	}
	got := s.TranslateBatch(context.Background(), texts, "kn")
	if len(got) != len(texts) {
		t.Fatalf("got %d items, want %d", len(got), len(texts))
	}
	for k, v := range texts {
		want := "[kn] " + v
		if v == "text 7" {
			want = v
		}
		if got[k] != want {
			t.Errorf("%s = %q, want %q", k, got[k], want)
		}
	}
	if p := f.peak.Load(); p > 3 {
		t.Errorf("peak concurrency %d exceeds 3 workers", p)
	}
}

func TestTranslateBatchEnglish(t *testing.T) {
	f := &fakeTranslator{}
	s := New(f, 0)
	in := map[string]string{"a": "Crop"}
	out := s.TranslateBatch(context.Background(), in, English)
	if out["a"] != "Crop" || f.calls.Load() != 0 {
		t.Errorf("English batch = %v, calls %d", out, f.calls.Load())
	}
	out["a"] = "changed"
	if in["a"] != "Crop" {
		t.Error("batch result aliases input")
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]struct {
		want string
		ok   bool
	}{
		"":      {English, true},
		"hi":    {"hi", true},
		"hi-IN": {"hi", true},
		"TE":    {"te", true},
		"ml-IN": {"ml", true},
		"fr":    {"", false},
		"!!":    {"", false},
	}
	for in, c := range cases {
		got, ok := Normalize(in)
		if got != c.want || ok != c.ok {
			t.Errorf("Normalize(%q) = %q %v, want %q %v", in, got, ok, c.want, c.ok)
		}
	}
	if len(Languages()) != 8 {
		t.Errorf("Languages() has %d entries, want 8", len(Languages()))
	}
}

func TestLocalizeDiagnosis(t *testing.T) {
	f := &fakeTranslator{}
	s := New(f, 4)
	ctx := context.Background()
	d := service.Diagnosis{
		Crop:    "Tomato",
		Disease: "Tomato___Late_blight",
		Stage:   service.StageMedium,
		Advice:  service.Advise("Tomato___Late_blight", service.StageMedium),
	}

	l := s.LocalizeDiagnosis(ctx, d, "hi")
	if l.DiseaseLocal != "[hi] Tomato - Late blight" {
		t.Errorf("DiseaseLocal = %q", l.DiseaseLocal)
	}
	if l.StageLocal != "[hi] Medium" {
		t.Errorf("StageLocal = %q", l.StageLocal)
	}
	if l.CropLocal != "टमाटर" {
		t.Errorf("CropLocal = %q, want static name", l.CropLocal)
	}
	if l.AdviceLocal == nil || len(l.AdviceLocal.Prevention) != len(d.Advice.Prevention) {
		t.Fatalf("AdviceLocal = %+v", l.AdviceLocal)
	}
	if !strings.HasPrefix(l.AdviceLocal.Approach, "[hi] ") {
		t.Errorf("approach not translated: %q", l.AdviceLocal.Approach)
	}

	ml := s.LocalizeDiagnosis(ctx, d, "ml")
	if ml.CropLocal != "[ml] Tomato" {
		t.Errorf("CropLocal for ml = %q, want remote translation", ml.CropLocal)
	}

	en := s.LocalizeDiagnosis(ctx, d, English)
	if en.DiseaseLocal != "" || en.CropLocal != "" || en.AdviceLocal != nil {
		t.Errorf("English result has local fields: %+v", en)
	}

	data, err := json.Marshal(l)
	if err != nil {
		t.Fatal(err)
	}
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"crop", "disease", "stage", "crop_local", "disease_local", "language"} {
		if _, ok := flat[k]; !ok {
			t.Errorf("JSON missing %q: %s", k, data)
		}
	}
}

func writeUI(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "translations.json")
	ui := map[string]map[string]string{
		"en": {"title": "Crop Doctor", "upload": "Upload photo", "history": "History"},
		"hi": {"title": "फसल डॉक्टर"},
	}
	data, _ := json.Marshal(ui)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestUIText(t *testing.T) {
	s := New(nil, 1)
	if err := s.LoadUI(writeUI(t)); err != nil {
		t.Fatal(err)
	}
	if got := s.UIText("title", "hi"); got != "फसल डॉक्टर" {
		t.Errorf("hi title = %q", got)
	}
	if got := s.UIText("upload", "hi"); got != "Upload photo" {
		t.Errorf("fallback = %q, want English", got)
	}
	if got := s.UIText("nope", "hi"); got != "nope" {
		t.Errorf("missing key = %q, want key", got)
	}
	if err := s.LoadUI(filepath.Join(t.TempDir(), "missing.json")); err != nil {
		t.Errorf("missing file: %v", err)
	}
}

func TestAllUI(t *testing.T) {
	f := &fakeTranslator{}
	s := New(f, 2)
	if err := s.LoadUI(writeUI(t)); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	hi := s.AllUI(ctx, "hi")
	if hi["title"] != "फसल डॉक्टर" || hi["upload"] != "[hi] Upload photo" || len(hi) != 3 {
		t.Errorf("AllUI(hi) = %v", hi)
	}
	if f.calls.Load() != 2 {
		t.Errorf("backend called %d times, want 2", f.calls.Load())
	}

	tcy := s.AllUI(ctx, Tulu)
	if tcy["upload"] != "Upload photo" {
		t.Errorf("AllUI(tcy) = %v", tcy)
	}
	if f.calls.Load() != 2 {
		t.Error("Tulu triggered a remote call")
	}
}

func TestHTTPTranslator(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		if r.URL.Path != "/translate" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req translateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case req.Target == "xx":
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(translateResponse{Error: "unsupported target"})
		case n == 1:
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(translateResponse{Error: "busy"})
		default:
			json.NewEncoder(w).Encode(translateResponse{TranslatedText: req.Target + ":" + req.Q})
		}
	}))
	defer srv.Close()

	tr := NewHTTPTranslator(srv.URL, "key", 2*time.Second, 3)
	got, err := tr.Translate(context.Background(), "Healthy", "en", "te")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "te:Healthy" {
		t.Errorf("Translate = %q", got)
	}
	if hits.Load() != 2 {
		t.Errorf("server hit %d times, want 2 (one retry)", hits.Load())
	}

	hits.Store(10)
	if _, err := tr.Translate(context.Background(), "Healthy", "en", "xx"); err == nil {
		t.Error("expected error for 400")
	}
	if hits.Load() != 11 {
		t.Errorf("client error retried: %d extra hits", hits.Load()-10)
	}
}
