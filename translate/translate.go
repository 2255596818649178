// Package translate localizes diagnosis output. Remote translations are
// cached in memory and batches run on a bounded number of workers.
package translate

import (
	"context"
	"log/slog"
	"sync"
)

// Translator is a remote translation backend.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

type Cache struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewCache() *Cache {
	return &Cache{m: make(map[string]string)}
}

func cacheKey(text, source, target string) string {
	return text + "_" + source + "_" + target
}

func (c *Cache) Get(text, source, target string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[cacheKey(text, source, target)]
	return v, ok
}

func (c *Cache) Put(text, source, target, translated string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[cacheKey(text, source, target)] = translated
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

type Service struct {
	backend Translator
	cache   *Cache
	workers int
	ui      map[string]map[string]string
}

// New builds a Service. A nil backend disables remote translation: every call
// returns its input.
func New(backend Translator, workers int) *Service {
	if workers <= 0 {
		workers = 10
	}
	return &Service{
		backend: backend,
		cache:   NewCache(),
		workers: workers,
	}
}

// Translate translates English text. Failures return the original text.
func (s *Service) Translate(ctx context.Context, text, target string) string {
	return s.TranslateFrom(ctx, text, English, target)
}

func (s *Service) TranslateFrom(ctx context.Context, text, source, target string) string {
	if text == "" || source == target || s.backend == nil || target == Tulu {
		return text
	}
	if v, ok := s.cache.Get(text, source, target); ok {
		return v
	}
	translated, err := s.backend.Translate(ctx, text, source, target)
	if err != nil {
		slog.Warn("Translation failed",
			slog.String("target", target), slog.String("error", err.Error()))
		return text
	}
	s.cache.Put(text, source, target, translated)
	return translated
}

// TranslateBatch translates the values of texts from English, keeping keys.
// At most s.workers calls run at once.
func (s *Service) TranslateBatch(ctx context.Context, texts map[string]string, target string) map[string]string {
	out := make(map[string]string, len(texts))
	if target == English || len(texts) == 0 {
		for k, v := range texts {
			out[k] = v
		}
		return out
	}

	type item struct{ key, text string }
	jobs := make(chan item)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	workers := min(s.workers, len(texts))
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range jobs {
				v := s.Translate(ctx, it.text, target)
				mu.Lock()
				out[it.key] = v
				mu.Unlock()
			}
		}()
	}
	for k, v := range texts {
		jobs <- item{key: k, text: v}
	}
	close(jobs)
	wg.Wait()
	slog.Debug("Batch translation complete", slog.String("target", target), slog.Int("items", len(out)))
	return out
}
