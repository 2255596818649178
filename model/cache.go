package model

import (
	"errors"
	"log/slog"
	"sync"
)

type entry struct {
	once sync.Once
	net  Network
	err  error
}

// Cache keeps one loaded network per model path for the life of the process.
// Loads happen lazily on first use; a failed load is forgotten so the next
// request tries again.
type Cache struct {
	mu      sync.Mutex
	load    LoaderFunc
	entries map[string]*entry
}

func NewCache(load LoaderFunc) *Cache {
	return &Cache{
		load:    load,
		entries: make(map[string]*entry),
	}
}

func (c *Cache) Get(path string) (Network, error) {
	c.mu.Lock()
	e, ok := c.entries[path]
	if !ok {
		e = &entry{}
		c.entries[path] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.net, e.err = c.load(path)
		if e.err == nil {
			slog.Info("Loaded model", slog.String("path", path))
		}
	})
	if e.err != nil {
		c.mu.Lock()
		if c.entries[path] == e {
			delete(c.entries, path)
		}
		c.mu.Unlock()
		return nil, e.err
	}
	return e.net, nil
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for path, e := range c.entries {
		if e.net != nil {
			if err := e.net.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		delete(c.entries, path)
	}
	return errors.Join(errs...)
}
