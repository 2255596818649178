package translate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
)

// HTTPTranslator talks to a LibreTranslate-compatible endpoint.
type HTTPTranslator struct {
	client  *resty.Client
	apiKey  string
	retries uint64
}

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error,omitempty"`
}

func NewHTTPTranslator(endpoint, apiKey string, timeout time.Duration, retries uint64) *HTTPTranslator {
	client := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &HTTPTranslator{client: client, apiKey: apiKey, retries: retries}
}

func (t *HTTPTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	var result string
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), t.retries), ctx)
	err := backoff.Retry(func() error {
		var err error
		result, err = t.translateNoRetry(ctx, text, source, target)
		return err
	}, b)
	return result, err
}

func (t *HTTPTranslator) translateNoRetry(ctx context.Context, text, source, target string) (string, error) {
	var res translateResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(translateRequest{Q: text, Source: source, Target: target, Format: "text", APIKey: t.apiKey}).
		SetResult(&res).
		SetError(&res).
		Post("/translate")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		err := fmt.Errorf("translate endpoint returned %d: %s", resp.StatusCode(), res.Error)
		// Client errors will not get better on retry.
		if resp.StatusCode() < http.StatusInternalServerError && resp.StatusCode() != http.StatusTooManyRequests {
			return "", backoff.Permanent(err)
		}
		return "", err
	}
	if res.TranslatedText == "" {
		return "", backoff.Permanent(errors.New("empty translation"))
	}
	return res.TranslatedText, nil
}
