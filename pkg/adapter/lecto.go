package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

const DefaultLectoURL = "https://api.lecto.ai/v1/translate/text"

var ErrUnexpectedTranslation = goerr.New("unexpected translation response")

// Translator translates text into the target language, detecting the source language itself
type Translator interface {
	Translate(ctx context.Context, text, to string) (string, error)
}

type LectoClient struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

type LectoOption func(*LectoClient)

func WithLectoURL(url string) LectoOption {
	return func(c *LectoClient) {
		c.url = url
	}
}

func NewLecto(apiKey string, opts ...LectoOption) *LectoClient {
	c := &LectoClient{
		url:    DefaultLectoURL,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type lectoRequest struct {
	Texts []string `json:"texts"`
	To    []string `json:"to"`
}

type lectoResponse struct {
	Translations []json.RawMessage `json:"translations"`
}

func (c *LectoClient) Translate(ctx context.Context, text, to string) (string, error) {
	body, err := json.Marshal(lectoRequest{
		Texts: []string{text},
		To:    []string{to},
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal translation request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", goerr.Wrap(err, "failed to create request")
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", goerr.Wrap(err, "failed to send translation request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", goerr.New("Lecto API returned error",
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(data)))
	}

	var result lectoResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", goerr.Wrap(err, "failed to decode translation response")
	}

	if len(result.Translations) == 0 {
		return "", goerr.Wrap(ErrUnexpectedTranslation, "no translations")
	}

	var translated string
	if err := json.Unmarshal(result.Translations[0], &translated); err != nil {
		return "", goerr.Wrap(ErrUnexpectedTranslation, "translation is not a string",
			goerr.V("translation", string(result.Translations[0])))
	}

	return translated, nil
}
