// Package ocrspace is a client for the OCR.space text-recognition API.
package ocrspace

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultEndpoint = "https://api.ocr.space/parse/image"
	defaultLanguage = "eng"

	// defaultEngine selects OCR.space engine 2, which handles the dense
	// alphanumeric codes found on rating plates better than engine 1.
	defaultEngine = "2"
)

// Client calls the OCR.space parse endpoint. A token-bucket limiter spaces
// requests out so bursts don't trip the provider's per-key quota.
type Client struct {
	apiKey   string
	language string
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

// NewClient creates an OCR.space client. If language is empty, English is
// used. The timeout bounds each parse call end to end.
func NewClient(apiKey, language string, timeout time.Duration) *Client {
	if language == "" {
		language = defaultLanguage
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		apiKey:   apiKey,
		language: language,
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// WithEndpoint points the client at a different parse endpoint. PRO keys
// use regional hosts instead of the free-tier default.
func (c *Client) WithEndpoint(endpoint string) *Client {
	if endpoint != "" {
		c.endpoint = endpoint
	}
	return c
}

// ParseResult is the recognized text for one image.
type ParseResult struct {
	Text     string
	ExitCode int
}

type parseResponse struct {
	ParsedResults         []parsedResult `json:"ParsedResults"`
	OCRExitCode           int            `json:"OCRExitCode"`
	IsErroredOnProcessing bool           `json:"IsErroredOnProcessing"`
	ErrorMessage          errorMessages  `json:"ErrorMessage"`
}

type parsedResult struct {
	ParsedText string `json:"ParsedText"`
}

// errorMessages tolerates the API returning ErrorMessage as either a single
// string or an array of strings.
type errorMessages []string

func (m *errorMessages) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single != "" {
			*m = errorMessages{single}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*m = errorMessages(many)
	return nil
}

// ParseImageURL sends an image URL to OCR.space and returns the recognized
// text. A processing error reported by the service is fatal; OCR failures
// are not rate-limit shaped, so there is no retry here.
func (c *Client) ParseImageURL(ctx context.Context, imageURL string) (*ParseResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "ocrspace: wait for rate limiter")
	}

	form := url.Values{
		"url":               {imageURL},
		"language":          {c.language},
		"isOverlayRequired": {"false"},
		"detectOrientation": {"true"},
		"scale":             {"true"},
		"OCREngine":         {defaultEngine},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "ocrspace: create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "ocrspace: API call")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "ocrspace: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("ocrspace: API returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed parseResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "ocrspace: unmarshal response")
	}

	if parsed.IsErroredOnProcessing {
		return nil, eris.Errorf("ocrspace: processing error: %s", strings.Join(parsed.ErrorMessage, "; "))
	}

	var text string
	if len(parsed.ParsedResults) > 0 {
		text = parsed.ParsedResults[0].ParsedText
	}

	return &ParseResult{
		Text:     text,
		ExitCode: parsed.OCRExitCode,
	}, nil
}
