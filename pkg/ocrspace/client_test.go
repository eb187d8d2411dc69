package ocrspace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestClient(endpoint string) *Client {
	return &Client{
		apiKey:   "test-key",
		language: "eng",
		endpoint: endpoint,
		client:   &http.Client{},
		limiter:  rate.NewLimiter(rate.Inf, 1),
	}
}

func TestParseImageURL_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("apikey"))
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "https://example.com/plate.jpg", r.PostForm.Get("url"))
		assert.Equal(t, "eng", r.PostForm.Get("language"))
		assert.Equal(t, "2", r.PostForm.Get("OCREngine"))
		assert.Equal(t, "true", r.PostForm.Get("detectOrientation"))

		resp := map[string]any{
			"ParsedResults":         []map[string]string{{"ParsedText": "WHIRLPOOL\nWTW5000DW\nSN C123456789"}},
			"OCRExitCode":           1,
			"IsErroredOnProcessing": false,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	result, err := c.ParseImageURL(context.Background(), "https://example.com/plate.jpg")
	require.NoError(t, err)
	assert.Equal(t, "WHIRLPOOL\nWTW5000DW\nSN C123456789", result.Text)
	assert.Equal(t, 1, result.ExitCode)
}

func TestParseImageURL_ProcessingError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"IsErroredOnProcessing":true,"ErrorMessage":["file too large","try again"]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.ParseImageURL(context.Background(), "https://example.com/plate.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "processing error")
	assert.Contains(t, err.Error(), "file too large")
}

func TestParseImageURL_ErrorMessageAsString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"IsErroredOnProcessing":true,"ErrorMessage":"invalid url"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.ParseImageURL(context.Background(), "not-a-url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid url")
}

func TestParseImageURL_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"bad key"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.ParseImageURL(context.Background(), "https://example.com/plate.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API returned 403")
}

func TestParseImageURL_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{not json`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.ParseImageURL(context.Background(), "https://example.com/plate.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal response")
}

func TestParseImageURL_EmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"ParsedResults":[],"OCRExitCode":1,"IsErroredOnProcessing":false}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	result, err := c.ParseImageURL(context.Background(), "https://example.com/plate.jpg")
	require.NoError(t, err)
	assert.Empty(t, result.Text)
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("key", "", 0)
	assert.Equal(t, defaultLanguage, c.language)
	assert.Equal(t, defaultEndpoint, c.endpoint)
	assert.Equal(t, 60*time.Second, c.client.Timeout)
}
