package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierlabs/nameplate-cli/internal/model"
	"github.com/atelierlabs/nameplate-cli/pkg/ocrspace"
)

func TestExtractFromOCRText_FullPlate(t *testing.T) {
	text := "Whirlpool\nTurboWash\nMOD WTW5000D\nSER CB12345678"

	got := extractFromOCRText(text)

	assert.Equal(t, "Whirlpool", got.Brand)
	assert.Equal(t, 0.8, got.ConfidenceScores[model.FieldBrand])
	assert.Equal(t, "TurboWash", got.ProductFamily)
	assert.Equal(t, 0.6, got.ConfidenceScores[model.FieldProductFamily])
	assert.Equal(t, "WTW5000D", got.ModelNumber)
	assert.Equal(t, 0.7, got.ConfidenceScores[model.FieldModelNumber])
	assert.Equal(t, "CB12345678", got.SerialNumber,
		"longest alphanumeric run wins over the model code")
	assert.Equal(t, 0.7, got.ConfidenceScores[model.FieldSerialNumber])
}

func TestExtractFromOCRText_BrandCapitalization(t *testing.T) {
	got := extractFromOCRText("made by SAMSUNG")
	assert.Equal(t, "Samsung", got.Brand)

	got = extractFromOCRText("lg electronics inc")
	assert.Equal(t, "Lg", got.Brand,
		"capitalization is naive here; the canonicalizer uppercases later")
}

func TestExtractFromOCRText_FamilyLineLengthGuard(t *testing.T) {
	long := "this line mentions wash but rambles on far past the fifty character cutoff"
	got := extractFromOCRText(long + "\nSteamFresh")

	assert.Equal(t, "SteamFresh", got.ProductFamily)
}

func TestExtractFromOCRText_Empty(t *testing.T) {
	got := extractFromOCRText("")
	assert.Empty(t, got.Brand)
	assert.Empty(t, got.ConfidenceScores)
}

func newOCRTestServer(t *testing.T, parsedText string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, err := w.Write([]byte(`{"ParsedResults":[{"ParsedText":` + strconv.Quote(parsedText) + `}],"OCRExitCode":1,"IsErroredOnProcessing":false}`))
		require.NoError(t, err)
	}))
}

func TestOCRExtractor_Extract(t *testing.T) {
	imgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "2048")
	}))
	defer imgSrv.Close()

	ocrSrv := newOCRTestServer(t, "WHIRLPOOL\nWTW5000D\nCB12345678")
	defer ocrSrv.Close()

	e := NewOCRExtractor(ocrspace.NewClient("key", "", time.Second).WithEndpoint(ocrSrv.URL))

	got, err := e.Extract(context.Background(), imgSrv.URL+"/plate.jpg")
	require.NoError(t, err)

	assert.Equal(t, model.MethodOCR, got.Method)
	assert.Equal(t, "Whirlpool", got.Brand)
	assert.Equal(t, "WTW5000D", got.ModelNumber)
	require.NotNil(t, got.Raw)
	assert.True(t, strings.HasPrefix(got.Raw.OCRText, "WHIRLPOOL"))
}

func TestOCRExtractor_RejectsOversizeImage(t *testing.T) {
	imgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(2*1024*1024))
	}))
	defer imgSrv.Close()

	e := NewOCRExtractor(ocrspace.NewClient("key", "", time.Second))

	_, err := e.Extract(context.Background(), imgSrv.URL+"/huge.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OCR limit")
}

func TestOCRExtractor_MaxImageBytesOverride(t *testing.T) {
	imgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "2048")
	}))
	defer imgSrv.Close()

	// 2048 bytes passes the default cap but not a tightened one.
	e := NewOCRExtractor(ocrspace.NewClient("key", "", time.Second)).WithMaxImageBytes(512)

	_, err := e.Extract(context.Background(), imgSrv.URL+"/plate.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OCR limit")

	e.WithMaxImageBytes(0)
	assert.Equal(t, int64(512), e.maxImageBytes, "non-positive values keep the current cap")
}

func TestOCRExtractor_SizeProbeFailureIsNonFatal(t *testing.T) {
	ocrSrv := newOCRTestServer(t, "SAMSUNG")
	defer ocrSrv.Close()

	e := NewOCRExtractor(ocrspace.NewClient("key", "", time.Second).WithEndpoint(ocrSrv.URL))
	e.httpClient = &http.Client{Timeout: 100 * time.Millisecond}

	// The image host does not exist; the probe fails but extraction proceeds.
	got, err := e.Extract(context.Background(), "http://127.0.0.1:1/plate.jpg")
	require.NoError(t, err)
	assert.Equal(t, "Samsung", got.Brand)
}
