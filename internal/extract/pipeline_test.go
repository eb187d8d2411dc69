package extract

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierlabs/nameplate-cli/internal/blob"
	"github.com/atelierlabs/nameplate-cli/internal/model"
	"github.com/atelierlabs/nameplate-cli/internal/throttle"
	"github.com/atelierlabs/nameplate-cli/pkg/ocrspace"
)

// fakeBlobStore serves a fixed signed URL; the other operations are unused
// by the pipeline.
type fakeBlobStore struct {
	url      string
	signErr  error
	lastMode blob.Mode
	lastPath string
	lastTTL  time.Duration
}

func (f *fakeBlobStore) Put(context.Context, blob.Mode, string, []byte, string) error {
	return nil
}
func (f *fakeBlobStore) Get(context.Context, blob.Mode, string) ([]byte, error) { return nil, nil }
func (f *fakeBlobStore) Delete(context.Context, blob.Mode, string) error        { return nil }
func (f *fakeBlobStore) Close() error                                           { return nil }

func (f *fakeBlobStore) SignedURL(mode blob.Mode, path string, ttl time.Duration) (string, error) {
	f.lastMode = mode
	f.lastPath = path
	f.lastTTL = ttl
	return f.url, f.signErr
}

func newTestPipeline(visionText string, visionErr error, ocrEndpoint string, imageURL string) (*Pipeline, *fakeVisionClient) {
	client := &fakeVisionClient{responses: []fakeVisionResponse{{text: visionText, err: visionErr}}}
	llm := NewLLMExtractor(client, throttle.New(throttle.DefaultConfig()))
	llm.retry.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	ocr := NewOCRExtractor(ocrspace.NewClient("key", "", time.Second).WithEndpoint(ocrEndpoint))
	ocr.maxImageBytes = 0
	return NewPipeline(&fakeBlobStore{url: imageURL}, llm, ocr), client
}

func TestPipeline_LLMMode(t *testing.T) {
	p, client := newTestPipeline(
		`{"brand":"électrolux","model_number":"EFLS-627 (CA)/EFLS-628","serial_number":"4D8 530-1234","confidence":{"brand":0.9}}`,
		nil, "http://127.0.0.1:1", "https://signed.example/plate.jpg")

	img := model.Image{ID: "img-1", StoragePath: "images/u1/plate.jpg"}
	got, err := p.ProcessImage(context.Background(), img, Options{Method: model.MethodLLM, Mode: blob.Production})
	require.NoError(t, err)

	assert.Equal(t, model.MethodLLM, got.Method)
	assert.Equal(t, "ELECTROLUX", got.Brand, "canonicalization strips accents and uppercases")
	assert.Equal(t, "EFLS627", got.ModelNumber, "parenthetical and slash variants collapse")
	assert.Equal(t, "4D85301234", got.SerialNumber)

	require.Len(t, client.requests, 1)
	assert.Equal(t, "https://signed.example/plate.jpg", client.requests[0].Messages[0].Blocks[1].ImageURL)
}

func TestPipeline_LLMModeFailureIsFatal(t *testing.T) {
	p, _ := newTestPipeline("", eris.New("invalid api key"), "http://127.0.0.1:1", "https://signed.example/plate.jpg")

	img := model.Image{StoragePath: "images/u1/plate.jpg"}
	_, err := p.ProcessImage(context.Background(), img, Options{Method: model.MethodLLM, Mode: blob.Production})
	require.Error(t, err)
}

func TestPipeline_SignedURLFailureIsFatal(t *testing.T) {
	p, _ := newTestPipeline(`{"brand":"LG"}`, nil, "http://127.0.0.1:1", "")
	p.blobs = &fakeBlobStore{signErr: eris.New("bucket missing")}

	_, err := p.ProcessImage(context.Background(), model.Image{StoragePath: "x"}, Options{Method: model.MethodLLM})
	require.Error(t, err)
}

func TestPipeline_StorageModeReachesBlobStore(t *testing.T) {
	store := &fakeBlobStore{url: "https://signed.example/p.jpg"}
	p, _ := newTestPipeline(`{"brand":"LG"}`, nil, "http://127.0.0.1:1", "")
	p.blobs = store

	img := model.Image{StoragePath: "images/eval/p.jpg"}
	_, err := p.ProcessImage(context.Background(), img, Options{Method: model.MethodLLM, Mode: blob.Ephemeral})
	require.NoError(t, err)
	assert.Equal(t, blob.Ephemeral, store.lastMode)
	assert.Equal(t, "images/eval/p.jpg", store.lastPath)
}

func TestPipeline_SignedURLTTLOverride(t *testing.T) {
	store := &fakeBlobStore{url: "https://signed.example/p.jpg"}
	p, _ := newTestPipeline(`{"brand":"LG"}`, nil, "http://127.0.0.1:1", "")
	p.blobs = store
	p.WithSignedURLTTL(15 * time.Minute)

	_, err := p.ProcessImage(context.Background(), model.Image{StoragePath: "x"}, Options{Method: model.MethodLLM})
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, store.lastTTL)

	// Non-positive values keep the current TTL.
	p.WithSignedURLTTL(0)
	_, err = p.ProcessImage(context.Background(), model.Image{StoragePath: "x"}, Options{Method: model.MethodLLM})
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, store.lastTTL)
}

func TestPipeline_HybridCombinesInTrustOrder(t *testing.T) {
	ocrSrv := newOCRTestServer(t, "WHRLPOOL\nTurboWash\nWTW5000D\nCB12345678")
	defer ocrSrv.Close()

	// Vision saw the brand clearly but nothing else; OCR fills the rest.
	p, _ := newTestPipeline(
		`{"brand":"WHIRLPOOL","confidence":{"brand":0.95}}`,
		nil, ocrSrv.URL, "https://signed.example/plate.jpg")

	img := model.Image{StoragePath: "images/u1/plate.jpg"}
	got, err := p.ProcessImage(context.Background(), img, Options{Method: model.MethodHybrid, Mode: blob.Production})
	require.NoError(t, err)

	assert.Equal(t, model.MethodHybrid, got.Method)
	assert.Equal(t, "WHIRLPOOL", got.Brand)
	assert.Equal(t, 0.95, got.ConfidenceScores[model.FieldBrand])
	assert.Equal(t, "WTW5000D", got.ModelNumber)
	assert.Equal(t, 0.9, got.ConfidenceScores[model.FieldModelNumber],
		"rule battery outranks the looser OCR heuristics")
	assert.Equal(t, "CB12345678", got.SerialNumber)
	assert.Equal(t, 0.9, got.ConfidenceScores[model.FieldSerialNumber])
	assert.Equal(t, "TURBOWASH", got.ProductFamily)

	require.NotNil(t, got.Raw)
	assert.NotNil(t, got.Raw.LLMResponse)
	assert.NotEmpty(t, got.Raw.OCRText)
	assert.NotNil(t, got.Raw.RuleMatches)
}

func TestPipeline_HybridToleratesVisionFailure(t *testing.T) {
	ocrSrv := newOCRTestServer(t, "SAMSUNG\nWTW5000D")
	defer ocrSrv.Close()

	p, _ := newTestPipeline("", eris.New("vision down"), ocrSrv.URL, "https://signed.example/plate.jpg")

	got, err := p.ProcessImage(context.Background(), model.Image{StoragePath: "x"}, Options{Method: model.MethodHybrid})
	require.NoError(t, err, "hybrid mode degrades instead of failing")
	assert.Equal(t, model.MethodHybrid, got.Method)
	assert.Equal(t, "SAMSUNG", got.Brand)
	assert.Nil(t, got.Raw.LLMResponse)
}

func TestPipeline_HybridSkipsRulesOnEmptyOCRText(t *testing.T) {
	ocrSrv := newOCRTestServer(t, "")
	defer ocrSrv.Close()

	p, _ := newTestPipeline(
		`{"brand":"LG","confidence":{"brand":0.9}}`,
		nil, ocrSrv.URL, "https://signed.example/plate.jpg")

	got, err := p.ProcessImage(context.Background(), model.Image{StoragePath: "x"}, Options{Method: model.MethodHybrid})
	require.NoError(t, err)

	assert.Equal(t, "LG", got.Brand)
	require.NotNil(t, got.Raw)
	assert.Empty(t, got.Raw.OCRText)
	assert.Nil(t, got.Raw.RuleMatches, "no rule pass without OCR text")
}

func TestPipeline_HybridAllExtractorsFail(t *testing.T) {
	// OCR endpoint unreachable, vision errors out.
	p, _ := newTestPipeline("", eris.New("vision down"), "http://127.0.0.1:1", "https://signed.example/plate.jpg")

	got, err := p.ProcessImage(context.Background(), model.Image{StoragePath: "x"}, Options{Method: model.MethodHybrid})
	require.NoError(t, err)
	assert.Equal(t, model.MethodHybrid, got.Method)
	assert.Empty(t, got.Brand)
	assert.Empty(t, got.ProductFamily)
	assert.Empty(t, got.ModelNumber)
	assert.Empty(t, got.SerialNumber)
}
