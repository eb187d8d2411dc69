package extract

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/atelierlabs/nameplate-cli/internal/model"
	"github.com/atelierlabs/nameplate-cli/internal/resilience"
	"github.com/atelierlabs/nameplate-cli/internal/throttle"
	"github.com/atelierlabs/nameplate-cli/pkg/vision"
)

const (
	// DefaultVisionModel is the vision-capable model used for extraction.
	DefaultVisionModel = "claude-sonnet-4-20250514"

	defaultMaxTokens   = 1024
	defaultTemperature = 0.1
	defaultCallTimeout = 60 * time.Second
)

const visionSystemPrompt = `You are an expert at reading appliance nameplates and rating plates. You extract structured data from photos of washer, dryer, and other household appliance labels. You respond with JSON only, no prose.`

const visionUserPrompt = `Read the appliance nameplate in this photo and extract these fields:

- brand: the manufacturer name printed on the plate, in UPPERCASE.
- product_family: the product line or family, in UPPERCASE French (e.g. "LAVEUSE" for a washer, "SECHEUSE" for a dryer, "LAVE-VAISSELLE" for a dishwasher). Translate English family names to French.
- model_number: the model or type code. Do not include a commercial name.
- serial_number: the serial number exactly as printed. Do not include label prefixes such as "S/N", "SN", "SER", "SERIAL" or "NO." in the value.

Nameplate print is often worn or glare-ridden. Watch for easily confused characters: O vs 0, I vs 1, S vs 5, G vs 6, B vs 8. Prefer the reading consistent with the manufacturer's usual code format.

Respond with exactly this JSON shape, omitting fields you cannot read:
{
  "brand": "...",
  "product_family": "...",
  "model_number": "...",
  "serial_number": "...",
  "confidence": {"brand": 0.0, "product_family": 0.0, "model_number": 0.0, "serial_number": 0.0}
}
Confidence values are between 0 and 1. Use 0 when you looked for a field and found nothing.`

// LLMExtractor extracts nameplate fields with a single vision-model call
// per image, admitted through the shared throttle and retried on rate
// limits only.
type LLMExtractor struct {
	client      vision.Client
	limiter     *throttle.Limiter
	model       string
	maxTokens   int64
	callTimeout time.Duration
	retry       resilience.RetryConfig
}

func NewLLMExtractor(client vision.Client, limiter *throttle.Limiter) *LLMExtractor {
	retry := resilience.RateLimitRetryConfig()
	retry.OnRetry = resilience.RetryLogger("vision", "nameplate extract")
	return &LLMExtractor{
		client:      client,
		limiter:     limiter,
		model:       DefaultVisionModel,
		maxTokens:   defaultMaxTokens,
		callTimeout: defaultCallTimeout,
		retry:       retry,
	}
}

// WithModel overrides the vision model identifier.
func (e *LLMExtractor) WithModel(m string) *LLMExtractor {
	if m != "" {
		e.model = m
	}
	return e
}

// Extract sends the image to the vision model and parses its typed JSON
// response. Every attempt re-admits through the throttle so retries count
// against the rate budget like first tries.
func (e *LLMExtractor) Extract(ctx context.Context, imageURL string) (model.ExtractionResult, error) {
	start := time.Now()
	temp := defaultTemperature

	resp, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*vision.MessageResponse, error) {
		if err := e.limiter.Admit(ctx); err != nil {
			return nil, err
		}
		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		defer cancel()
		return e.client.CreateMessage(callCtx, vision.MessageRequest{
			Model:       e.model,
			MaxTokens:   e.maxTokens,
			System:      visionSystemPrompt,
			Temperature: &temp,
			Messages: []vision.Message{{
				Role: "user",
				Blocks: []vision.Block{
					vision.TextBlock(visionUserPrompt),
					vision.ImageURLBlock(imageURL),
				},
			}},
		})
	})
	if err != nil {
		return model.ExtractionResult{}, eris.Wrap(err, "extract: vision call failed")
	}

	fields, err := parseVisionResponse(resp.Text())
	if err != nil {
		return model.ExtractionResult{}, err
	}

	result := resultFromVisionFields(fields)
	result.ProcessingTimeMS = time.Since(start).Milliseconds()
	return result, nil
}

// parseVisionResponse strips markdown fences and surrounding prose, then
// unmarshals the remaining JSON object. An unparseable response is fatal;
// there is no salvage pass.
func parseVisionResponse(text string) (*model.VisionFields, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return nil, eris.New("extract: vision response contains no JSON object")
	}
	var fields model.VisionFields
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return nil, eris.Wrap(err, "extract: vision response is not valid JSON")
	}
	return &fields, nil
}

// cleanJSON removes markdown code fences and isolates the first top-level
// JSON object in the text.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	startIdx := strings.Index(s, "{")
	endIdx := strings.LastIndex(s, "}")
	if startIdx == -1 || endIdx == -1 || endIdx < startIdx {
		return ""
	}
	return s[startIdx : endIdx+1]
}

// resultFromVisionFields maps the typed response onto an ExtractionResult.
// Confidence entries are recorded only for fields the model scored, clamped
// into [0,1]; a wholly absent confidence object yields an empty score map.
func resultFromVisionFields(f *model.VisionFields) model.ExtractionResult {
	result := model.ExtractionResult{
		Brand:            strings.TrimSpace(f.Brand),
		ProductFamily:    strings.TrimSpace(f.ProductFamily),
		ModelNumber:      strings.TrimSpace(f.ModelNumber),
		SerialNumber:     strings.TrimSpace(f.SerialNumber),
		ConfidenceScores: make(map[model.Field]float64),
		Method:           model.MethodLLM,
		Raw:              &model.RawData{LLMResponse: f},
	}
	if f.Confidence != nil {
		setScore(&result, model.FieldBrand, f.Confidence.Brand)
		setScore(&result, model.FieldProductFamily, f.Confidence.ProductFamily)
		setScore(&result, model.FieldModelNumber, f.Confidence.ModelNumber)
		setScore(&result, model.FieldSerialNumber, f.Confidence.SerialNumber)
	}
	return result
}

func setScore(r *model.ExtractionResult, field model.Field, v *float64) {
	if v == nil {
		return
	}
	score := *v
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	r.ConfidenceScores[field] = score
}
