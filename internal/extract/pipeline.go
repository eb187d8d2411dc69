// Package extract implements the nameplate field-extraction pipeline: a
// vision-model extractor, an OCR extractor, a rule battery, and the combiner
// and canonicalizer that merge their outputs.
package extract

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atelierlabs/nameplate-cli/internal/blob"
	"github.com/atelierlabs/nameplate-cli/internal/model"
)

// DefaultSignedURLTTL is how long image URLs handed to remote services
// stay valid. Generous enough to survive throttle waits and retries.
const DefaultSignedURLTTL = time.Hour

// Options selects the extraction strategy and the storage tier the image
// lives in.
type Options struct {
	Method model.Method // MethodLLM or MethodHybrid
	Mode   blob.Mode
}

// Pipeline orchestrates extraction for one image: it signs a URL for the
// stored object, runs the selected extractors, and merges and normalizes
// their outputs.
type Pipeline struct {
	blobs        blob.Store
	llm          *LLMExtractor
	ocr          *OCRExtractor
	rules        *RuleBasedExtractor
	signedURLTTL time.Duration
}

func NewPipeline(blobs blob.Store, llm *LLMExtractor, ocr *OCRExtractor) *Pipeline {
	return &Pipeline{
		blobs:        blobs,
		llm:          llm,
		ocr:          ocr,
		rules:        NewRuleBasedExtractor(),
		signedURLTTL: DefaultSignedURLTTL,
	}
}

// WithSignedURLTTL overrides how long signed image URLs stay valid.
// Non-positive values keep the default.
func (p *Pipeline) WithSignedURLTTL(ttl time.Duration) *Pipeline {
	if ttl > 0 {
		p.signedURLTTL = ttl
	}
	return p
}

// ProcessImage runs the pipeline for one stored image. LLM mode fails when
// the vision call fails; hybrid mode tolerates individual extractor
// failures and combines whatever succeeded, which may be nothing.
func (p *Pipeline) ProcessImage(ctx context.Context, img model.Image, opts Options) (model.ExtractionResult, error) {
	start := time.Now()

	url, err := p.blobs.SignedURL(opts.Mode, img.StoragePath, p.signedURLTTL)
	if err != nil {
		return model.ExtractionResult{}, eris.Wrap(err, "extract: signing image URL failed")
	}

	var result model.ExtractionResult
	switch opts.Method {
	case model.MethodHybrid:
		result = p.runHybrid(ctx, url)
	default:
		result, err = p.llm.Extract(ctx, url)
		if err != nil {
			return model.ExtractionResult{}, err
		}
	}

	Canonicalize(&result)
	result.ProcessingTimeMS = time.Since(start).Milliseconds()
	return result, nil
}

// runHybrid fans out the vision and OCR extractors concurrently, runs the
// rule battery over whatever text OCR produced, and combines the surviving
// candidates in trust order: vision first, OCR second, rules last.
func (p *Pipeline) runHybrid(ctx context.Context, imageURL string) model.ExtractionResult {
	var (
		llmResult model.ExtractionResult
		llmErr    error
		ocrResult model.ExtractionResult
		ocrErr    error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		llmResult, llmErr = p.llm.Extract(gctx, imageURL)
		return nil
	})
	g.Go(func() error {
		ocrResult, ocrErr = p.ocr.Extract(gctx, imageURL)
		return nil
	})
	_ = g.Wait()

	candidates := make([]model.ExtractionResult, 0, 3)
	raw := &model.RawData{}

	if llmErr != nil {
		zap.L().Warn("vision extractor failed in hybrid mode", zap.Error(llmErr))
	} else {
		candidates = append(candidates, llmResult)
		if llmResult.Raw != nil {
			raw.LLMResponse = llmResult.Raw.LLMResponse
		}
	}

	if ocrErr != nil {
		zap.L().Warn("ocr extractor failed in hybrid mode", zap.Error(ocrErr))
	} else {
		candidates = append(candidates, ocrResult)
		if ocrResult.Raw != nil {
			raw.OCRText = ocrResult.Raw.OCRText
		}
		// The rule battery only has something to chew on when OCR actually
		// produced text.
		if raw.OCRText != "" {
			ruleResult := p.rules.Extract(raw.OCRText)
			candidates = append(candidates, ruleResult)
			if ruleResult.Raw != nil {
				raw.RuleMatches = ruleResult.Raw.RuleMatches
			}
		}
	}

	combined := Combine(candidates)
	combined.Method = model.MethodHybrid
	combined.Raw = raw
	return combined
}
