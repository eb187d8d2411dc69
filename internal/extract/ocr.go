package extract

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/atelierlabs/nameplate-cli/internal/model"
	"github.com/atelierlabs/nameplate-cli/pkg/ocrspace"
)

// Heuristic confidences for text scraped out of raw OCR output. These are
// intentionally below the vision model's typical scores: OCR text is noisy
// and the patterns are loose.
const (
	ocrBrandConfidence  = 0.8
	ocrFamilyConfidence = 0.6
	ocrModelConfidence  = 0.7
	ocrSerialConfidence = 0.7
)

// DefaultMaxImageBytes caps images sent to the OCR endpoint at 1 MiB, the
// limit of the free processing tier.
const DefaultMaxImageBytes = 1024 * 1024

var (
	ocrBrandRe  = regexp.MustCompile(`(?i)\b(whirlpool|samsung|lg|ge|maytag|kenmore|frigidaire|bosch|electrolux|haier)\b`)
	ocrModelRe  = regexp.MustCompile(`\b[A-Z]{1,4}[0-9]{2,6}[A-Z]?\b|\b[0-9]{3,6}[A-Z]{1,3}\b`)
	ocrSerialRe = regexp.MustCompile(`\b[A-Z0-9]{8,20}\b`)

	ocrFamilyKeywords = []string{"wash", "dry", "tower", "flex", "turbo", "smart", "eco", "steam"}
)

// OCRExtractor fetches raw text for an image through the OCR service and
// scrapes nameplate fields out of it with loose heuristics.
type OCRExtractor struct {
	ocr           *ocrspace.Client
	httpClient    *http.Client
	maxImageBytes int64
}

func NewOCRExtractor(ocr *ocrspace.Client) *OCRExtractor {
	return &OCRExtractor{
		ocr:           ocr,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		maxImageBytes: DefaultMaxImageBytes,
	}
}

// WithMaxImageBytes overrides the pre-call size cap. Non-positive values
// keep the default.
func (e *OCRExtractor) WithMaxImageBytes(n int64) *OCRExtractor {
	if n > 0 {
		e.maxImageBytes = n
	}
	return e
}

// Extract OCRs the image behind imageURL and runs the heuristic field pass.
// Images over the byte cap are rejected before the remote call; a failed
// size probe is logged and ignored.
func (e *OCRExtractor) Extract(ctx context.Context, imageURL string) (model.ExtractionResult, error) {
	start := time.Now()

	if err := e.checkImageSize(ctx, imageURL); err != nil {
		return model.ExtractionResult{}, err
	}

	parsed, err := e.ocr.ParseImageURL(ctx, imageURL)
	if err != nil {
		return model.ExtractionResult{}, eris.Wrap(err, "extract: ocr text retrieval failed")
	}

	result := extractFromOCRText(parsed.Text)
	result.Method = model.MethodOCR
	result.Raw = &model.RawData{OCRText: parsed.Text}
	result.ProcessingTimeMS = time.Since(start).Milliseconds()
	return result, nil
}

// checkImageSize probes Content-Length with a HEAD request. Only a
// confirmed oversize is an error; probe failures and absent lengths pass.
func (e *OCRExtractor) checkImageSize(ctx context.Context, imageURL string) error {
	if e.maxImageBytes <= 0 {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, imageURL, nil)
	if err != nil {
		zap.L().Warn("image size probe skipped", zap.Error(err))
		return nil
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		zap.L().Warn("image size probe failed", zap.Error(err))
		return nil
	}
	defer resp.Body.Close()
	if resp.ContentLength > e.maxImageBytes {
		return eris.Errorf("extract: image is %d bytes, over the %d byte OCR limit", resp.ContentLength, e.maxImageBytes)
	}
	return nil
}

// extractFromOCRText is the heuristic pass over raw OCR output.
func extractFromOCRText(text string) model.ExtractionResult {
	result := model.ExtractionResult{
		ConfidenceScores: make(map[model.Field]float64),
	}

	if m := ocrBrandRe.FindString(text); m != "" {
		lower := strings.ToLower(m)
		result.Brand = strings.ToUpper(lower[:1]) + lower[1:]
		result.ConfidenceScores[model.FieldBrand] = ocrBrandConfidence
	}

	if m := ocrModelRe.FindString(text); m != "" {
		result.ModelNumber = m
		result.ConfidenceScores[model.FieldModelNumber] = ocrModelConfidence
	}

	// Serials are the longest plausible alphanumeric run; short matches are
	// usually model fragments or voltage ratings.
	best := ""
	for _, m := range ocrSerialRe.FindAllString(text, -1) {
		if len(m) > len(best) {
			best = m
		}
	}
	if best != "" {
		result.SerialNumber = best
		result.ConfidenceScores[model.FieldSerialNumber] = ocrSerialConfidence
	}

	// Product families show up as short marketing lines near the top of the
	// plate; a long line containing a keyword is almost never the family.
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || len(trimmed) >= 50 {
			continue
		}
		lower := strings.ToLower(trimmed)
		for _, kw := range ocrFamilyKeywords {
			if strings.Contains(lower, kw) {
				result.ProductFamily = trimmed
				result.ConfidenceScores[model.FieldProductFamily] = ocrFamilyConfidence
				break
			}
		}
		if result.ProductFamily != "" {
			break
		}
	}

	return result
}
