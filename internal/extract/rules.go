package extract

import (
	"regexp"
	"time"

	"github.com/atelierlabs/nameplate-cli/internal/model"
)

// Fixed confidences for lookup-style rules. Model and serial rules carry
// their own per-pattern confidence since pattern specificity varies a lot.
const (
	ruleBrandConfidence  = 0.85
	ruleFamilyConfidence = 0.8
)

// brandRule maps a detection pattern (including common OCR misreads) to a
// canonical brand spelling.
type brandRule struct {
	pattern *regexp.Regexp
	brand   string
}

// patternRule is a regexp with an intrinsic confidence; more specific
// manufacturer prefixes score higher than generic shapes.
type patternRule struct {
	pattern    *regexp.Regexp
	confidence float64
}

// familyRule maps a marketing-line pattern to a product family label.
type familyRule struct {
	pattern *regexp.Regexp
	family  string
}

var brandRules = []brandRule{
	{regexp.MustCompile(`(?i)\b(whirlpool|whrlpool)\b`), "Whirlpool"},
	{regexp.MustCompile(`(?i)\b(samsung|samsng)\b`), "Samsung"},
	{regexp.MustCompile(`(?i)\blg\b`), "LG"},
	{regexp.MustCompile(`(?i)\b(general electric|ge)\b`), "GE"},
	{regexp.MustCompile(`(?i)\b(maytag|mayteg)\b`), "Maytag"},
	{regexp.MustCompile(`(?i)\b(kenmore|kenmre)\b`), "Kenmore"},
	{regexp.MustCompile(`(?i)\b(frigidaire|frigidare)\b`), "Frigidaire"},
	{regexp.MustCompile(`(?i)\b(bosch|bosh)\b`), "Bosch"},
	{regexp.MustCompile(`(?i)\b(electrolux|electrolx)\b`), "Electrolux"},
	{regexp.MustCompile(`(?i)\b(haier|hier)\b`), "Haier"},
}

var modelRules = []patternRule{
	// Manufacturer prefix series (Whirlpool, Samsung, LG, GE).
	{regexp.MustCompile(`\b(WTW|WFW|WED|WGD)[0-9]{4}[A-Z]?\w*\b`), 0.9},
	{regexp.MustCompile(`\b(WF|DV|WA|DVE)[0-9]{2}[A-Z][0-9]{4}[A-Z]?\w*\b`), 0.9},
	{regexp.MustCompile(`\b(WM|DLEX|WT|DLE)[0-9]{4}[A-Z]?\w*\b`), 0.9},
	{regexp.MustCompile(`\b(GTW|GTD|GFW|GFD)[0-9]{3}[A-Z]?\w*\b`), 0.9},
	// Generic alphanumeric shapes.
	{regexp.MustCompile(`\b[A-Z]{2,4}[0-9]{3,6}[A-Z]?\w*\b`), 0.7},
	{regexp.MustCompile(`\b[0-9]{3,6}[A-Z]{2,4}\w*\b`), 0.6},
}

var serialRules = []patternRule{
	{regexp.MustCompile(`\b[A-Z]{2}[0-9]{8,12}[A-Z0-9]*\b`), 0.9},
	{regexp.MustCompile(`\b[A-Z0-9]{10,20}\b`), 0.8},
	{regexp.MustCompile(`\b[0-9]{8,12}[A-Z]{2,4}\b`), 0.7},
}

var familyRules = []familyRule{
	{regexp.MustCompile(`(?i)\bwash\s*tower\b`), "WashTower"},
	{regexp.MustCompile(`(?i)\bflex\s*wash\b`), "FlexWash"},
	{regexp.MustCompile(`(?i)\bturbo\s*wash\b`), "TurboWash"},
	{regexp.MustCompile(`(?i)\bsmart\s*care\b`), "SmartCare"},
	{regexp.MustCompile(`(?i)\beco\s*boost\b`), "EcoBoost"},
	{regexp.MustCompile(`(?i)\bsteam\s*fresh\b`), "SteamFresh"},
	{regexp.MustCompile(`(?i)\bquiet\s*wash\b`), "QuietWash"},
}

// RuleBasedExtractor matches curated regexp batteries against OCR text. It
// is deterministic and needs no network access, so it serves as the cheap
// third opinion in hybrid mode.
type RuleBasedExtractor struct{}

func NewRuleBasedExtractor() *RuleBasedExtractor { return &RuleBasedExtractor{} }

// Extract runs every rule battery over the text. Brand and family take the
// first matching rule; model and serial keep the match with the highest
// rule confidence, and among equal-confidence serial matches the longest
// wins (serials are long, fragments are short).
func (e *RuleBasedExtractor) Extract(text string) model.ExtractionResult {
	start := time.Now()
	result := model.ExtractionResult{
		ConfidenceScores: make(map[model.Field]float64),
		Method:           model.MethodRuleBased,
	}

	for _, r := range brandRules {
		if r.pattern.MatchString(text) {
			result.Brand = r.brand
			result.ConfidenceScores[model.FieldBrand] = ruleBrandConfidence
			break
		}
	}

	for _, r := range familyRules {
		if r.pattern.MatchString(text) {
			result.ProductFamily = r.family
			result.ConfidenceScores[model.FieldProductFamily] = ruleFamilyConfidence
			break
		}
	}

	bestModelConf := 0.0
	for _, r := range modelRules {
		if r.confidence <= bestModelConf {
			continue
		}
		if m := r.pattern.FindString(text); m != "" {
			result.ModelNumber = m
			bestModelConf = r.confidence
		}
	}
	if result.ModelNumber != "" {
		result.ConfidenceScores[model.FieldModelNumber] = bestModelConf
	}

	bestSerialConf := 0.0
	for _, r := range serialRules {
		if r.confidence <= bestSerialConf {
			continue
		}
		best := ""
		for _, m := range r.pattern.FindAllString(text, -1) {
			if len(m) > len(best) {
				best = m
			}
		}
		if best != "" {
			result.SerialNumber = best
			bestSerialConf = r.confidence
		}
	}
	if result.SerialNumber != "" {
		result.ConfidenceScores[model.FieldSerialNumber] = bestSerialConf
	}

	result.Raw = &model.RawData{RuleMatches: &model.RuleMatches{
		Brand:         result.Brand,
		ProductFamily: result.ProductFamily,
		ModelNumber:   result.ModelNumber,
		SerialNumber:  result.SerialNumber,
	}}
	result.ProcessingTimeMS = time.Since(start).Milliseconds()
	return result
}
