package model

// Method identifies which extraction strategy produced a result.
type Method string

const (
	MethodLLM       Method = "llm"
	MethodOCR       Method = "ocr"
	MethodRuleBased Method = "rule_based"
	MethodHybrid    Method = "hybrid"
)

// Field names one of the four attributes extracted from a nameplate.
type Field string

const (
	FieldBrand         Field = "brand"
	FieldProductFamily Field = "product_family"
	FieldModelNumber   Field = "model_number"
	FieldSerialNumber  Field = "serial_number"
)

// Fields lists the tracked fields in their canonical order. The combiner
// and the canonicalizer iterate this slice so all stages agree on coverage.
var Fields = []Field{FieldBrand, FieldProductFamily, FieldModelNumber, FieldSerialNumber}

// ExtractionResult is the value produced by every extractor and by the
// combiner. Field values are best-effort guesses; an empty string means the
// extractor did not detect the field. ConfidenceScores maps field name to a
// score in [0,1]; a key present with value 0 means "looked and found
// nothing", a missing key means the extractor did not venture a score.
type ExtractionResult struct {
	Brand            string            `json:"brand,omitempty"`
	ProductFamily    string            `json:"product_family,omitempty"`
	ModelNumber      string            `json:"model_number,omitempty"`
	SerialNumber     string            `json:"serial_number,omitempty"`
	ConfidenceScores map[Field]float64 `json:"confidence_scores"`
	Method           Method            `json:"method"`
	ProcessingTimeMS int64             `json:"processing_time_ms"`
	Raw              *RawData          `json:"raw_data,omitempty"`
}

// RawData carries extractor-specific diagnostic payloads for auditing.
// Each extractor fills only its own slot; the hybrid pipeline aggregates
// all three. Never used for scoring.
type RawData struct {
	LLMResponse *VisionFields `json:"llm_response,omitempty"`
	OCRText     string        `json:"ocr_text,omitempty"`
	RuleMatches *RuleMatches  `json:"rule_matches,omitempty"`
}

// VisionFields is the typed response schema expected from the vision model:
// four optional strings plus an optional confidence sub-object.
type VisionFields struct {
	Brand         string            `json:"brand,omitempty"`
	ProductFamily string            `json:"product_family,omitempty"`
	ModelNumber   string            `json:"model_number,omitempty"`
	SerialNumber  string            `json:"serial_number,omitempty"`
	Confidence    *VisionConfidence `json:"confidence,omitempty"`
}

// VisionConfidence holds the model's per-field confidence in [0,1].
type VisionConfidence struct {
	Brand         *float64 `json:"brand,omitempty"`
	ProductFamily *float64 `json:"product_family,omitempty"`
	ModelNumber   *float64 `json:"model_number,omitempty"`
	SerialNumber  *float64 `json:"serial_number,omitempty"`
}

// RuleMatches echoes the fields the rule-based extractor matched.
type RuleMatches struct {
	Brand         string `json:"brand,omitempty"`
	ProductFamily string `json:"product_family,omitempty"`
	ModelNumber   string `json:"model_number,omitempty"`
	SerialNumber  string `json:"serial_number,omitempty"`
}

// FieldValue returns the value of the named field.
func (r *ExtractionResult) FieldValue(f Field) string {
	switch f {
	case FieldBrand:
		return r.Brand
	case FieldProductFamily:
		return r.ProductFamily
	case FieldModelNumber:
		return r.ModelNumber
	case FieldSerialNumber:
		return r.SerialNumber
	}
	return ""
}

// SetField sets the value of the named field.
func (r *ExtractionResult) SetField(f Field, v string) {
	switch f {
	case FieldBrand:
		r.Brand = v
	case FieldProductFamily:
		r.ProductFamily = v
	case FieldModelNumber:
		r.ModelNumber = v
	case FieldSerialNumber:
		r.SerialNumber = v
	}
}

// Score returns the confidence for a field and whether one was recorded.
func (r *ExtractionResult) Score(f Field) (float64, bool) {
	if r.ConfidenceScores == nil {
		return 0, false
	}
	s, ok := r.ConfidenceScores[f]
	return s, ok
}
