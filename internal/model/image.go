package model

import "time"

// Image is the stored record of an uploaded nameplate photograph. The
// extraction core only consumes StoragePath (to resolve a signed URL);
// the rest belongs to the surrounding application.
type Image struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"owner_id"`
	OriginalFilename string    `json:"original_filename"`
	StoragePath      string    `json:"storage_path"`
	MIMEType         string    `json:"mime_type"`
	SizeBytes        int64     `json:"size_bytes"`
	UploadedAt       time.Time `json:"uploaded_at"`
}

// Prediction is a persisted ExtractionResult for an image.
type Prediction struct {
	ID           string           `json:"id"`
	ImageID      string           `json:"image_id"`
	OwnerID      string           `json:"owner_id"`
	Result       ExtractionResult `json:"result"`
	ModelVersion string           `json:"model_version"`
	CreatedAt    time.Time        `json:"created_at"`
}

// GroundTruth holds human-verified field values for an image, used for
// accuracy scoring. Verified is set once a reviewer signs off.
type GroundTruth struct {
	ID            string    `json:"id"`
	ImageID       string    `json:"image_id"`
	OwnerID       string    `json:"owner_id"`
	Brand         string    `json:"brand,omitempty"`
	ProductFamily string    `json:"product_family,omitempty"`
	ModelNumber   string    `json:"model_number,omitempty"`
	SerialNumber  string    `json:"serial_number,omitempty"`
	VerifiedBy    string    `json:"verified_by,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	Verified      bool      `json:"verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// FieldValue returns the ground-truth value of the named field.
func (g *GroundTruth) FieldValue(f Field) string {
	switch f {
	case FieldBrand:
		return g.Brand
	case FieldProductFamily:
		return g.ProductFamily
	case FieldModelNumber:
		return g.ModelNumber
	case FieldSerialNumber:
		return g.SerialNumber
	}
	return ""
}
