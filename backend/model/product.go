package model

import "time"

// ProductRecord is the persisted product row
type ProductRecord struct {
	Product
	Approved  bool      `json:"approved"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductSummary is the list view of a persisted product
type ProductSummary struct {
	ISIN             string  `json:"product_isin"`
	SEDOL            *string `json:"sedol"`
	ShortDescription *string `json:"short_description"`
	Issuer           *string `json:"issuer"`
	IssueDate        Date    `json:"issue_date"`
	Currency         string  `json:"currency"`
	Maturity         Date    `json:"maturity"`
	ProductType      *string `json:"product_type"`
	Approved         bool    `json:"approved"`
	UnderlyingCount  int     `json:"underlying_count"`
	EventCount       int     `json:"event_count"`
}

// ProductDetail is the full view of a persisted product. Events are ordered by observation date.
type ProductDetail struct {
	Product
	Approved    bool         `json:"approved"`
	Underlyings []Underlying `json:"underlyings"`
	Events      []Event      `json:"events"`
}

// ExtractionMetadata is the audit row written next to each persisted product
type ExtractionMetadata struct {
	ProductISIN    string    `json:"product_isin"`
	SourceFilename string    `json:"source_filename"`
	ExtractedAt    time.Time `json:"extracted_at"`
	Status         string    `json:"status"`
	BlobPath       string    `json:"blob_path"`
}
