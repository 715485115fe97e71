package models

import (
	"time"

	"github.com/google/uuid"
)

// Campaign is one generation run for one product.
type Campaign struct {
	ID               uuid.UUID `json:"id"`
	OwnerID          uuid.UUID `json:"owner_id"`
	ProductName      string    `json:"product_name"`
	ProductURL       string    `json:"product_url"`
	OriginalImageURL *string   `json:"original_product_image_url,omitempty"`
	OriginalImageKey string    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
}

// CampaignSummary is a list-view row with a representative preview image.
type CampaignSummary struct {
	ID              uuid.UUID `json:"id"`
	ProductName     string    `json:"product_name"`
	ProductURL      string    `json:"product_url"`
	PreviewImageURL *string   `json:"preview_image_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// CampaignDetails is a Campaign with all owned texts and images.
type CampaignDetails struct {
	Campaign
	Texts  []GeneratedText  `json:"texts"`
	Images []GeneratedImage `json:"images"`
}

// GeneratedText is one platform's ad copy for a campaign.
// Scores are absent when the analytics call for the caption failed.
type GeneratedText struct {
	ID                  uuid.UUID `json:"id"`
	CampaignID          uuid.UUID `json:"campaign_id"`
	Platform            string    `json:"platform"`
	Caption             string    `json:"caption"`
	PersuasivenessScore *int      `json:"persuasiveness_score,omitempty"`
	ClarityScore        *int      `json:"clarity_score,omitempty"`
	Feedback            *string   `json:"feedback,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// GeneratedImage is one rendered visual for a campaign.
// VariationNumber 0 is the primary; 1..N are A/B alternates.
type GeneratedImage struct {
	ID               uuid.UUID `json:"id"`
	CampaignID       uuid.UUID `json:"campaign_id"`
	Platform         string    `json:"platform"`
	VariationNumber  int       `json:"variation_number"`
	ImageURL         string    `json:"image_url"`
	StorageKey       string    `json:"-"`
	ImagePrompt      string    `json:"image_prompt"`
	OriginalImageURL *string   `json:"original_image_url,omitempty"`
	IsSelected       bool      `json:"is_selected"`
	Tags             []string  `json:"tags,omitempty"`
	Collection       *string   `json:"collection,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
