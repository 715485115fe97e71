package campaigns

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adforge/backend/internal/models"
)

// Repository handles campaign persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a campaign repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateWithAssets inserts the campaign and all of its generated texts and
// images in a single transaction, so a campaign is never visible without its
// children.
func (r *Repository) CreateWithAssets(ctx context.Context, c *models.Campaign, texts []models.GeneratedText, images []models.GeneratedImage) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const campaignQ = `INSERT INTO campaigns (id, owner_id, product_name, product_url, original_image_url, original_image_key)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6,''))
		RETURNING created_at`
	if err := tx.QueryRow(ctx, campaignQ, c.ID, c.OwnerID, c.ProductName, c.ProductURL, c.OriginalImageURL, c.OriginalImageKey).
		Scan(&c.CreatedAt); err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}

	const textQ = `INSERT INTO generated_texts (campaign_id, platform, caption, persuasiveness_score, clarity_score, feedback)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	for i := range texts {
		t := &texts[i]
		t.CampaignID = c.ID
		if err := tx.QueryRow(ctx, textQ, c.ID, t.Platform, t.Caption, t.PersuasivenessScore, t.ClarityScore, t.Feedback).
			Scan(&t.ID, &t.CreatedAt); err != nil {
			return fmt.Errorf("insert text (%s): %w", t.Platform, err)
		}
	}

	const imageQ = `INSERT INTO generated_images (campaign_id, platform, variation_number, image_url, storage_key, image_prompt, original_image_url, is_selected)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`
	for i := range images {
		img := &images[i]
		img.CampaignID = c.ID
		if err := tx.QueryRow(ctx, imageQ, c.ID, img.Platform, img.VariationNumber, img.ImageURL, img.StorageKey, img.ImagePrompt, img.OriginalImageURL, img.IsSelected).
			Scan(&img.ID, &img.CreatedAt); err != nil {
			return fmt.Errorf("insert image (%s v%d): %w", img.Platform, img.VariationNumber, err)
		}
	}

	return tx.Commit(ctx)
}

// GetByID returns a campaign row without its children.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	const q = `SELECT id, owner_id, product_name, product_url, original_image_url, COALESCE(original_image_key,''), created_at
		FROM campaigns WHERE id = $1`
	var c models.Campaign
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&c.ID, &c.OwnerID, &c.ProductName, &c.ProductURL, &c.OriginalImageURL, &c.OriginalImageKey, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns the owner's campaign summaries, newest first, each with the
// earliest variation-0 image as preview (or none).
func (r *Repository) List(ctx context.Context, ownerID uuid.UUID) ([]models.CampaignSummary, error) {
	const q = `SELECT c.id, c.product_name, c.product_url, c.created_at,
		(SELECT i.image_url FROM generated_images i
		 WHERE i.campaign_id = c.id AND i.variation_number = 0
		 ORDER BY i.created_at, i.platform LIMIT 1)
		FROM campaigns c
		WHERE c.owner_id = $1
		ORDER BY c.created_at DESC`
	rows, err := r.pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.CampaignSummary
	for rows.Next() {
		var s models.CampaignSummary
		if err := rows.Scan(&s.ID, &s.ProductName, &s.ProductURL, &s.CreatedAt, &s.PreviewImageURL); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// GetDetails returns the campaign with all owned texts and images.
func (r *Repository) GetDetails(ctx context.Context, id uuid.UUID) (*models.CampaignDetails, error) {
	c, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	details := &models.CampaignDetails{Campaign: *c}

	const textsQ = `SELECT id, campaign_id, platform, caption, persuasiveness_score, clarity_score, feedback, created_at
		FROM generated_texts WHERE campaign_id = $1 ORDER BY platform`
	rows, err := r.pool.Query(ctx, textsQ, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var t models.GeneratedText
		if err := rows.Scan(&t.ID, &t.CampaignID, &t.Platform, &t.Caption, &t.PersuasivenessScore, &t.ClarityScore, &t.Feedback, &t.CreatedAt); err != nil {
			return nil, err
		}
		details.Texts = append(details.Texts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const imagesQ = `SELECT id, campaign_id, platform, variation_number, image_url, storage_key, image_prompt, original_image_url, is_selected, tags, collection, created_at
		FROM generated_images WHERE campaign_id = $1 ORDER BY platform, variation_number`
	imgRows, err := r.pool.Query(ctx, imagesQ, id)
	if err != nil {
		return nil, err
	}
	defer imgRows.Close()
	for imgRows.Next() {
		var img models.GeneratedImage
		if err := imgRows.Scan(&img.ID, &img.CampaignID, &img.Platform, &img.VariationNumber, &img.ImageURL, &img.StorageKey, &img.ImagePrompt, &img.OriginalImageURL, &img.IsSelected, &img.Tags, &img.Collection, &img.CreatedAt); err != nil {
			return nil, err
		}
		details.Images = append(details.Images, img)
	}
	return details, imgRows.Err()
}

// Delete removes the campaign (children cascade) and returns the storage keys
// the deleted rows held, for best-effort object cleanup.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) ([]string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var keys []string
	rows, err := tx.Query(ctx, `SELECT storage_key FROM generated_images WHERE campaign_id = $1 AND storage_key <> ''`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			rows.Close()
			return nil, err
		}
		keys = append(keys, k)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var originalKey *string
	if err := tx.QueryRow(ctx, `SELECT original_image_key FROM campaigns WHERE id = $1`, id).Scan(&originalKey); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	if originalKey != nil && *originalKey != "" {
		keys = append(keys, *originalKey)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, models.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return keys, nil
}
