package assets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adforge/backend/internal/models"
)

const imageColumns = `id, campaign_id, platform, variation_number, image_url, storage_key, image_prompt, original_image_url, is_selected, tags, collection, created_at`

// LibraryFilter narrows the asset library listing. Zero values are no-ops.
type LibraryFilter struct {
	Search     string
	Platform   string
	Collection string
	CampaignID *uuid.UUID
	Tags       []string
}

// Repository handles generated image persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an assets repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanImage(row pgx.Row) (*models.GeneratedImage, error) {
	var img models.GeneratedImage
	err := row.Scan(&img.ID, &img.CampaignID, &img.Platform, &img.VariationNumber,
		&img.ImageURL, &img.StorageKey, &img.ImagePrompt, &img.OriginalImageURL,
		&img.IsSelected, &img.Tags, &img.Collection, &img.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &img, nil
}

// GetImage returns one generated image by ID.
func (r *Repository) GetImage(ctx context.Context, id uuid.UUID) (*models.GeneratedImage, error) {
	q := `SELECT ` + imageColumns + ` FROM generated_images WHERE id = $1`
	return scanImage(r.pool.QueryRow(ctx, q, id))
}

// GetImageByUnit returns the image for one (campaign, platform, variation) unit.
func (r *Repository) GetImageByUnit(ctx context.Context, campaignID uuid.UUID, platform string, variation int) (*models.GeneratedImage, error) {
	q := `SELECT ` + imageColumns + ` FROM generated_images
		WHERE campaign_id = $1 AND platform = $2 AND variation_number = $3`
	return scanImage(r.pool.QueryRow(ctx, q, campaignID, platform, variation))
}

// ImageOwner returns the owner of the campaign the image belongs to.
func (r *Repository) ImageOwner(ctx context.Context, imageID uuid.UUID) (uuid.UUID, error) {
	const q = `SELECT c.owner_id FROM generated_images i
		JOIN campaigns c ON c.id = i.campaign_id
		WHERE i.id = $1`
	var ownerID uuid.UUID
	err := r.pool.QueryRow(ctx, q, imageID).Scan(&ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, models.ErrNotFound
	}
	return ownerID, err
}

// UpdateImageResult replaces the stored object reference after a
// regeneration. The prompt and variation identity stay untouched.
func (r *Repository) UpdateImageResult(ctx context.Context, id uuid.UUID, imageURL, storageKey string) (*models.GeneratedImage, error) {
	q := `UPDATE generated_images SET image_url = $2, storage_key = $3
		WHERE id = $1
		RETURNING ` + imageColumns
	return scanImage(r.pool.QueryRow(ctx, q, id, imageURL, storageKey))
}

// SelectWinner marks the image as the platform winner (or clears it). Setting
// a winner clears same-platform siblings in the same transaction, so at most
// one image per (campaign, platform) is ever selected. Returns the platform's
// images after the swap.
func (r *Repository) SelectWinner(ctx context.Context, imageID uuid.UUID, isSelected bool) ([]models.GeneratedImage, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var campaignID uuid.UUID
	var platform string
	err = tx.QueryRow(ctx, `SELECT campaign_id, platform FROM generated_images WHERE id = $1 FOR UPDATE`, imageID).
		Scan(&campaignID, &platform)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if isSelected {
		if _, err := tx.Exec(ctx, `UPDATE generated_images SET is_selected = FALSE
			WHERE campaign_id = $1 AND platform = $2 AND id <> $3 AND is_selected`,
			campaignID, platform, imageID); err != nil {
			return nil, err
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE generated_images SET is_selected = $2 WHERE id = $1`, imageID, isSelected); err != nil {
		return nil, err
	}

	q := `SELECT ` + imageColumns + ` FROM generated_images
		WHERE campaign_id = $1 AND platform = $2 ORDER BY variation_number`
	rows, err := tx.Query(ctx, q, campaignID, platform)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var siblings []models.GeneratedImage
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		siblings = append(siblings, *img)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return siblings, nil
}

// UpdateTags replaces the image's tag set.
func (r *Repository) UpdateTags(ctx context.Context, id uuid.UUID, tags []string) (*models.GeneratedImage, error) {
	q := `UPDATE generated_images SET tags = $2 WHERE id = $1 RETURNING ` + imageColumns
	return scanImage(r.pool.QueryRow(ctx, q, id, tags))
}

// UpdateCollection moves the image into a collection (empty name clears it).
func (r *Repository) UpdateCollection(ctx context.Context, id uuid.UUID, collection string) (*models.GeneratedImage, error) {
	q := `UPDATE generated_images SET collection = NULLIF($2, '') WHERE id = $1 RETURNING ` + imageColumns
	return scanImage(r.pool.QueryRow(ctx, q, id, collection))
}

// LibraryItem is a library row: the image plus its campaign's product name.
type LibraryItem struct {
	models.GeneratedImage
	ProductName string `json:"product_name"`
}

// ListLibrary returns the owner's generated images across campaigns, newest
// first, narrowed by the filter.
func (r *Repository) ListLibrary(ctx context.Context, ownerID uuid.UUID, f LibraryFilter) ([]LibraryItem, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT i.id, i.campaign_id, i.platform, i.variation_number, i.image_url, i.storage_key,
		i.image_prompt, i.original_image_url, i.is_selected, i.tags, i.collection, i.created_at, c.product_name
		FROM generated_images i
		JOIN campaigns c ON c.id = i.campaign_id
		WHERE c.owner_id = $1`)
	args := []interface{}{ownerID}

	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		sb.WriteString(" AND ")
		sb.WriteString(strings.ReplaceAll(clause, "$N", fmt.Sprintf("$%d", len(args))))
	}
	if f.Search != "" {
		add("(c.product_name ILIKE '%' || $N || '%' OR i.image_prompt ILIKE '%' || $N || '%')", f.Search)
	}
	if f.Platform != "" {
		add("LOWER(i.platform) = LOWER($N)", f.Platform)
	}
	if f.Collection != "" {
		add("i.collection = $N", f.Collection)
	}
	if f.CampaignID != nil {
		add("i.campaign_id = $N", *f.CampaignID)
	}
	if len(f.Tags) > 0 {
		add("i.tags @> $N", f.Tags)
	}
	sb.WriteString(" ORDER BY i.created_at DESC")

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LibraryItem
	for rows.Next() {
		var it LibraryItem
		if err := rows.Scan(&it.ID, &it.CampaignID, &it.Platform, &it.VariationNumber, &it.ImageURL, &it.StorageKey,
			&it.ImagePrompt, &it.OriginalImageURL, &it.IsSelected, &it.Tags, &it.Collection, &it.CreatedAt, &it.ProductName); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
