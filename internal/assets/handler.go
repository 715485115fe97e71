package assets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adforge/backend/internal/middleware"
	"github.com/adforge/backend/internal/models"
	"github.com/adforge/backend/pkg/queue"
	"github.com/adforge/backend/pkg/response"
	"github.com/adforge/backend/pkg/storage"
)

// ImageGenerator renders image bytes from a prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// ImageStore uploads image bytes and streams stored objects.
type ImageStore interface {
	ObjectStreamer
	UploadImage(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// CampaignStore reads campaigns owned by the assets being operated on.
type CampaignStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	GetDetails(ctx context.Context, id uuid.UUID) (*models.CampaignDetails, error)
}

// ImageRepo persists generated images and their curation metadata.
type ImageRepo interface {
	GetImage(ctx context.Context, id uuid.UUID) (*models.GeneratedImage, error)
	GetImageByUnit(ctx context.Context, campaignID uuid.UUID, platform string, variation int) (*models.GeneratedImage, error)
	ImageOwner(ctx context.Context, imageID uuid.UUID) (uuid.UUID, error)
	UpdateImageResult(ctx context.Context, id uuid.UUID, imageURL, storageKey string) (*models.GeneratedImage, error)
	SelectWinner(ctx context.Context, imageID uuid.UUID, isSelected bool) ([]models.GeneratedImage, error)
	UpdateTags(ctx context.Context, id uuid.UUID, tags []string) (*models.GeneratedImage, error)
	UpdateCollection(ctx context.Context, id uuid.UUID, collection string) (*models.GeneratedImage, error)
	ListLibrary(ctx context.Context, ownerID uuid.UUID, f LibraryFilter) ([]LibraryItem, error)
}

// CleanupQueue receives storage keys whose objects are no longer referenced.
type CleanupQueue interface {
	EnqueueStorageCleanup(ctx context.Context, payload queue.StorageCleanupPayload) error
}

// Handler handles asset HTTP endpoints.
type Handler struct {
	repo      ImageRepo
	campaigns CampaignStore
	gen       ImageGenerator
	store     ImageStore
	exporter  *Exporter
	queue     CleanupQueue
	logger    *zap.Logger
}

// NewHandler creates an assets handler.
func NewHandler(repo ImageRepo, campaigns CampaignStore, gen ImageGenerator, store ImageStore, exporter *Exporter, q CleanupQueue, logger *zap.Logger) *Handler {
	return &Handler{
		repo:      repo,
		campaigns: campaigns,
		gen:       gen,
		store:     store,
		exporter:  exporter,
		queue:     q,
		logger:    logger,
	}
}

// RegenerateRequest identifies one (campaign, platform, variation) unit.
type RegenerateRequest struct {
	CampaignID      uuid.UUID `json:"campaign_id" binding:"required"`
	Platform        string    `json:"platform" binding:"required"`
	VariationNumber *int      `json:"variation_number" binding:"required"`
}

// Regenerate handles POST /assets/regenerate. Re-renders exactly one image
// in place with its stored prompt; siblings are untouched and the replaced
// object is enqueued for cleanup.
func (h *Handler) Regenerate(c *gin.Context) {
	var req RegenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if *req.VariationNumber < 0 {
		response.BadRequest(c, "variation_number must be non-negative")
		return
	}

	campaign, ok := h.ownedCampaign(c, req.CampaignID)
	if !ok {
		return
	}

	img, err := h.repo.GetImageByUnit(c.Request.Context(), campaign.ID, req.Platform, *req.VariationNumber)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "image not found for that platform and variation")
		return
	}
	if err != nil {
		h.logger.Error("get image", zap.Error(err))
		response.Internal(c, "failed to load image")
		return
	}

	data, err := h.gen.GenerateImage(c.Request.Context(), img.ImagePrompt)
	if err != nil {
		h.logger.Error("regenerate image failed",
			zap.String("image_id", img.ID.String()),
			zap.String("platform", img.Platform),
			zap.Error(err))
		response.ServiceUnavailable(c, "image generation is currently unavailable")
		return
	}

	key := storage.CampaignImageKey(campaign.ID.String(), img.Platform, img.VariationNumber, uuid.New().String()[:8])
	url, err := h.store.UploadImage(c.Request.Context(), key, "image/png", data)
	if err != nil {
		h.logger.Error("regenerated image upload failed", zap.String("image_id", img.ID.String()), zap.Error(err))
		response.Internal(c, "failed to store regenerated image")
		return
	}

	oldKey := img.StorageKey
	updated, err := h.repo.UpdateImageResult(c.Request.Context(), img.ID, url, key)
	if err != nil {
		h.logger.Error("update image result", zap.String("image_id", img.ID.String()), zap.Error(err))
		response.Internal(c, "failed to update image")
		return
	}

	if h.queue != nil && oldKey != "" {
		if err := h.queue.EnqueueStorageCleanup(c.Request.Context(), queue.StorageCleanupPayload{
			CampaignID: campaign.ID,
			Keys:       []string{oldKey},
		}); err != nil {
			h.logger.Warn("storage cleanup enqueue failed", zap.Error(err))
		}
	}

	response.OK(c, updated)
}

// SelectWinnerRequest marks or clears an A/B winner.
type SelectWinnerRequest struct {
	ImageID    uuid.UUID `json:"image_id" binding:"required"`
	IsSelected *bool     `json:"is_selected" binding:"required"`
}

// SelectWinner handles POST /assets/ab-test/select.
func (h *Handler) SelectWinner(c *gin.Context) {
	var req SelectWinnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	if !h.ownsImage(c, req.ImageID) {
		return
	}

	siblings, err := h.repo.SelectWinner(c.Request.Context(), req.ImageID, *req.IsSelected)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "image not found")
		return
	}
	if err != nil {
		h.logger.Error("select winner", zap.String("image_id", req.ImageID.String()), zap.Error(err))
		response.Internal(c, "failed to update selection")
		return
	}
	response.OK(c, siblings)
}

// Export handles GET /assets/export/:id, streaming a zip of the campaign's
// assets.
func (h *Handler) Export(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid campaign id")
		return
	}

	if _, ok := h.ownedCampaign(c, id); !ok {
		return
	}
	details, err := h.campaigns.GetDetails(c.Request.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "campaign not found")
		return
	}
	if err != nil {
		h.logger.Error("get campaign details", zap.String("campaign_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to load campaign")
		return
	}

	filename := fmt.Sprintf("%s_assets.zip", sanitizeName(details.ProductName))
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := h.exporter.BuildArchive(c.Request.Context(), details, c.Writer); err != nil {
		// Headers are already out; all we can do is log and cut the stream.
		h.logger.Error("export archive failed", zap.String("campaign_id", id.String()), zap.Error(err))
	}
}

// Library handles GET /assets/library.
func (h *Handler) Library(c *gin.Context) {
	userID := currentUserID(c)

	filter := LibraryFilter{
		Search:     strings.TrimSpace(c.Query("search")),
		Platform:   strings.TrimSpace(c.Query("platform")),
		Collection: strings.TrimSpace(c.Query("collection")),
	}
	if v := c.Query("campaign_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.BadRequest(c, "invalid campaign_id")
			return
		}
		filter.CampaignID = &id
	}
	if v := c.Query("tags"); v != "" {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter.Tags = append(filter.Tags, t)
			}
		}
	}

	items, err := h.repo.ListLibrary(c.Request.Context(), userID, filter)
	if err != nil {
		h.logger.Error("list library", zap.Error(err))
		response.Internal(c, "failed to list assets")
		return
	}
	if items == nil {
		items = []LibraryItem{}
	}
	response.OK(c, items)
}

// TagsRequest replaces an image's tag set.
type TagsRequest struct {
	ImageID uuid.UUID `json:"image_id" binding:"required"`
	Tags    []string  `json:"tags"`
}

// UpdateTags handles POST /assets/tags.
func (h *Handler) UpdateTags(c *gin.Context) {
	var req TagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !h.ownsImage(c, req.ImageID) {
		return
	}
	img, err := h.repo.UpdateTags(c.Request.Context(), req.ImageID, req.Tags)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "image not found")
		return
	}
	if err != nil {
		h.logger.Error("update tags", zap.String("image_id", req.ImageID.String()), zap.Error(err))
		response.Internal(c, "failed to update tags")
		return
	}
	response.OK(c, img)
}

// CollectionRequest assigns an image to a collection; empty clears it.
type CollectionRequest struct {
	ImageID    uuid.UUID `json:"image_id" binding:"required"`
	Collection string    `json:"collection"`
}

// UpdateCollection handles POST /assets/collection.
func (h *Handler) UpdateCollection(c *gin.Context) {
	var req CollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !h.ownsImage(c, req.ImageID) {
		return
	}
	img, err := h.repo.UpdateCollection(c.Request.Context(), req.ImageID, strings.TrimSpace(req.Collection))
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "image not found")
		return
	}
	if err != nil {
		h.logger.Error("update collection", zap.String("image_id", req.ImageID.String()), zap.Error(err))
		response.Internal(c, "failed to update collection")
		return
	}
	response.OK(c, img)
}

// Download handles GET /assets/images/:id/download, proxying the object
// bytes so the dashboard can fetch same-origin.
func (h *Handler) Download(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid image id")
		return
	}
	if !h.ownsImage(c, id) {
		return
	}
	img, err := h.repo.GetImage(c.Request.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "image not found")
		return
	}
	if err != nil {
		h.logger.Error("get image", zap.String("image_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to load image")
		return
	}

	body, contentType, err := h.store.GetObjectStream(c.Request.Context(), img.StorageKey)
	if err != nil {
		h.logger.Error("stream object", zap.String("key", img.StorageKey), zap.Error(err))
		response.NotFound(c, "image bytes unavailable")
		return
	}
	defer body.Close()

	if contentType == "" {
		contentType = "image/png"
	}
	filename := fmt.Sprintf("%s_v%d.png", sanitizeName(img.Platform), img.VariationNumber)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.DataFromReader(200, -1, contentType, body, nil)
}

// ownedCampaign loads the campaign and enforces ownership, writing the error
// response itself when the check fails.
func (h *Handler) ownedCampaign(c *gin.Context, id uuid.UUID) (*models.Campaign, bool) {
	campaign, err := h.campaigns.GetByID(c.Request.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "campaign not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("get campaign", zap.String("campaign_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to load campaign")
		return nil, false
	}
	if campaign.OwnerID != currentUserID(c) {
		response.Forbidden(c, "not your campaign")
		return nil, false
	}
	return campaign, true
}

// ownsImage enforces image ownership, writing the error response itself when
// the check fails.
func (h *Handler) ownsImage(c *gin.Context, imageID uuid.UUID) bool {
	ownerID, err := h.repo.ImageOwner(c.Request.Context(), imageID)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "image not found")
		return false
	}
	if err != nil {
		h.logger.Error("image owner", zap.String("image_id", imageID.String()), zap.Error(err))
		response.Internal(c, "failed to load image")
		return false
	}
	if ownerID != currentUserID(c) {
		response.Forbidden(c, "not your asset")
		return false
	}
	return true
}

func currentUserID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(middleware.ContextUserID); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}
