package campaigns

import (
	"errors"
	"io"
	"strconv"
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

// Handler handles campaign HTTP endpoints.
type Handler struct {
	orch   *Orchestrator
	repo   *Repository
	queue  CleanupQueue
	logger *zap.Logger
}

// NewHandler creates a campaigns handler.
func NewHandler(orch *Orchestrator, repo *Repository, q CleanupQueue, logger *zap.Logger) *Handler {
	return &Handler{orch: orch, repo: repo, queue: q, logger: logger}
}

// Generate handles POST /campaigns (multipart/form-data).
// Fields: product_url (required), product_name, enable_ab_testing,
// num_variations, product_image (file, optional).
func (h *Handler) Generate(c *gin.Context) {
	userID := currentUserID(c)

	productURL := strings.TrimSpace(c.PostForm("product_url"))
	if productURL == "" {
		response.BadRequest(c, "product_url is required")
		return
	}

	params := GenerateParams{
		OwnerID:     userID,
		ProductURL:  productURL,
		ProductName: strings.TrimSpace(c.PostForm("product_name")),
	}

	if v := c.PostForm("enable_ab_testing"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			response.BadRequest(c, "enable_ab_testing must be a boolean")
			return
		}
		params.EnableABTesting = enabled
	}
	if v := c.PostForm("num_variations"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			response.BadRequest(c, "num_variations must be an integer")
			return
		}
		params.NumVariations = n
	}

	if file, err := c.FormFile("product_image"); err == nil && file != nil {
		if file.Size > storage.MaxProductImageSize {
			response.BadRequest(c, "product image exceeds 10MiB limit")
			return
		}
		contentType := file.Header.Get("Content-Type")
		if !storage.ValidateImageType(contentType, file.Filename) {
			response.BadRequest(c, "product image must be JPEG, PNG or WebP")
			return
		}
		f, err := file.Open()
		if err != nil {
			response.BadRequest(c, "failed to read product image")
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, storage.MaxProductImageSize+1))
		f.Close()
		if err != nil {
			response.BadRequest(c, "failed to read product image")
			return
		}
		if len(data) > storage.MaxProductImageSize {
			response.BadRequest(c, "product image exceeds 10MiB limit")
			return
		}
		params.ProductImage = data
		params.ProductImageMIME = contentType
		params.ProductImageName = file.Filename
	}

	details, err := h.orch.Generate(c.Request.Context(), params)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrValidation):
			response.BadRequest(c, err.Error())
		case errors.Is(err, models.ErrUpstream):
			h.logger.Error("campaign generation failed upstream", zap.Error(err))
			response.ServiceUnavailable(c, "asset generation is currently unavailable")
		default:
			h.logger.Error("campaign generation failed", zap.Error(err))
			response.Internal(c, "failed to generate campaign")
		}
		return
	}

	response.Created(c, details)
}

// List handles GET /campaigns.
func (h *Handler) List(c *gin.Context) {
	userID := currentUserID(c)
	list, err := h.repo.List(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("list campaigns", zap.Error(err))
		response.Internal(c, "failed to list campaigns")
		return
	}
	if list == nil {
		list = []models.CampaignSummary{}
	}
	response.OK(c, list)
}

// Get handles GET /campaigns/:id.
func (h *Handler) Get(c *gin.Context) {
	userID := currentUserID(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid campaign id")
		return
	}

	details, err := h.repo.GetDetails(c.Request.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "campaign not found")
		return
	}
	if err != nil {
		h.logger.Error("get campaign", zap.String("campaign_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to load campaign")
		return
	}
	if details.OwnerID != userID {
		response.Forbidden(c, "not your campaign")
		return
	}
	response.OK(c, details)
}

// Delete handles DELETE /campaigns/:id. Removes the campaign and its assets;
// the owned storage objects are enqueued for background cleanup.
func (h *Handler) Delete(c *gin.Context) {
	userID := currentUserID(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid campaign id")
		return
	}

	campaign, err := h.repo.GetByID(c.Request.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "campaign not found")
		return
	}
	if err != nil {
		h.logger.Error("get campaign", zap.String("campaign_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to load campaign")
		return
	}
	if campaign.OwnerID != userID {
		response.Forbidden(c, "not your campaign")
		return
	}

	keys, err := h.repo.Delete(c.Request.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "campaign not found")
		return
	}
	if err != nil {
		h.logger.Error("delete campaign", zap.String("campaign_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to delete campaign")
		return
	}

	if h.queue != nil && len(keys) > 0 {
		if err := h.queue.EnqueueStorageCleanup(c.Request.Context(), queue.StorageCleanupPayload{CampaignID: id, Keys: keys}); err != nil {
			h.logger.Warn("storage cleanup enqueue failed", zap.String("campaign_id", id.String()), zap.Error(err))
		}
	}

	h.logger.Info("campaign deleted", zap.String("campaign_id", id.String()), zap.Int("objects", len(keys)))
	response.NoContent(c)
}

func currentUserID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(middleware.ContextUserID); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}
