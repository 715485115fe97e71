package campaigns

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/adforge/backend/internal/creative"
	"github.com/adforge/backend/internal/models"
	"github.com/adforge/backend/internal/scraper"
	"github.com/adforge/backend/pkg/queue"
	"github.com/adforge/backend/pkg/storage"
)

const (
	// MinVariations and DefaultMaxVariations bound the A/B variation count
	// per platform.
	MinVariations        = 2
	DefaultMaxVariations = 3
)

// Generator is the asset generation capability used by the orchestrator.
type Generator interface {
	AnalyzeProductImage(ctx context.Context, data []byte, mimeType string) (string, error)
	CreativeBrief(ctx context.Context, productText, imageAnalysis string, platforms []string) (*creative.Brief, error)
	ScoreCaption(ctx context.Context, caption string) (*creative.CaptionScore, error)
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// ImageStore uploads image bytes and returns a retrievable URL.
type ImageStore interface {
	UploadImage(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// ContextResolver resolves product context from the product reference.
type ContextResolver interface {
	Resolve(ctx context.Context, url string) (*scraper.ProductContext, error)
}

// Store persists one campaign with all of its assets atomically.
type Store interface {
	CreateWithAssets(ctx context.Context, c *models.Campaign, texts []models.GeneratedText, images []models.GeneratedImage) error
}

// CleanupQueue receives storage keys whose objects are no longer referenced.
type CleanupQueue interface {
	EnqueueStorageCleanup(ctx context.Context, payload queue.StorageCleanupPayload) error
}

// GenerateParams are the inputs for one campaign generation run.
type GenerateParams struct {
	OwnerID          uuid.UUID
	ProductURL       string
	ProductName      string // optional; derived from brief/page when empty
	ProductImage     []byte // optional product photo
	ProductImageMIME string
	ProductImageName string
	EnableABTesting  bool
	NumVariations    int // meaningful only when EnableABTesting
}

// Orchestrator coordinates one campaign generation run: resolve product
// context, fan out per-platform (and per-variation) generation calls, upload
// results, and persist them as one cohesive campaign.
type Orchestrator struct {
	gen           Generator
	images        ImageStore
	resolver      ContextResolver
	store         Store
	cleanup       CleanupQueue
	platforms     []string
	concurrency   int
	maxVariations int
	logger        *zap.Logger
}

// NewOrchestrator creates a campaign orchestrator.
func NewOrchestrator(gen Generator, images ImageStore, resolver ContextResolver, store Store, cleanup CleanupQueue, platforms []string, concurrency, maxVariations int, logger *zap.Logger) *Orchestrator {
	if concurrency <= 0 {
		concurrency = 4
	}
	if maxVariations < MinVariations {
		maxVariations = DefaultMaxVariations
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		gen:           gen,
		images:        images,
		resolver:      resolver,
		store:         store,
		cleanup:       cleanup,
		platforms:     platforms,
		concurrency:   concurrency,
		maxVariations: maxVariations,
		logger:        logger,
	}
}

// Generate runs one campaign generation. Not idempotent: every call mints a
// new campaign identity. Per-platform/per-variation generation failures are
// absorbed as absent rows; the call fails only on invalid input, a total lack
// of product context, or a persistence failure.
func (o *Orchestrator) Generate(ctx context.Context, p GenerateParams) (*models.CampaignDetails, error) {
	if strings.TrimSpace(p.ProductURL) == "" {
		return nil, fmt.Errorf("%w: product_url is required", models.ErrValidation)
	}
	variations := 1
	if p.EnableABTesting {
		if p.NumVariations < MinVariations || p.NumVariations > o.maxVariations {
			return nil, fmt.Errorf("%w: num_variations must be between %d and %d", models.ErrValidation, MinVariations, o.maxVariations)
		}
		variations = p.NumVariations
	}
	if len(p.ProductImage) > storage.MaxProductImageSize {
		return nil, fmt.Errorf("%w: product image exceeds 10MiB limit", models.ErrValidation)
	}

	campaignID := uuid.New()

	// Uploaded product photo: store the original and extract visual details.
	// Both are best-effort; the run proceeds without them.
	var originalURL *string
	var originalKey, imageAnalysis string
	if len(p.ProductImage) > 0 {
		key := storage.OriginalImageKey(campaignID.String(), shortID(), p.ProductImageName)
		url, err := o.images.UploadImage(ctx, key, p.ProductImageMIME, p.ProductImage)
		if err != nil {
			o.logger.Warn("original product image upload failed", zap.Error(err), zap.String("campaign_id", campaignID.String()))
		} else {
			originalURL = &url
			originalKey = key
		}
		analysis, err := o.gen.AnalyzeProductImage(ctx, p.ProductImage, p.ProductImageMIME)
		if err != nil {
			o.logger.Warn("product image analysis failed", zap.Error(err))
		} else {
			imageAnalysis = analysis
		}
	}

	// Product context: degrade to metadata-only text when the page is unreachable.
	pc, err := o.resolver.Resolve(ctx, p.ProductURL)
	if err != nil {
		o.logger.Warn("product scrape failed", zap.String("url", p.ProductURL), zap.Error(err))
		pc = scraper.FallbackContext(p.ProductURL, p.ProductName)
	}

	brief, err := o.gen.CreativeBrief(ctx, pc.Text, imageAnalysis, o.platforms)
	if err != nil || len(brief.Platforms) == 0 {
		name := firstNonEmpty(p.ProductName, pc.Title)
		if name == "" {
			return nil, fmt.Errorf("%w: creative brief failed and no product name available: %v", models.ErrUpstream, err)
		}
		o.logger.Warn("creative brief failed, using fallback briefs", zap.Error(err), zap.String("product_name", name))
		brief = creative.FallbackBrief(name, o.platforms)
	}
	briefs := dedupePlatforms(brief.Platforms)

	productName := firstNonEmpty(p.ProductName, brief.ProductName, pc.Title, "Untitled Campaign")

	texts := o.scoreCaptions(ctx, briefs)
	images, orphanKeys := o.generateImages(ctx, campaignID, briefs, variations, originalURL)
	o.enqueueCleanup(ctx, campaignID, orphanKeys)

	campaign := &models.Campaign{
		ID:               campaignID,
		OwnerID:          p.OwnerID,
		ProductName:      productName,
		ProductURL:       p.ProductURL,
		OriginalImageURL: originalURL,
		OriginalImageKey: originalKey,
	}
	if err := o.store.CreateWithAssets(ctx, campaign, texts, images); err != nil {
		// Nothing was persisted; every uploaded object is now unreferenced.
		keys := make([]string, 0, len(images)+1)
		for _, img := range images {
			keys = append(keys, img.StorageKey)
		}
		if originalKey != "" {
			keys = append(keys, originalKey)
		}
		o.enqueueCleanup(ctx, campaignID, keys)
		return nil, fmt.Errorf("persist campaign: %w", err)
	}

	o.logger.Info("campaign generated",
		zap.String("campaign_id", campaignID.String()),
		zap.String("product_name", productName),
		zap.Int("texts", len(texts)),
		zap.Int("images", len(images)))

	return &models.CampaignDetails{
		Campaign: *campaign,
		Texts:    texts,
		Images:   images,
	}, nil
}

// scoreCaptions scores all captions concurrently. A failed scoring call
// leaves that platform's scores absent; the caption itself is kept.
func (o *Orchestrator) scoreCaptions(ctx context.Context, briefs []creative.PlatformBrief) []models.GeneratedText {
	scores := make([]*creative.CaptionScore, len(briefs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i := range briefs {
		i := i
		g.Go(func() error {
			s, err := o.gen.ScoreCaption(gctx, briefs[i].Caption)
			if err != nil {
				o.logger.Warn("caption scoring failed", zap.String("platform", briefs[i].Platform), zap.Error(err))
				return nil
			}
			scores[i] = s
			return nil
		})
	}
	_ = g.Wait()

	texts := make([]models.GeneratedText, 0, len(briefs))
	for i, b := range briefs {
		t := models.GeneratedText{
			Platform: b.Platform,
			Caption:  b.Caption,
		}
		if s := scores[i]; s != nil {
			t.PersuasivenessScore = s.Persuasiveness
			t.ClarityScore = s.Clarity
			t.Feedback = s.Feedback
		}
		texts = append(texts, t)
	}
	return texts
}

type imageUnit struct {
	platform  string
	variation int
	prompt    string
}

type imageResult struct {
	url string
	key string
	ok  bool
}

// generateImages fans out one bounded generation+upload call per
// (platform, variation) unit. Failed units are absorbed as absent rows, and
// variations whose primary (variation 0) failed are dropped: a variation
// without its primary is a data anomaly we refuse to persist.
func (o *Orchestrator) generateImages(ctx context.Context, campaignID uuid.UUID, briefs []creative.PlatformBrief, variations int, originalURL *string) ([]models.GeneratedImage, []string) {
	var units []imageUnit
	for _, b := range briefs {
		for v := 0; v < variations; v++ {
			units = append(units, imageUnit{
				platform:  b.Platform,
				variation: v,
				prompt:    creative.VariationPrompt(b.ImagePrompt, v),
			})
		}
	}

	results := make([]imageResult, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i := range units {
		i := i
		g.Go(func() error {
			u := units[i]
			data, err := o.gen.GenerateImage(gctx, u.prompt)
			if err != nil {
				o.logger.Warn("image generation failed",
					zap.String("platform", u.platform),
					zap.Int("variation", u.variation),
					zap.Error(err))
				return nil
			}
			key := storage.CampaignImageKey(campaignID.String(), u.platform, u.variation, shortID())
			url, err := o.images.UploadImage(gctx, key, "image/png", data)
			if err != nil {
				o.logger.Warn("image upload failed",
					zap.String("platform", u.platform),
					zap.Int("variation", u.variation),
					zap.Error(err))
				return nil
			}
			results[i] = imageResult{url: url, key: key, ok: true}
			return nil
		})
	}
	_ = g.Wait()

	primaryOK := make(map[string]bool, len(briefs))
	for i, u := range units {
		if u.variation == 0 && results[i].ok {
			primaryOK[u.platform] = true
		}
	}

	images := make([]models.GeneratedImage, 0, len(units))
	var orphanKeys []string
	for i, u := range units {
		r := results[i]
		if !r.ok {
			continue
		}
		if u.variation > 0 && !primaryOK[u.platform] {
			o.logger.Warn("dropping orphan variation without primary",
				zap.String("platform", u.platform),
				zap.Int("variation", u.variation))
			orphanKeys = append(orphanKeys, r.key)
			continue
		}
		images = append(images, models.GeneratedImage{
			Platform:         u.platform,
			VariationNumber:  u.variation,
			ImageURL:         r.url,
			StorageKey:       r.key,
			ImagePrompt:      u.prompt,
			OriginalImageURL: originalURL,
			IsSelected:       u.variation == 0,
		})
	}
	return images, orphanKeys
}

func (o *Orchestrator) enqueueCleanup(ctx context.Context, campaignID uuid.UUID, keys []string) {
	if o.cleanup == nil || len(keys) == 0 {
		return
	}
	if err := o.cleanup.EnqueueStorageCleanup(ctx, queue.StorageCleanupPayload{CampaignID: campaignID, Keys: keys}); err != nil {
		o.logger.Warn("storage cleanup enqueue failed", zap.Error(err), zap.Int("keys", len(keys)))
	}
}

func dedupePlatforms(briefs []creative.PlatformBrief) []creative.PlatformBrief {
	seen := make(map[string]bool, len(briefs))
	out := briefs[:0]
	for _, b := range briefs {
		if seen[b.Platform] {
			continue
		}
		seen[b.Platform] = true
		out = append(out, b)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func shortID() string {
	return uuid.New().String()[:8]
}
