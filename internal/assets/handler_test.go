package assets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adforge/backend/internal/middleware"
	"github.com/adforge/backend/internal/models"
	"github.com/adforge/backend/pkg/queue"
)

type fakeImageRepo struct {
	owner   uuid.UUID
	images  map[uuid.UUID]*models.GeneratedImage
	updates []uuid.UUID
}

func newFakeImageRepo(owner uuid.UUID, images ...models.GeneratedImage) *fakeImageRepo {
	r := &fakeImageRepo{owner: owner, images: map[uuid.UUID]*models.GeneratedImage{}}
	for i := range images {
		img := images[i]
		r.images[img.ID] = &img
	}
	return r
}

func (r *fakeImageRepo) GetImage(ctx context.Context, id uuid.UUID) (*models.GeneratedImage, error) {
	img, ok := r.images[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *img
	return &cp, nil
}

func (r *fakeImageRepo) GetImageByUnit(ctx context.Context, campaignID uuid.UUID, platform string, variation int) (*models.GeneratedImage, error) {
	for _, img := range r.images {
		if img.CampaignID == campaignID && img.Platform == platform && img.VariationNumber == variation {
			cp := *img
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *fakeImageRepo) ImageOwner(ctx context.Context, imageID uuid.UUID) (uuid.UUID, error) {
	if _, ok := r.images[imageID]; !ok {
		return uuid.Nil, models.ErrNotFound
	}
	return r.owner, nil
}

func (r *fakeImageRepo) UpdateImageResult(ctx context.Context, id uuid.UUID, imageURL, storageKey string) (*models.GeneratedImage, error) {
	img, ok := r.images[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	img.ImageURL = imageURL
	img.StorageKey = storageKey
	r.updates = append(r.updates, id)
	cp := *img
	return &cp, nil
}

func (r *fakeImageRepo) SelectWinner(ctx context.Context, imageID uuid.UUID, isSelected bool) ([]models.GeneratedImage, error) {
	target, ok := r.images[imageID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if isSelected {
		for _, img := range r.images {
			if img.CampaignID == target.CampaignID && img.Platform == target.Platform && img.ID != imageID {
				img.IsSelected = false
			}
		}
	}
	target.IsSelected = isSelected
	var siblings []models.GeneratedImage
	for _, img := range r.images {
		if img.CampaignID == target.CampaignID && img.Platform == target.Platform {
			siblings = append(siblings, *img)
		}
	}
	sort.Slice(siblings, func(i, j int) bool { return siblings[i].VariationNumber < siblings[j].VariationNumber })
	return siblings, nil
}

func (r *fakeImageRepo) UpdateTags(ctx context.Context, id uuid.UUID, tags []string) (*models.GeneratedImage, error) {
	img, ok := r.images[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	img.Tags = tags
	cp := *img
	return &cp, nil
}

func (r *fakeImageRepo) UpdateCollection(ctx context.Context, id uuid.UUID, collection string) (*models.GeneratedImage, error) {
	img, ok := r.images[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if collection == "" {
		img.Collection = nil
	} else {
		img.Collection = &collection
	}
	cp := *img
	return &cp, nil
}

func (r *fakeImageRepo) ListLibrary(ctx context.Context, ownerID uuid.UUID, f LibraryFilter) ([]LibraryItem, error) {
	return nil, nil
}

type fakeCampaignStore struct {
	campaign *models.Campaign
}

func (s *fakeCampaignStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	if s.campaign == nil || s.campaign.ID != id {
		return nil, models.ErrNotFound
	}
	cp := *s.campaign
	return &cp, nil
}

func (s *fakeCampaignStore) GetDetails(ctx context.Context, id uuid.UUID) (*models.CampaignDetails, error) {
	c, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.CampaignDetails{Campaign: *c}, nil
}

type fakeImageGen struct {
	err     error
	prompts []string
}

func (g *fakeImageGen) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.prompts = append(g.prompts, prompt)
	return []byte("png-bytes"), nil
}

type fakeAssetStore struct {
	fakeStreamer
	keys []string
}

func (s *fakeAssetStore) UploadImage(ctx context.Context, key, contentType string, data []byte) (string, error) {
	s.keys = append(s.keys, key)
	return "https://cdn.test/" + key, nil
}

type fakeCleanupQueue struct {
	payloads []queue.StorageCleanupPayload
}

func (q *fakeCleanupQueue) EnqueueStorageCleanup(ctx context.Context, payload queue.StorageCleanupPayload) error {
	q.payloads = append(q.payloads, payload)
	return nil
}

type handlerFixture struct {
	handler  *Handler
	repo     *fakeImageRepo
	gen      *fakeImageGen
	store    *fakeAssetStore
	cleanup  *fakeCleanupQueue
	owner    uuid.UUID
	campaign models.Campaign
	images   []models.GeneratedImage
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	owner := uuid.New()
	campaign := models.Campaign{ID: uuid.New(), OwnerID: owner, ProductName: "Aurora Lamp"}
	images := []models.GeneratedImage{
		{ID: uuid.New(), CampaignID: campaign.ID, Platform: "Facebook", VariationNumber: 0,
			ImageURL: "https://cdn.test/old-fb-0", StorageKey: "campaigns/c/facebook/v0-old.png",
			ImagePrompt: "facebook lamp scene", IsSelected: true},
		{ID: uuid.New(), CampaignID: campaign.ID, Platform: "Facebook", VariationNumber: 1,
			ImageURL: "https://cdn.test/old-fb-1", StorageKey: "campaigns/c/facebook/v1-old.png",
			ImagePrompt: "facebook lamp scene variation", IsSelected: false},
		{ID: uuid.New(), CampaignID: campaign.ID, Platform: "X", VariationNumber: 0,
			ImageURL: "https://cdn.test/old-x-0", StorageKey: "campaigns/c/x/v0-old.png",
			ImagePrompt: "x lamp close-up", IsSelected: true},
	}

	repo := newFakeImageRepo(owner, images...)
	gen := &fakeImageGen{}
	store := &fakeAssetStore{}
	cleanup := &fakeCleanupQueue{}
	h := NewHandler(repo, &fakeCampaignStore{campaign: &campaign}, gen, store,
		NewExporter(store, nil), cleanup, zap.NewNop())

	return &handlerFixture{
		handler:  h,
		repo:     repo,
		gen:      gen,
		store:    store,
		cleanup:  cleanup,
		owner:    owner,
		campaign: campaign,
		images:   images,
	}
}

func postJSON(t *testing.T, userID uuid.UUID, body string, handler gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(middleware.ContextUserID, userID)
	handler(c)
	return w
}

func TestRegenerateMissingUnit(t *testing.T) {
	f := newHandlerFixture(t)

	body := `{"campaign_id": "` + f.campaign.ID.String() + `", "platform": "Facebook", "variation_number": 7}`
	w := postJSON(t, f.owner, body, f.handler.Regenerate)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, f.gen.prompts, "no render call for a missing unit")
	assert.Empty(t, f.repo.updates)
}

func TestRegenerateUnknownCampaign(t *testing.T) {
	f := newHandlerFixture(t)

	body := `{"campaign_id": "` + uuid.NewString() + `", "platform": "Facebook", "variation_number": 0}`
	w := postJSON(t, f.owner, body, f.handler.Regenerate)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegenerateForbiddenForNonOwner(t *testing.T) {
	f := newHandlerFixture(t)

	body := `{"campaign_id": "` + f.campaign.ID.String() + `", "platform": "Facebook", "variation_number": 0}`
	w := postJSON(t, uuid.New(), body, f.handler.Regenerate)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRegenerateInPlace(t *testing.T) {
	f := newHandlerFixture(t)
	target := f.images[0]

	body := `{"campaign_id": "` + f.campaign.ID.String() + `", "platform": "Facebook", "variation_number": 0}`
	w := postJSON(t, f.owner, body, f.handler.Regenerate)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                  `json:"success"`
		Data    models.GeneratedImage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)

	// Same row, same prompt, fresh object.
	assert.Equal(t, target.ID, resp.Data.ID)
	assert.Equal(t, target.ImagePrompt, resp.Data.ImagePrompt)
	assert.NotEqual(t, target.ImageURL, resp.Data.ImageURL)

	require.Len(t, f.gen.prompts, 1)
	assert.Equal(t, target.ImagePrompt, f.gen.prompts[0])

	require.Len(t, f.store.keys, 1)
	assert.Contains(t, f.store.keys[0], "/facebook/v0-")
	assert.NotEqual(t, target.StorageKey, f.store.keys[0])

	// Only the target row was touched.
	require.Equal(t, []uuid.UUID{target.ID}, f.repo.updates)
	sibling, err := f.repo.GetImage(context.Background(), f.images[1].ID)
	require.NoError(t, err)
	assert.Equal(t, f.images[1].ImageURL, sibling.ImageURL)
	assert.Equal(t, f.images[1].StorageKey, sibling.StorageKey)

	// The replaced object is queued for cleanup.
	require.Len(t, f.cleanup.payloads, 1)
	assert.Equal(t, f.campaign.ID, f.cleanup.payloads[0].CampaignID)
	assert.Equal(t, []string{target.StorageKey}, f.cleanup.payloads[0].Keys)
}

func TestRegenerateUpstreamFailure(t *testing.T) {
	f := newHandlerFixture(t)
	f.gen.err = errors.New("quota exceeded")

	body := `{"campaign_id": "` + f.campaign.ID.String() + `", "platform": "Facebook", "variation_number": 0}`
	w := postJSON(t, f.owner, body, f.handler.Regenerate)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Empty(t, f.repo.updates, "row must stay untouched when the render fails")
	assert.Empty(t, f.cleanup.payloads)
}

func TestSelectWinnerClearsSamePlatformSiblingsOnly(t *testing.T) {
	f := newHandlerFixture(t)
	// Facebook v0 is currently selected; promote v1.
	target := f.images[1]

	body := `{"image_id": "` + target.ID.String() + `", "is_selected": true}`
	w := postJSON(t, f.owner, body, f.handler.SelectWinner)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                    `json:"success"`
		Data    []models.GeneratedImage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)

	selected := 0
	for _, img := range resp.Data {
		assert.Equal(t, "Facebook", img.Platform)
		if img.IsSelected {
			selected++
			assert.Equal(t, target.ID, img.ID)
		}
	}
	assert.Equal(t, 1, selected, "exactly one winner per platform")

	// The other platform's selection is untouched.
	other, err := f.repo.GetImage(context.Background(), f.images[2].ID)
	require.NoError(t, err)
	assert.True(t, other.IsSelected)
}

func TestSelectWinnerDeselect(t *testing.T) {
	f := newHandlerFixture(t)
	target := f.images[0]

	body := `{"image_id": "` + target.ID.String() + `", "is_selected": false}`
	w := postJSON(t, f.owner, body, f.handler.SelectWinner)
	require.Equal(t, http.StatusOK, w.Code)

	img, err := f.repo.GetImage(context.Background(), target.ID)
	require.NoError(t, err)
	assert.False(t, img.IsSelected)
}

func TestSelectWinnerMissingImage(t *testing.T) {
	f := newHandlerFixture(t)

	body := `{"image_id": "` + uuid.NewString() + `", "is_selected": true}`
	w := postJSON(t, f.owner, body, f.handler.SelectWinner)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSelectWinnerForbiddenForNonOwner(t *testing.T) {
	f := newHandlerFixture(t)

	body := `{"image_id": "` + f.images[0].ID.String() + `", "is_selected": true}`
	w := postJSON(t, uuid.New(), body, f.handler.SelectWinner)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
