package assets

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adforge/backend/internal/models"
)

type fakeStreamer struct {
	objects map[string][]byte
}

func (s *fakeStreamer) GetObjectStream(ctx context.Context, key string) (io.ReadCloser, string, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, "", errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(data)), "image/png", nil
}

func exportDetails() *models.CampaignDetails {
	return &models.CampaignDetails{
		Campaign: models.Campaign{
			ID:          uuid.New(),
			ProductName: "Aurora Lamp",
		},
		Texts: []models.GeneratedText{
			{Platform: "Facebook", Caption: "Light up your feed"},
			{Platform: "X", Caption: "Bright ideas only"},
		},
		Images: []models.GeneratedImage{
			{Platform: "Facebook", VariationNumber: 0, StorageKey: "campaigns/c/facebook/v0-a.png"},
			{Platform: "Facebook", VariationNumber: 1, StorageKey: "campaigns/c/facebook/v1-b.png"},
			{Platform: "X", VariationNumber: 0, StorageKey: "campaigns/c/x/v0-c.png"},
		},
	}
}

func readArchive(t *testing.T, buf *bytes.Buffer) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	entries := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		entries[f.Name] = data
	}
	return entries
}

func TestBuildArchiveComplete(t *testing.T) {
	streamer := &fakeStreamer{objects: map[string][]byte{
		"campaigns/c/facebook/v0-a.png": []byte("img-a"),
		"campaigns/c/facebook/v1-b.png": []byte("img-b"),
		"campaigns/c/x/v0-c.png":        []byte("img-c"),
	}}
	exp := NewExporter(streamer, nil)

	var buf bytes.Buffer
	require.NoError(t, exp.BuildArchive(context.Background(), exportDetails(), &buf))
	entries := readArchive(t, &buf)

	assert.Equal(t, []byte("img-a"), entries["Aurora_Lamp/Facebook/variation_0.png"])
	assert.Equal(t, []byte("img-b"), entries["Aurora_Lamp/Facebook/variation_1.png"])
	assert.Equal(t, []byte("img-c"), entries["Aurora_Lamp/X/variation_0.png"])

	captions := string(entries["Aurora_Lamp/captions.txt"])
	assert.Contains(t, captions, "Facebook:")
	assert.Contains(t, captions, "Light up your feed")
	assert.Contains(t, captions, "Bright ideas only")

	_, hasNotes := entries["Aurora_Lamp/export_notes.txt"]
	assert.False(t, hasNotes)
}

func TestBuildArchivePartialFailure(t *testing.T) {
	streamer := &fakeStreamer{objects: map[string][]byte{
		"campaigns/c/facebook/v0-a.png": []byte("img-a"),
		"campaigns/c/x/v0-c.png":        []byte("img-c"),
	}}
	exp := NewExporter(streamer, nil)

	var buf bytes.Buffer
	require.NoError(t, exp.BuildArchive(context.Background(), exportDetails(), &buf))
	entries := readArchive(t, &buf)

	_, hasMissing := entries["Aurora_Lamp/Facebook/variation_1.png"]
	assert.False(t, hasMissing)

	notes := string(entries["Aurora_Lamp/export_notes.txt"])
	assert.Contains(t, notes, "Aurora_Lamp/Facebook/variation_1.png")
	assert.NotContains(t, notes, "variation_0.png")
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "Aurora_Lamp", sanitizeName("Aurora Lamp"))
	assert.Equal(t, "untitled", sanitizeName("   "))
	assert.Equal(t, "untitled", sanitizeName("///"))
	assert.Equal(t, "Lamp_2", sanitizeName("Lamp/ 2"))
}
