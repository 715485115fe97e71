package assets

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/adforge/backend/internal/models"
)

// ObjectStreamer streams stored object bytes by key.
type ObjectStreamer interface {
	GetObjectStream(ctx context.Context, key string) (io.ReadCloser, string, error)
}

// Exporter builds campaign export archives from stored assets.
type Exporter struct {
	store  ObjectStreamer
	logger *zap.Logger
}

// NewExporter creates an export builder.
func NewExporter(store ObjectStreamer, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{store: store, logger: logger}
}

// BuildArchive writes a zip with every fetchable campaign image grouped by
// product and platform, plus a captions file. Images that cannot be fetched
// are skipped and listed in export_notes.txt inside the archive; the export
// itself still succeeds.
func (e *Exporter) BuildArchive(ctx context.Context, details *models.CampaignDetails, w io.Writer) error {
	zw := zip.NewWriter(w)
	product := sanitizeName(details.ProductName)
	var failed []string

	for _, img := range details.Images {
		if img.StorageKey == "" {
			continue
		}
		name := fmt.Sprintf("%s/%s/variation_%d.png", product, sanitizeName(img.Platform), img.VariationNumber)
		body, _, err := e.store.GetObjectStream(ctx, img.StorageKey)
		if err != nil {
			e.logger.Warn("export fetch failed",
				zap.String("campaign_id", details.ID.String()),
				zap.String("key", img.StorageKey),
				zap.Error(err))
			failed = append(failed, name)
			continue
		}
		entry, err := zw.Create(name)
		if err != nil {
			body.Close()
			return fmt.Errorf("create zip entry: %w", err)
		}
		_, copyErr := io.Copy(entry, body)
		body.Close()
		if copyErr != nil {
			return fmt.Errorf("write zip entry %s: %w", name, copyErr)
		}
	}

	if len(details.Texts) > 0 {
		entry, err := zw.Create(product + "/captions.txt")
		if err != nil {
			return fmt.Errorf("create captions entry: %w", err)
		}
		var sb strings.Builder
		for _, t := range details.Texts {
			sb.WriteString(t.Platform)
			sb.WriteString(":\n")
			sb.WriteString(t.Caption)
			sb.WriteString("\n\n")
		}
		if _, err := io.WriteString(entry, sb.String()); err != nil {
			return fmt.Errorf("write captions: %w", err)
		}
	}

	if len(failed) > 0 {
		entry, err := zw.Create(product + "/export_notes.txt")
		if err != nil {
			return fmt.Errorf("create notes entry: %w", err)
		}
		var sb strings.Builder
		sb.WriteString("The following assets could not be fetched and are missing from this export:\n")
		for _, name := range failed {
			sb.WriteString("- ")
			sb.WriteString(name)
			sb.WriteString("\n")
		}
		if _, err := io.WriteString(entry, sb.String()); err != nil {
			return fmt.Errorf("write notes: %w", err)
		}
	}

	return zw.Close()
}

// sanitizeName makes a string safe for use as an archive path segment.
func sanitizeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "untitled"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "untitled"
	}
	return b.String()
}
