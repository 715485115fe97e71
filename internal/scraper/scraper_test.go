package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productPage = `<!DOCTYPE html>
<html>
<head><title>Aurora Desk Lamp</title></head>
<body>
<article>
<h1>Aurora Desk Lamp</h1>
<p>The Aurora Desk Lamp brings warm, adjustable light to any workspace.
Three brightness levels, touch controls, and a five year warranty make it
a favorite for home offices and studios alike.</p>
<p>Available in matte black and brushed brass finishes.</p>
</article>
</body>
</html>`

func TestResolveExtractsTitleAndText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(productPage))
	}))
	defer srv.Close()

	r := NewResolver(5 * time.Second)
	pc, err := r.Resolve(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, pc.Title, "Aurora Desk Lamp")
	assert.Contains(t, pc.Text, "adjustable light")
	assert.LessOrEqual(t, len(pc.Text), maxTextLength)
}

func TestResolveNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	r := NewResolver(5 * time.Second)
	_, err := r.Resolve(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestResolveUnreachable(t *testing.T) {
	r := NewResolver(500 * time.Millisecond)
	_, err := r.Resolve(context.Background(), "http://127.0.0.1:1/nope")
	assert.Error(t, err)
}

func TestFallbackContext(t *testing.T) {
	pc := FallbackContext("https://shop.example/lamp", "Aurora Lamp")
	assert.Equal(t, "Aurora Lamp", pc.Title)
	assert.Contains(t, pc.Text, "https://shop.example/lamp")
	assert.Contains(t, pc.Text, "Aurora Lamp")
}

func TestFallbackContextNoName(t *testing.T) {
	pc := FallbackContext("https://shop.example/lamp", "  ")
	assert.Empty(t, pc.Title)
	assert.Contains(t, pc.Text, "Unknown product")
}

func TestResolveTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("héllo wörld ", 600)
	page := "<!DOCTYPE html><html><head><title>Löng Pröduct</title></head><body><article><p>" +
		long + "</p></article></body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	r := NewResolver(5 * time.Second)
	pc, err := r.Resolve(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(pc.Text), maxTextLength)
	assert.True(t, utf8.ValidString(pc.Text))
}

func TestTruncateTextRuneBoundary(t *testing.T) {
	s := strings.Repeat("é", 3000)
	out := truncateText(s, 4001)
	assert.Equal(t, 4000, len(out))
	assert.True(t, utf8.ValidString(out))
}
