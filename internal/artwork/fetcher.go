// Package artwork downloads album art and caches menu-bar sized thumbnails.
package artwork

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"  // GIF decoder
	"image/jpeg"
	_ "image/png" // PNG decoder
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP decoder
)

const (
	// ThumbSize is the thumbnail edge length in pixels
	ThumbSize = 300

	// DefaultTimeout for HTTP requests
	DefaultTimeout = 10 * time.Second

	// MaxImageSize is the maximum image size to download (10MB)
	MaxImageSize = 10 * 1024 * 1024
)

// Fetcher downloads artwork by URL and caches resized copies on disk.
type Fetcher struct {
	cacheDir   string
	httpClient *http.Client
}

// Option is a functional option for configuring the fetcher
type Option func(*Fetcher)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.httpClient = client
	}
}

// NewFetcher creates a fetcher that caches thumbnails under cacheDir.
func NewFetcher(cacheDir string, opts ...Option) *Fetcher {
	f := &Fetcher{
		cacheDir: cacheDir,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fetch returns the local path of a thumbnail for the given artwork URL,
// downloading and resizing it on a cache miss.
func (f *Fetcher) Fetch(url string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("empty artwork url")
	}

	thumbDir := filepath.Join(f.cacheDir, "thumbs")
	if err := os.MkdirAll(thumbDir, 0755); err != nil {
		return "", fmt.Errorf("create thumbnail directory: %w", err)
	}

	sum := md5.Sum([]byte(url))
	thumbPath := filepath.Join(thumbDir, hex.EncodeToString(sum[:])+".jpg")

	if _, err := os.Stat(thumbPath); err == nil {
		return thumbPath, nil
	}

	img, err := f.download(url)
	if err != nil {
		return "", err
	}

	out, err := os.Create(thumbPath)
	if err != nil {
		return "", fmt.Errorf("create thumbnail file: %w", err)
	}
	defer out.Close()

	if err := jpeg.Encode(out, resize(img, ThumbSize), &jpeg.Options{Quality: 85}); err != nil {
		os.Remove(thumbPath)
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}

	log.Debug().Str("url", url).Str("path", thumbPath).Msg("Cached artwork thumbnail")
	return thumbPath, nil
}

// download fetches and decodes the source image.
func (f *Fetcher) download(url string) (image.Image, error) {
	resp, err := f.httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch artwork: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("artwork fetch failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageSize))
	if err != nil {
		return nil, fmt.Errorf("read artwork: %w", err)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode artwork: %w", err)
	}

	log.Debug().Str("format", format).Int("bytes", len(data)).Msg("Downloaded artwork")
	return img, nil
}

// resize scales an image to fit within maxSize while keeping aspect ratio.
// Images already small enough pass through unchanged.
func resize(src image.Image, maxSize int) image.Image {
	bounds := src.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	if srcW <= maxSize && srcH <= maxSize {
		return src
	}

	var newW, newH int
	if srcW > srcH {
		newW = maxSize
		newH = int(float64(srcH) * float64(maxSize) / float64(srcW))
	} else {
		newH = maxSize
		newW = int(float64(srcW) * float64(maxSize) / float64(srcH))
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}
