package artwork

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/veranemoloko/retro-installer/internal/storage"
)

const (
	// maxDownload bounds a single artwork response.
	maxDownload = 32 << 20
	// maxPixels bounds the decoded canvas. Headers are checked before any
	// pixel data is allocated.
	maxPixels = 8192 * 8192
)

var errImageTooLarge = errors.New("artwork dimensions too large")

// Fetch downloads an image, shrinks it to fit MaxSize on its longest side
// and writes it to dest as PNG.
func (c *Client) Fetch(ctx context.Context, imageURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch artwork: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch artwork: bad status: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload))
	if err != nil {
		return fmt.Errorf("read artwork: %w", err)
	}

	encoded, err := Normalize(data, c.opts.MaxSize)
	if err != nil {
		return err
	}

	if err := storage.WriteFileAtomic(dest, encoded); err != nil {
		return err
	}
	c.logger.Debug("artwork saved", "dest", dest, "bytes", len(encoded))
	return nil
}

// Normalize decodes any supported image and re-encodes it as PNG no larger
// than maxSize on either side. Aspect ratio is preserved.
func Normalize(data []byte, maxSize int) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode artwork: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d", errImageTooLarge, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode artwork: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if maxSize > 0 && (width > maxSize || height > maxSize) {
		if width >= height {
			height = max(1, height*maxSize/width)
			width = maxSize
		} else {
			width = max(1, width*maxSize/height)
			height = maxSize
		}
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode artwork: %w", err)
	}
	return buf.Bytes(), nil
}
