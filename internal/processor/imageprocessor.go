// imageprocessor.go - Image preparation before the vision call

package processor

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
)

// DefaultMaxDimension is the longest side sent to the vision model
const DefaultMaxDimension = 2000

// PrepareForOCR downscales an image whose longest side exceeds maxDim.
// Images already within bounds, and undecodable data, are returned unchanged
// so the provider can make its own decision.
func PrepareForOCR(data []byte, mimeType string, maxDim int) ([]byte, string, error) {
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return data, mimeType, nil
	}
	if cfg.Width <= maxDim && cfg.Height <= maxDim {
		return data, mimeType, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}

	img = resizeLongestSide(img, maxDim)

	var buf bytes.Buffer
	switch mimeType {
	case "image/png":
		err = png.Encode(&buf, img)
	default:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95})
		mimeType = "image/jpeg"
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode processed image: %w", err)
	}

	return buf.Bytes(), mimeType, nil
}

func resizeLongestSide(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() > bounds.Dy() {
		return imaging.Resize(img, maxDim, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, maxDim, imaging.Lanczos)
}
