// Package imaging decodes step images and resamples them for export.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Policy selects how an image is fitted to the export width.
type Policy string

const (
	// Fit scales to the target width keeping the aspect ratio.
	Fit Policy = "fit"
	// Crop center-crops to 4:3 and then scales to the target width.
	Crop Policy = "crop"
)

// ParsePolicy returns Fit for anything other than "crop".
func ParsePolicy(s string) Policy {
	if strings.EqualFold(strings.TrimSpace(s), string(Crop)) {
		return Crop
	}
	return Fit
}

// ErrEmpty is returned when there are no bytes to decode.
var ErrEmpty = errors.New("empty image")

// IsImageType reports whether mimeType names an image media type.
func IsImageType(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
}

// DetectType returns the declared media type when it is specific, otherwise
// the type sniffed from the content.
func DetectType(declared string, data []byte) string {
	declared = strings.TrimSpace(declared)
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared != "" && declared != "application/octet-stream" {
		return strings.ToLower(declared)
	}
	sniffed := http.DetectContentType(data)
	if i := strings.IndexByte(sniffed, ';'); i >= 0 {
		sniffed = sniffed[:i]
	}
	return sniffed
}

// Decode decodes JPEG, PNG, GIF, WebP and BMP data.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmpty
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// Resample scales src to width pixels wide onto a white background.
func Resample(src image.Image, width int, policy Policy) *image.RGBA {
	sr := src.Bounds()
	if policy == Crop {
		sr = cropRect(sr, 4, 3)
	}
	if width <= 0 {
		width = sr.Dx()
	}
	height := 1
	if sr.Dx() > 0 {
		height = int(float64(sr.Dy())*float64(width)/float64(sr.Dx()) + 0.5)
	}
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, sr, draw.Over, nil)
	return dst
}

// cropRect returns the largest centered rectangle inside r with aspect w:h.
func cropRect(r image.Rectangle, w, h int) image.Rectangle {
	dx, dy := r.Dx(), r.Dy()
	if dx*h > dy*w {
		nw := dy * w / h
		x0 := r.Min.X + (dx-nw)/2
		return image.Rect(x0, r.Min.Y, x0+nw, r.Max.Y)
	}
	nh := dx * h / w
	y0 := r.Min.Y + (dy-nh)/2
	return image.Rect(r.Min.X, y0, r.Max.X, y0+nh)
}

// EncodeJPEG encodes img at the given quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// ResampleJPEG decodes data, resamples it and re-encodes it as JPEG.
func ResampleJPEG(data []byte, width, quality int, policy Policy) ([]byte, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return EncodeJPEG(Resample(img, width, policy), quality)
}

// ToJPEG re-encodes data as JPEG at its original size, flattened onto white.
func ToJPEG(data []byte, quality int) ([]byte, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return EncodeJPEG(Resample(img, img.Bounds().Dx(), Fit), quality)
}

// DataURL encodes data as a base64 data URL.
func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURL decodes a base64 data URL into its media type and bytes.
func ParseDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("data URL has no payload")
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("data URL is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URL: %w", err)
	}
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}
	return mediaType, data, nil
}
