package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func testPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestResample_FitKeepsAspect(t *testing.T) {
	img, _, err := Decode(testPNG(t, 400, 300, color.Black))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out := Resample(img, 1200, Fit)
	if out.Bounds().Dx() != 1200 || out.Bounds().Dy() != 900 {
		t.Errorf("expected 1200x900, got %v", out.Bounds())
	}
}

func TestResample_CropToFourThree(t *testing.T) {
	img, _, err := Decode(testPNG(t, 1000, 300, color.Black))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out := Resample(img, 800, Crop)
	if out.Bounds().Dx() != 800 || out.Bounds().Dy() != 600 {
		t.Errorf("expected 800x600, got %v", out.Bounds())
	}
}

func TestResample_TransparentBecomesWhite(t *testing.T) {
	img, _, err := Decode(testPNG(t, 10, 10, color.NRGBA{}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out := Resample(img, 20, Fit)
	r, g, b, _ := out.At(10, 10).RGBA()
	if r>>8 != 255 || g>>8 != 255 || b>>8 != 255 {
		t.Errorf("expected white background, got %d,%d,%d", r>>8, g>>8, b>>8)
	}
}

func TestResampleJPEG(t *testing.T) {
	out, err := ResampleJPEG(testPNG(t, 60, 40, color.RGBA{200, 10, 10, 255}), 120, 90, Fit)
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	img, format, err := Decode(out)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("expected jpeg, got %s", format)
	}
	if img.Bounds().Dx() != 120 || img.Bounds().Dy() != 80 {
		t.Errorf("expected 120x80, got %v", img.Bounds())
	}
}

func TestDecode_Errors(t *testing.T) {
	if _, _, err := Decode(nil); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
	if _, _, err := Decode([]byte("not an image")); err == nil {
		t.Error("expected decode error")
	}
}

func TestDetectType(t *testing.T) {
	pngData := testPNG(t, 2, 2, color.Black)
	tests := []struct {
		declared string
		data     []byte
		want     string
	}{
		{"image/jpeg", pngData, "image/jpeg"},
		{"IMAGE/PNG; charset=binary", nil, "image/png"},
		{"", pngData, "image/png"},
		{"application/octet-stream", pngData, "image/png"},
		{"", []byte("hello world"), "text/plain"},
	}
	for _, tt := range tests {
		if got := DetectType(tt.declared, tt.data); got != tt.want {
			t.Errorf("DetectType(%q) = %q, want %q", tt.declared, got, tt.want)
		}
	}
}

func TestIsImageType(t *testing.T) {
	if !IsImageType("image/webp") {
		t.Error("expected image/webp accepted")
	}
	if IsImageType("application/pdf") {
		t.Error("expected application/pdf rejected")
	}
}

func TestDataURL(t *testing.T) {
	data := []byte{0x89, 'P', 'N', 'G', 0, 1, 2}
	url := DataURL("image/png", data)
	mime, got, err := ParseDataURL(url)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if mime != "image/png" || !bytes.Equal(got, data) {
		t.Errorf("unexpected result %q %v", mime, got)
	}

	for _, bad := range []string{"image/png;base64,AAAA", "data:image/png;base64", "data:image/png,AAAA", "data:image/png;base64,!!!"} {
		if _, _, err := ParseDataURL(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestParsePolicy(t *testing.T) {
	if ParsePolicy(" Crop ") != Crop || ParsePolicy("fit") != Fit || ParsePolicy("") != Fit {
		t.Error("unexpected policy parsing")
	}
}
