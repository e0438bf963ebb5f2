package dcrender

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func TestFitSize(t *testing.T) {
	for _, tc := range []struct{ w, h, max, wantW, wantH int }{
		{100, 50, 0, 100, 50},
		{100, 50, 200, 100, 50},
		{400, 100, 200, 200, 50},
		{100, 400, 200, 50, 200},
		{1000, 1, 10, 10, 1},
	} {
		w, h := fitSize(tc.w, tc.h, tc.max)
		if w != tc.wantW || h != tc.wantH {
			t.Errorf("fitSize(%d, %d, %d) = %d, %d, want %d, %d", tc.w, tc.h, tc.max, w, h, tc.wantW, tc.wantH)
		}
	}
}

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	img.Set(0, 0, color.NRGBA{255, 255, 255, 255})
	img.Set(1, 0, color.NRGBA{255, 0, 0, 255})
	img.Set(2, 0, color.NRGBA{0, 255, 0, 255})
	img.Set(0, 1, color.NRGBA{0, 0, 255, 255})
	img.Set(1, 1, color.NRGBA{0, 0, 0, 255})
	img.Set(2, 1, color.NRGBA{10, 20, 30, 255})
	return img
}

func TestTextureFromImage(t *testing.T) {
	img := testImage()
	for _, tc := range []struct {
		c    ColorFormat
		want []byte
	}{
		{RGBA, []byte{
			255, 255, 255, 255, 255, 0, 0, 255, 0, 255, 0, 255,
			0, 0, 255, 255, 0, 0, 0, 255, 10, 20, 30, 255,
		}},
		{RGB, []byte{
			255, 255, 255, 255, 0, 0, 0, 255, 0,
			0, 0, 255, 0, 0, 0, 10, 20, 30,
		}},
	} {
		td := TextureFromImage(img, tc.c, 0)
		if td.Width != 3 || td.Height != 2 || td.Usage != Immutable || td.Color != tc.c {
			t.Errorf("TextureFromImage(%d) = %dx%d %v %d", tc.c, td.Width, td.Height, td.Usage, td.Color)
		}
		if !bytes.Equal(td.Pixels, tc.want) {
			t.Errorf("TextureFromImage(%d) pixels = %v, want %v", tc.c, td.Pixels, tc.want)
		}
		if err := validate(nil, []TextureDescriptor{td}, 0); err != nil {
			t.Errorf("TextureFromImage(%d) is not a valid descriptor: %v", tc.c, err)
		}
	}

	gray := TextureFromImage(img, Grayscale, 0)
	if len(gray.Pixels) != 6 || gray.Pixels[0] != 255 || gray.Pixels[4] != 0 {
		t.Errorf("TextureFromImage(Grayscale) pixels = %v", gray.Pixels)
	}
}

func TestDecodeTextureScales(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 64, 32))
	for i := range src.Pix {
		src.Pix[i] = 200
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("png.Encode() = %v", err)
	}
	td, err := DecodeTexture(&buf, Grayscale, 16)
	if err != nil {
		t.Fatalf("DecodeTexture() = %v", err)
	}
	if td.Width != 16 || td.Height != 8 {
		t.Errorf("DecodeTexture() size = %dx%d, want 16x8", td.Width, td.Height)
	}
	for i, p := range td.Pixels {
		if p < 195 || p > 205 {
			t.Fatalf("pixel %d = %d, want about 200", i, p)
		}
	}
	if _, err := DecodeTexture(bytes.NewReader([]byte("not an image")), Grayscale, 0); err == nil {
		t.Error("DecodeTexture(garbage) = nil error")
	}
}
