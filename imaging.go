package dcrender

import (
	"fmt"
	"image"
	"io"

	xdraw "golang.org/x/image/draw"
)

// TextureFromImage converts img into an Immutable texture
// descriptor of color format c. Images larger than maxDim in
// either direction are scaled down, keeping the aspect ratio.
// A maxDim of zero disables scaling.
func TextureFromImage(img image.Image, c ColorFormat, maxDim uint32) TextureDescriptor {
	w, h := fitSize(img.Bounds().Dx(), img.Bounds().Dy(), int(maxDim))
	rect := image.Rect(0, 0, w, h)

	var dst xdraw.Image
	var pix []byte
	switch c {
	case Grayscale:
		g := image.NewGray(rect)
		dst, pix = g, g.Pix
	case RGB, RGBA:
		rgba := image.NewRGBA(rect)
		dst, pix = rgba, rgba.Pix
	default:
		panic(fmt.Sprintf("dcrender: unknown ColorFormat %d", int(c)))
	}
	if w == img.Bounds().Dx() && h == img.Bounds().Dy() {
		xdraw.Draw(dst, rect, img, img.Bounds().Min, xdraw.Src)
	} else {
		xdraw.CatmullRom.Scale(dst, rect, img, img.Bounds(), xdraw.Src, nil)
	}
	if c == RGB {
		rgb := make([]byte, 0, w*h*3)
		for i := 0; i < len(pix); i += 4 {
			rgb = append(rgb, pix[i], pix[i+1], pix[i+2])
		}
		pix = rgb
	}
	return TextureDescriptor{
		Width:  uint32(w),
		Height: uint32(h),
		Layers: 1,
		Color:  c,
		Usage:  Immutable,
		Pixels: pix,
	}
}

// DecodeTexture decodes an image from r and converts it with
// TextureFromImage. The decoders of the wanted formats must be
// registered by the caller.
func DecodeTexture(r io.Reader, c ColorFormat, maxDim uint32) (TextureDescriptor, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return TextureDescriptor{}, fmt.Errorf("decode texture: %w", err)
	}
	td := TextureFromImage(img, c, maxDim)
	Logger().Debug("decoded texture", "format", format,
		"source", img.Bounds().Size(), "width", td.Width, "height", td.Height)
	return td, nil
}

func fitSize(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	if w >= h {
		return maxDim, max(1, h*maxDim/w)
	}
	return max(1, w*maxDim/h), maxDim
}
