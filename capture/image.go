package capture

import (
	"fmt"
	"image"
)

// Image is a packed BGR24 screen image with stride Width*3.
type Image struct {
	Width  int
	Height int
	Pix    []byte
}

func NewImage(width, height int) *Image {
	return &Image{Width: width, Height: height, Pix: make([]byte, width*height*3)}
}

// Bytes is the size of the pixel buffer.
func (img *Image) Bytes() int {
	if img == nil {
		return 0
	}
	return len(img.Pix)
}

// EvenSize rounds both dimensions down to even numbers, which yuv420p
// encoders require.
func EvenSize(width, height int) (int, int) {
	return width - width%2, height - height%2
}

// FromImage converts the top-left width x height region of src to BGR24.
func FromImage(src image.Image, width, height int) (*Image, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source image", ErrInvalidOptions)
	}
	b := src.Bounds()
	if width <= 0 || height <= 0 || b.Dx() < width || b.Dy() < height {
		return nil, fmt.Errorf("%w: source %dx%d smaller than %dx%d", ErrInvalidOptions, b.Dx(), b.Dy(), width, height)
	}

	dst := NewImage(width, height)
	switch s := src.(type) {
	case *image.RGBA:
		convertPacked(dst, s.Pix, s.Stride, s.PixOffset(b.Min.X, b.Min.Y), LayoutRGBX)
	case *image.NRGBA:
		// Screenshots are opaque, so straight and premultiplied alpha agree.
		convertPacked(dst, s.Pix, s.Stride, s.PixOffset(b.Min.X, b.Min.Y), LayoutRGBX)
	default:
		i := 0
		for y := b.Min.Y; y < b.Min.Y+height; y++ {
			for x := b.Min.X; x < b.Min.X+width; x++ {
				r, g, bl, _ := src.At(x, y).RGBA()
				dst.Pix[i] = byte(bl >> 8)
				dst.Pix[i+1] = byte(g >> 8)
				dst.Pix[i+2] = byte(r >> 8)
				i += 3
			}
		}
	}
	return dst, nil
}

// Layout names the byte order of a packed source buffer. The x byte is
// padding or alpha and is dropped.
type Layout int

const (
	LayoutBGRX Layout = iota + 1
	LayoutRGBX
	LayoutBGR
	LayoutRGB
)

func (l Layout) bytesPerPixel() int {
	switch l {
	case LayoutBGRX, LayoutRGBX:
		return 4
	case LayoutBGR, LayoutRGB:
		return 3
	}
	return 0
}

// ConvertPacked copies the top-left width x height region of a packed
// buffer with the given row stride into a new BGR24 image.
func ConvertPacked(src []byte, width, height, stride int, layout Layout) (*Image, error) {
	bpp := layout.bytesPerPixel()
	if bpp == 0 {
		return nil, fmt.Errorf("%w: unknown pixel layout %d", ErrInvalidOptions, layout)
	}
	if width <= 0 || height <= 0 || stride < width*bpp {
		return nil, fmt.Errorf("%w: %dx%d with stride %d", ErrInvalidOptions, width, height, stride)
	}
	if need := (height-1)*stride + width*bpp; len(src) < need {
		return nil, fmt.Errorf("%w: buffer holds %d bytes, need %d", ErrCaptureFailed, len(src), need)
	}

	dst := NewImage(width, height)
	convertPacked(dst, src, stride, 0, layout)
	return dst, nil
}

func convertPacked(dst *Image, pix []byte, stride, offset int, layout Layout) {
	bpp := layout.bytesPerPixel()
	// Source byte index of blue, green and red within a pixel.
	var b, g, r int
	switch layout {
	case LayoutBGRX, LayoutBGR:
		b, g, r = 0, 1, 2
	default:
		b, g, r = 2, 1, 0
	}

	for y := 0; y < dst.Height; y++ {
		row := pix[offset+y*stride:]
		out := dst.Pix[y*dst.Width*3 : (y+1)*dst.Width*3]
		if layout == LayoutBGR {
			copy(out, row[:dst.Width*3])
			continue
		}
		for x := 0; x < dst.Width; x++ {
			p := row[x*bpp:]
			out[x*3] = p[b]
			out[x*3+1] = p[g]
			out[x*3+2] = p[r]
		}
	}
}
