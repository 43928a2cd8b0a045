package frame

import (
	"fmt"
	"image"
	"image/color"
	"math"

	apperrors "go-qr-scanner/internal/errors"
)

// PixelFormat identifies the layout of a native buffer.
type PixelFormat int

const (
	FormatUnknown PixelFormat = iota
	// FormatY8 is a single 8-bit luminance plane. It also covers the Y plane
	// of planar and semi-planar YUV layouts (NV21, NV12, I420, YUV_420_888).
	FormatY8
	FormatRGB24
	FormatRGBA32
	FormatBGRA32
	FormatARGB32
)

var formatNames = map[PixelFormat]string{
	FormatY8:     "y8",
	FormatRGB24:  "rgb24",
	FormatRGBA32: "rgba32",
	FormatBGRA32: "bgra32",
	FormatARGB32: "argb32",
}

func (f PixelFormat) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return "unknown"
}

// ParsePixelFormat maps a format name (as produced by String) to a PixelFormat.
// The YUV family names resolve to FormatY8.
func ParsePixelFormat(name string) PixelFormat {
	switch name {
	case "y8", "gray", "nv21", "nv12", "i420", "yuv420":
		return FormatY8
	case "rgb24", "rgb":
		return FormatRGB24
	case "rgba32", "rgba":
		return FormatRGBA32
	case "bgra32", "bgra":
		return FormatBGRA32
	case "argb32", "argb":
		return FormatARGB32
	}
	return FormatUnknown
}

// bytesPerPixel of the first plane.
func (f PixelFormat) bytesPerPixel() int {
	switch f {
	case FormatY8:
		return 1
	case FormatRGB24:
		return 3
	case FormatRGBA32, FormatBGRA32, FormatARGB32:
		return 4
	}
	return 0
}

// MaxFramePixels bounds the geometry a Buffer may declare.
const MaxFramePixels = 50_000_000

// Buffer is a frame as delivered by a capture pipeline. Data may be recycled
// by the producer as soon as Adapt returns.
type Buffer struct {
	Width  int
	Height int
	// Stride is the number of bytes per row; zero means tightly packed.
	Stride          int
	Format          PixelFormat
	Data            []byte
	RotationDegrees int
}

// Adapt copies the first plane of buf into a new luminance grid.
// It fails with a conversion error for empty dimensions, unknown formats and
// buffers shorter than their declared geometry.
func Adapt(buf Buffer) (*Luminance, error) {
	if buf.Width <= 0 || buf.Height <= 0 {
		return nil, apperrors.NewConversionError(
			fmt.Sprintf("invalid dimensions %dx%d", buf.Width, buf.Height), nil)
	}
	if buf.Width > MaxFramePixels/buf.Height {
		return nil, apperrors.NewConversionError(
			fmt.Sprintf("frame %dx%d exceeds %d pixels", buf.Width, buf.Height, MaxFramePixels), nil)
	}
	bpp := buf.Format.bytesPerPixel()
	if bpp == 0 {
		return nil, apperrors.NewConversionError(
			fmt.Sprintf("unsupported pixel format %d", int(buf.Format)), nil)
	}

	rowBytes := buf.Width * bpp
	stride := buf.Stride
	if stride == 0 {
		stride = rowBytes
	}
	if stride < rowBytes {
		return nil, apperrors.NewConversionError(
			fmt.Sprintf("stride %d shorter than row of %d bytes", stride, rowBytes), nil)
	}
	if buf.Height > 1 && stride > (math.MaxInt-rowBytes)/(buf.Height-1) {
		return nil, apperrors.NewConversionError(
			fmt.Sprintf("stride %d too large for %d rows", stride, buf.Height), nil)
	}
	if need := stride*(buf.Height-1) + rowBytes; len(buf.Data) < need {
		return nil, apperrors.NewConversionError(
			fmt.Sprintf("buffer holds %d bytes, geometry needs %d", len(buf.Data), need), nil)
	}

	samples := make([]byte, buf.Width*buf.Height)
	for y := 0; y < buf.Height; y++ {
		row := buf.Data[y*stride : y*stride+rowBytes]
		out := samples[y*buf.Width : (y+1)*buf.Width]
		if buf.Format == FormatY8 {
			copy(out, row)
			continue
		}
		for x := range out {
			p := row[x*bpp : x*bpp+bpp]
			switch buf.Format {
			case FormatRGB24, FormatRGBA32:
				out[x] = luma(p[0], p[1], p[2])
			case FormatBGRA32:
				out[x] = luma(p[2], p[1], p[0])
			case FormatARGB32:
				out[x] = luma(p[1], p[2], p[3])
			}
		}
	}

	return &Luminance{
		width:    buf.Width,
		height:   buf.Height,
		samples:  samples,
		rotation: buf.RotationDegrees,
	}, nil
}

// luma weights green twice, the same approximation ZXing's RGB source uses.
func luma(r, g, b byte) byte {
	return byte((uint32(r) + 2*uint32(g) + uint32(b)) / 4)
}

// FromImage converts a decoded image into a luminance grid.
func FromImage(img image.Image) (*Luminance, error) {
	if img == nil {
		return nil, apperrors.NewConversionError("nil image", nil)
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, apperrors.NewConversionError(
			fmt.Sprintf("invalid dimensions %dx%d", width, height), nil)
	}

	samples := make([]byte, width*height)
	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < height; y++ {
			off := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(samples[y*width:(y+1)*width], src.Pix[off:off+width])
		}
	case *image.YCbCr:
		for y := 0; y < height; y++ {
			off := src.YOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(samples[y*width:(y+1)*width], src.Y[off:off+width])
		}
	case *image.RGBA:
		for y := 0; y < height; y++ {
			off := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			row := src.Pix[off : off+width*4]
			for x := 0; x < width; x++ {
				v := luma(row[x*4], row[x*4+1], row[x*4+2])
				samples[y*width+x] = v + (0xff - row[x*4+3])
			}
		}
	case *image.NRGBA:
		for y := 0; y < height; y++ {
			off := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			row := src.Pix[off : off+width*4]
			for x := 0; x < width; x++ {
				r, g, b := row[x*4], row[x*4+1], row[x*4+2]
				samples[y*width+x] = composite(luma(r, g, b), row[x*4+3])
			}
		}
	default:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
				samples[y*width+x] = composite(luma(c.R, c.G, c.B), c.A)
			}
		}
	}

	return &Luminance{width: width, height: height, samples: samples}, nil
}

// composite blends a non-premultiplied sample over white so transparent
// backgrounds read as light modules.
func composite(v, alpha byte) byte {
	if alpha == 0xff {
		return v
	}
	return byte((uint32(v)*uint32(alpha) + 0xff*(0xff-uint32(alpha))) / 0xff)
}
