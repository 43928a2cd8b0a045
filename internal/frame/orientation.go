package frame

import (
	"fmt"
	"image"

	apperrors "go-qr-scanner/internal/errors"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Orientation is the rotation that has to be undone before decoding.
type Orientation int

const (
	Normal Orientation = iota
	Rotate90
	Rotate180
	Rotate270
)

// EXIF orientation tag values that carry a pure rotation.
const (
	EXIFNormal    = 1
	EXIFRotate180 = 3
	EXIFRotate90  = 6
	EXIFRotate270 = 8
)

func (o Orientation) String() string {
	switch o {
	case Normal:
		return "normal"
	case Rotate90:
		return "rotate_90"
	case Rotate180:
		return "rotate_180"
	case Rotate270:
		return "rotate_270"
	}
	return fmt.Sprintf("orientation(%d)", int(o))
}

// Degrees returns the clockwise rotation in degrees.
func (o Orientation) Degrees() int {
	return int(o) * 90
}

// OrientationFromDegrees maps a rotation hint to an Orientation. Only whole
// quarter turns are accepted; other values return an unsupported rotation
// error together with Normal so callers can fall back to the unrotated frame.
func OrientationFromDegrees(degrees int) (Orientation, error) {
	if degrees%90 != 0 {
		return Normal, apperrors.NewUnsupportedRotationError(
			fmt.Sprintf("rotation of %d degrees is not a multiple of 90", degrees), nil)
	}
	turns := (degrees / 90) % 4
	if turns < 0 {
		turns += 4
	}
	return Orientation(turns), nil
}

// OrientationFromEXIF maps an EXIF orientation tag to an Orientation.
// Mirrored and unknown tags are treated as Normal.
func OrientationFromEXIF(tag int) Orientation {
	switch tag {
	case EXIFRotate90:
		return Rotate90
	case EXIFRotate180:
		return Rotate180
	case EXIFRotate270:
		return Rotate270
	}
	return Normal
}

// Normalize remaps the grid for the given orientation. Normal returns f
// itself; every other orientation returns a new grid.
func Normalize(f *Luminance, o Orientation) *Luminance {
	w, h := f.width, f.height
	switch o {
	case Rotate90:
		out := make([]byte, len(f.samples))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				// (x, y) -> (y, w-1-x) in a h-wide grid
				out[(w-1-x)*h+y] = f.samples[y*w+x]
			}
		}
		return &Luminance{width: h, height: w, samples: out, rotation: f.rotation}
	case Rotate180:
		out := make([]byte, len(f.samples))
		n := len(out)
		for i, v := range f.samples {
			out[n-1-i] = v
		}
		return &Luminance{width: w, height: h, samples: out, rotation: f.rotation}
	case Rotate270:
		out := make([]byte, len(f.samples))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				// (x, y) -> (h-1-y, x) in a h-wide grid
				out[x*h+(h-1-y)] = f.samples[y*w+x]
			}
		}
		return &Luminance{width: h, height: w, samples: out, rotation: f.rotation}
	}
	return f
}

// RotateImage turns the visual bitmap clockwise by o, the way an EXIF aware
// viewer displays it. Normal returns img unchanged.
func RotateImage(img image.Image, o Orientation) image.Image {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	minX, minY := float64(b.Min.X), float64(b.Min.Y)

	// NRGBA keeps alpha separate so FromImage can composite it over white.
	var dst *image.NRGBA
	var s2d f64.Aff3
	switch o {
	case Rotate90:
		dst = image.NewNRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
		s2d = f64.Aff3{0, -1, h + minY, 1, 0, -minX}
	case Rotate180:
		dst = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		s2d = f64.Aff3{-1, 0, w + minX, 0, -1, h + minY}
	case Rotate270:
		dst = image.NewNRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
		s2d = f64.Aff3{0, 1, -minY, -1, 0, w + minX}
	default:
		return img
	}

	draw.NearestNeighbor.Transform(dst, s2d, img, b, draw.Src, nil)
	return dst
}
