package loader

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	apperrors "go-qr-scanner/internal/errors"

	"golang.org/x/image/bmp"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 16), uint8(y * 32), 0, 255})
		}
	}
	return img
}

func encodeJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(), nil); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	return buf.Bytes()
}

// withEXIFOrientation splices an APP1 segment holding a single orientation
// entry directly after the JPEG SOI marker.
func withEXIFOrientation(t *testing.T, data []byte, orientation uint16) []byte {
	t.Helper()
	var tiff bytes.Buffer
	tiff.WriteString("MM")
	binary.Write(&tiff, binary.BigEndian, uint16(42))
	binary.Write(&tiff, binary.BigEndian, uint32(8))
	binary.Write(&tiff, binary.BigEndian, uint16(1))      // entry count
	binary.Write(&tiff, binary.BigEndian, uint16(0x0112)) // Orientation
	binary.Write(&tiff, binary.BigEndian, uint16(3))      // SHORT
	binary.Write(&tiff, binary.BigEndian, uint32(1))
	binary.Write(&tiff, binary.BigEndian, orientation)
	binary.Write(&tiff, binary.BigEndian, uint16(0))
	binary.Write(&tiff, binary.BigEndian, uint32(0)) // no next IFD

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)
	var out bytes.Buffer
	out.Write(data[:2])
	out.Write([]byte{0xFF, 0xE1})
	binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(data[2:])
	return out.Bytes()
}

func TestDecode_Formats(t *testing.T) {
	var pngBuf, bmpBuf bytes.Buffer
	if err := png.Encode(&pngBuf, testImage()); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	if err := bmp.Encode(&bmpBuf, testImage()); err != nil {
		t.Fatalf("bmp encode: %v", err)
	}

	tests := []struct {
		name   string
		data   []byte
		format string
	}{
		{"png", pngBuf.Bytes(), "png"},
		{"jpeg", encodeJPEG(t), "jpeg"},
		{"bmp", bmpBuf.Bytes(), "bmp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, format, err := Decode(tt.data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if format != tt.format {
				t.Errorf("format = %q, want %q", format, tt.format)
			}
			if b := img.Bounds(); b.Dx() != 16 || b.Dy() != 8 {
				t.Errorf("bounds = %v, want 16x8", b)
			}
		})
	}
}

func TestDecode_Failures(t *testing.T) {
	pngBuf := new(bytes.Buffer)
	if err := png.Encode(pngBuf, testImage()); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	truncated := pngBuf.Bytes()[:pngBuf.Len()/2]

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("definitely not an image")},
		{"truncated png", truncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.data)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !apperrors.IsType(err, apperrors.ErrorTypeLoadFailed) {
				t.Errorf("expected load_failed error, got %v", err)
			}
		})
	}
}

func TestEXIFOrientation(t *testing.T) {
	plain := encodeJPEG(t)

	tests := []struct {
		name string
		data []byte
		want int
	}{
		{"no metadata", plain, 1},
		{"not an image", []byte("garbage"), 1},
		{"rotate 90", withEXIFOrientation(t, plain, 6), 6},
		{"rotate 180", withEXIFOrientation(t, plain, 3), 3},
		{"out of range", withEXIFOrientation(t, plain, 42), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EXIFOrientation(tt.data); got != tt.want {
				t.Errorf("EXIFOrientation() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEXIFOrientation_DecodableImage(t *testing.T) {
	data := withEXIFOrientation(t, encodeJPEG(t), 8)
	if _, _, err := Decode(data); err != nil {
		t.Fatalf("Decode() with EXIF segment error = %v", err)
	}
	if got := EXIFOrientation(data); got != 8 {
		t.Errorf("EXIFOrientation() = %d, want 8", got)
	}
}
