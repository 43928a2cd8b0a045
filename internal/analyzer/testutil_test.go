package analyzer

import (
	"bytes"
	"image"
	"image/png"
	"testing"
	"time"

	"go-qr-scanner/internal/frame"

	"github.com/skip2/go-qrcode"
)

// qrImage renders text as a QR symbol with a quiet zone.
func qrImage(t *testing.T, text string, size int) image.Image {
	t.Helper()
	code, err := qrcode.New(text, qrcode.Medium)
	if err != nil {
		t.Fatalf("qrcode.New(%q): %v", text, err)
	}
	return code.Image(size)
}

func qrLuminance(t *testing.T, text string, size int) *frame.Luminance {
	t.Helper()
	lum, err := frame.FromImage(qrImage(t, text, size))
	if err != nil {
		t.Fatalf("FromImage: %v", err)
	}
	return lum
}

// qrBuffer renders text into a Y8 camera buffer.
func qrBuffer(t *testing.T, text string, size, rotation int) frame.Buffer {
	t.Helper()
	lum := qrLuminance(t, text, size)
	data := make([]byte, len(lum.Samples()))
	copy(data, lum.Samples())
	return frame.Buffer{
		Width:           lum.Width(),
		Height:          lum.Height(),
		Stride:          lum.Width(),
		Format:          frame.FormatY8,
		Data:            data,
		RotationDegrees: rotation,
	}
}

// markedBuffer is a tiny Y8 frame whose first sample identifies it.
func markedBuffer(mark byte) frame.Buffer {
	data := []byte{mark, 0, 0, 0}
	return frame.Buffer{Width: 2, Height: 2, Stride: 2, Format: frame.FormatY8, Data: data}
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
