package analyzer

import (
	"errors"
	"fmt"

	apperrors "go-qr-scanner/internal/errors"
	"go-qr-scanner/internal/frame"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// qrDecoder implements QRDecoder on top of gozxing
type qrDecoder struct {
	opts DecodeOptions
}

// NewQRDecoder creates a new QR decoder
func NewQRDecoder(opts DecodeOptions) QRDecoder {
	return &qrDecoder{opts: opts}
}

// Decode binarizes the grid with locally adaptive thresholds, locates the
// finder patterns and reads the symbol.
func (qd *qrDecoder) Decode(f *frame.Luminance) (outcome ScanOutcome) {
	if f == nil {
		return Failed(apperrors.NewConversionError("nil frame", nil))
	}

	defer func() {
		if r := recover(); r != nil {
			outcome = Failed(apperrors.NewDecodeError("decoder panicked", fmt.Errorf("%v", r)))
		}
	}()

	// The grid is already single channel, so it is handed over as a Y plane.
	source, err := gozxing.NewPlanarYUVLuminanceSource(
		f.Samples(), f.Width(), f.Height(), 0, 0, f.Width(), f.Height(), false)
	if err != nil {
		return Failed(apperrors.NewConversionError("cannot build luminance source", err))
	}

	bmp, err := gozxing.NewBinaryBitmap(gozxing.NewHybridBinarizer(source))
	if err != nil {
		return Failed(apperrors.NewConversionError("cannot binarize frame", err))
	}

	// Readers keep per-call state, so each decode gets its own.
	result, err := qrcode.NewQRCodeReader().Decode(bmp, qd.hints())
	if err != nil {
		return classify(err)
	}
	return Decoded(result.GetText())
}

// hints builds the gozxing hint map for the configured options
func (qd *qrDecoder) hints() map[gozxing.DecodeHintType]interface{} {
	hints := make(map[gozxing.DecodeHintType]interface{})
	if qd.opts.TryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}
	if qd.opts.PureBarcode {
		hints[gozxing.DecodeHintType_PURE_BARCODE] = true
	}
	if qd.opts.CharacterSet != "" {
		hints[gozxing.DecodeHintType_CHARACTER_SET] = qd.opts.CharacterSet
	}
	if len(hints) == 0 {
		return nil
	}
	return hints
}

// classify maps reader failures onto the outcome taxonomy. Missing finder
// patterns are the common case and are not an error.
func classify(err error) ScanOutcome {
	var notFound gozxing.NotFoundException
	if errors.As(err, &notFound) {
		return NotFound()
	}

	var checksum gozxing.ChecksumException
	if errors.As(err, &checksum) {
		return Failed(apperrors.NewDecodeError("error correction failed", err))
	}

	var format gozxing.FormatException
	if errors.As(err, &format) {
		return Failed(apperrors.NewDecodeError("malformed or unsupported symbol", err))
	}

	return Failed(apperrors.NewDecodeError("symbol could not be decoded", err))
}
