package analyzer

// DropPolicy describes what happens to frames arriving while one is analyzed.
type DropPolicy string

// KeepLatestOnly overwrites the pending frame with the newest arrival.
const KeepLatestOnly DropPolicy = "keep_latest_only"

// ScanSessionConfig is fixed: one analysis at a time, newest frame wins.
type ScanSessionConfig struct {
	MaxConcurrentAnalyses int
	DropPolicy            DropPolicy
}

// SessionConfig is the only configuration a stream session runs with.
var SessionConfig = ScanSessionConfig{
	MaxConcurrentAnalyses: 1,
	DropPolicy:            KeepLatestOnly,
}

// DecodeOptions configures the QR decoder
type DecodeOptions struct {
	// TryHarder spends more time searching for finder patterns
	TryHarder bool
	// PureBarcode assumes the image holds only an unrotated symbol
	PureBarcode bool
	// CharacterSet overrides the symbol's declared encoding when set
	CharacterSet string
}

// DefaultOptions returns default decode options
func DefaultOptions() DecodeOptions {
	return DecodeOptions{
		TryHarder:   false,
		PureBarcode: false,
	}
}

// StreamOptions returns options for the camera stream, where the next frame
// is only milliseconds away and latency matters more than effort.
func StreamOptions() DecodeOptions {
	return DefaultOptions()
}

// StillOptions returns options for a user supplied image, which gets one
// thorough attempt.
func StillOptions() DecodeOptions {
	opts := DefaultOptions()
	opts.TryHarder = true
	return opts
}

// WithTryHarder toggles the exhaustive search
func (opts DecodeOptions) WithTryHarder(enabled bool) DecodeOptions {
	opts.TryHarder = enabled
	return opts
}

// WithPureBarcode marks input as a clean, unrotated symbol
func (opts DecodeOptions) WithPureBarcode() DecodeOptions {
	opts.PureBarcode = true
	return opts
}

// WithCharacterSet forces the text encoding
func (opts DecodeOptions) WithCharacterSet(charset string) DecodeOptions {
	opts.CharacterSet = charset
	return opts
}
