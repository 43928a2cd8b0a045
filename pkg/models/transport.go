package models

// ScanURLRequest asks for a still scan of a remote image
type ScanURLRequest struct {
	URL          string `json:"url" binding:"required"`
	ExpectedText string `json:"expected_text,omitempty"`
	// EXIFOrientation overrides the tag read from the file
	EXIFOrientation *int `json:"exif_orientation,omitempty" binding:"omitempty,min=0,max=8"`
}

// FrameParams describes a raw camera frame posted as the request body
type FrameParams struct {
	Width    int    `form:"width" binding:"required,min=1,max=16384"`
	Height   int    `form:"height" binding:"required,min=1,max=16384"`
	Stride   int    `form:"stride" binding:"omitempty,min=1,max=65536"`
	Format   string `form:"format"`
	Rotation int    `form:"rotation"`
}

// FrameResponse reports whether a frame was queued for analysis
type FrameResponse struct {
	Accepted bool   `json:"accepted"`
	State    string `json:"state"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
