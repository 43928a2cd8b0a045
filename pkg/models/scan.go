package models

import "time"

// ScanResult is the outcome of a single still image scan
type ScanResult struct {
	ID                string    `json:"id"`
	Source            string    `json:"source"`
	Timestamp         time.Time `json:"timestamp"`
	ProcessingTimeSec float64   `json:"processing_time_sec"`

	// Outcome is one of decoded, not_found or error
	Outcome   string `json:"outcome"`
	Text      string `json:"text,omitempty"`
	Message   string `json:"message"`
	ErrorType string `json:"error_type,omitempty"`

	EXIFOrientation int `json:"exif_orientation"`

	Verification *Verification `json:"verification,omitempty"`
}

// Verification compares the decoded payload with an expected one
type Verification struct {
	ExpectedText string  `json:"expected_text"`
	Matched      bool    `json:"matched"`
	Distance     int     `json:"distance"`
	MatchScore   float64 `json:"match_score"`
}

// StreamStatus describes a registered stream session
type StreamStatus struct {
	ID        string        `json:"id"`
	State     string        `json:"state"`
	CreatedAt time.Time     `json:"created_at"`
	Result    *StreamResult `json:"result,omitempty"`
	Stats     StreamStats   `json:"stats"`
}

// StreamResult is the payload that completed a stream session
type StreamResult struct {
	Text      string    `json:"text"`
	DecodedAt time.Time `json:"decoded_at"`
}

// StreamStats mirrors the session frame counters
type StreamStats struct {
	Offered  uint64 `json:"offered"`
	Rejected uint64 `json:"rejected"`
	Dropped  uint64 `json:"dropped"`
	Analyzed uint64 `json:"analyzed"`
	Decoded  uint64 `json:"decoded"`
}
