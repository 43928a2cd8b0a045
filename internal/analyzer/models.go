package analyzer

// SessionState is the lifecycle state of a StreamScanSession.
type SessionState int32

const (
	StateIdle SessionState = iota
	StateAnalyzing
	StateCompleted
	StateStopped
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAnalyzing:
		return "analyzing"
	case StateCompleted:
		return "completed"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// SessionStats holds per-session frame counters
type SessionStats struct {
	Offered  uint64 `json:"offered"`
	Rejected uint64 `json:"rejected"`
	Dropped  uint64 `json:"dropped"`
	Analyzed uint64 `json:"analyzed"`
	Decoded  uint64 `json:"decoded"`
}
