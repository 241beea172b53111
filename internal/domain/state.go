package domain

// SessionState is a point-in-time snapshot of the coordinator's session
// aggregate. The Messages slice is a copy; callers may not mutate the
// coordinator through it.
type SessionState struct {
	Messages    []Message `json:"messages"`
	Waiting     bool      `json:"waiting"`
	Typing      bool      `json:"typing"`
	LastError   string    `json:"lastError,omitempty"`
	Initialized bool      `json:"initialized"`
}
