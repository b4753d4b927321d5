package model

// DetectResponse wraps a successful detection result.
type DetectResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Data    *FrameResult `json:"data,omitempty"`
}

// ErrorResponse is the envelope for failed requests.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// StreamAlert is pushed over the websocket after an unsafe verdict, as a
// second message so clients can surface it independently of the frame result.
type StreamAlert struct {
	Alert   bool   `json:"alert"`
	Message string `json:"message"`
}

// StreamError is sent over the websocket when a frame payload cannot be
// processed; the connection stays open.
type StreamError struct {
	Error string `json:"error"`
}
