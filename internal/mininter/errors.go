package mininter

// Error kinds classifying why a delivery failed.
const (
	// ErrorKindClient marks 4xx rejections; retrying cannot help.
	ErrorKindClient = "CLIENT_ERROR"
	// ErrorKindServer marks 5xx failures, retried up to the attempt limit.
	ErrorKindServer = "SERVER_ERROR"
	// ErrorKindConnection marks transport-level failures (DNS, refused, timeout).
	ErrorKindConnection = "CONNECTION_ERROR"
	// ErrorKindUnexpected marks everything else (marshaling, odd status codes).
	ErrorKindUnexpected = "UNEXPECTED_ERROR"
)

// SendResult is the outcome of delivering one record.
type SendResult struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code,omitempty"`
	Body       string `json:"body,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Message    string `json:"message,omitempty"`
}

// BatchResult aggregates per-record outcomes for one delivery pass. Success
// requires every record to have been accepted.
type BatchResult struct {
	Success    bool         `json:"success"`
	Total      int          `json:"total"`
	Successful int          `json:"successful"`
	Failed     int          `json:"failed"`
	Results    []SendResult `json:"results,omitempty"`
	FirstError *SendResult  `json:"first_error,omitempty"`
}
