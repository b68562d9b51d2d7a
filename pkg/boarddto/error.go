package boarddto

// Error codes sent in ErrorPayload.Code.
const (
	CodeBadRequest    = "bad_request"
	CodeInvalidSquare = "invalid_square"
	CodeInvalidPiece  = "invalid_piece"
	CodeInvalidLevel  = "invalid_level"
	CodeInvalidTheme  = "invalid_theme"
	CodeNotFound      = "not_found"
	CodeClosed        = "closed"
	CodeInternal      = "internal"
)

type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "board service error"
}
