package inference

import "fmt"

// Kind classifies a failed inference call.
type Kind string

const (
	KindInvalidRequest Kind = "invalid_request"
	KindUnauthorized   Kind = "unauthorized"
	KindRateLimited    Kind = "rate_limited"
	KindRemote         Kind = "remote_error"
	KindEmptyResponse  Kind = "empty_response"
	KindTransport      Kind = "transport"
)

// Error is returned by Client.Analyze for every failure. Message is meant to be
// shown to the user as is.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// statusError maps a non-success status to its kind and user-facing message.
func statusError(status int, message string) *Error {
	e := &Error{StatusCode: status}
	switch status {
	case 400:
		e.Kind = KindInvalidRequest
		e.Message = "Invalid request: " + message
	case 403:
		e.Kind = KindUnauthorized
		e.Message = "Unauthorized: " + message + ". Please check your Gemini API key."
	case 429:
		e.Kind = KindRateLimited
		e.Message = "Rate limit exceeded: " + message + ". Wait a moment and try again, or check your API quota at aistudio.google.com."
	default:
		e.Kind = KindRemote
		e.Message = fmt.Sprintf("%d: %s", status, message)
	}
	return e
}
