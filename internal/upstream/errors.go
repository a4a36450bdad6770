package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnavailable = errors.New("upstream: unavailable")
	ErrTimeout     = errors.New("upstream: timeout")
	// ErrRejected is a 4xx answer from the service.
	ErrRejected    = errors.New("upstream: rejected")
	ErrBadResponse = errors.New("upstream: malformed response")
)

// Error describes a failed call to an external service. Kind is one of the
// sentinel errors above; Body holds the response body when one was received.
type Error struct {
	Service    string
	Kind       error
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s: status %d: %s", e.Service, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Service, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Service, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Service, e.Kind)
	}
}

func (e *Error) Unwrap() []error {
	out := []error{e.Kind}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Message flattens err into the plain text stored on a failed call record:
// the upstream body when there is one (a JSON string body is unquoted), else
// the error text.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var ue *Error
	if errors.As(err, &ue) && ue.Body != "" {
		var s string
		if json.Unmarshal([]byte(ue.Body), &s) == nil {
			return s
		}
		return ue.Body
	}
	return err.Error()
}

// Detail is the short message returned to API callers: the body's "detail"
// or "error" field when present, else Message.
func Detail(err error) string {
	var ue *Error
	if errors.As(err, &ue) && ue.Body != "" {
		var body struct {
			Detail any    `json:"detail"`
			Error  string `json:"error"`
		}
		if json.Unmarshal([]byte(ue.Body), &body) == nil {
			if s, ok := body.Detail.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
			if body.Detail != nil {
				if b, err := json.Marshal(body.Detail); err == nil {
					return string(b)
				}
			}
			if body.Error != "" {
				return body.Error
			}
		}
	}
	return Message(err)
}
