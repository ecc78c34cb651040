// Package apierror turns whatever a failed API call produced into a single
// display-ready shape.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// NoStatus is the Status of a DisplayError built without a transport response.
const NoStatus = -1

// DisplayError is the uniform error surfaced to callers of the resource layer.
// DefaultMessage is always set; Message may be empty.
type DisplayError struct {
	Status         int             `json:"status"`
	StatusText     string          `json:"statusText"`
	Message        string          `json:"message"`
	Errors         json.RawMessage `json:"errors,omitempty"`
	DefaultMessage string          `json:"defaultMessage"`
}

// Error implements error.
func (e *DisplayError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message != "" {
		return e.Message
	}
	return e.DefaultMessage
}

// Display returns the text a UI should show: the specific message when there
// is one, otherwise the call site's default.
func (e *DisplayError) Display() string { return e.Error() }

// Response is the transport-level view of a failed HTTP exchange.
type Response struct {
	Status     int
	StatusText string
	Header     http.Header
	Body       []byte
	URL        string
}

// ResponseError is returned by the API transport for non-2xx answers.
type ResponseError struct {
	Method   string
	URL      string
	Response *Response
}

// Error implements error.
func (e *ResponseError) Error() string {
	if e.Response == nil {
		return fmt.Sprintf("%s %s: no response", e.Method, e.URL)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Response.Status, e.Response.StatusText)
}

// Normalize maps any failure value into a DisplayError. It never panics.
//
// Values carrying a transport response contribute status, status text and the
// body's message/msg/detail and errors fields. A bare *http.Response
// contributes its status and request URL. Anything else is stringified.
func Normalize(err any, defaultMessage string) *DisplayError {
	out := &DisplayError{Status: NoStatus, DefaultMessage: defaultMessage}

	switch v := err.(type) {
	case nil:
		return out
	case *DisplayError:
		if v == nil {
			return out
		}
		cp := *v
		if cp.DefaultMessage == "" {
			cp.DefaultMessage = defaultMessage
		}
		return &cp
	case *http.Response:
		if v == nil {
			return out
		}
		out.Status = v.StatusCode
		out.StatusText = statusText(v.StatusCode, v.Status)
		if v.Request != nil && v.Request.URL != nil {
			out.Message = v.Request.URL.String()
		}
		return out
	case error:
		var de *DisplayError
		if errors.As(v, &de) && de != nil {
			return Normalize(de, defaultMessage)
		}
		var re *ResponseError
		if errors.As(v, &re) && re.Response != nil {
			fromResponse(out, re.Response, defaultMessage)
			return out
		}
		out.Message = v.Error()
		return out
	case string:
		out.Message = v
		return out
	default:
		out.Message = fmt.Sprint(v)
		return out
	}
}

// LegacyMessage returns the raw "msg" field of a response body, the shape
// some older endpoints still answer with. It returns "" when absent.
func LegacyMessage(err error) string {
	var re *ResponseError
	if !errors.As(err, &re) || re.Response == nil {
		return ""
	}
	if !gjson.ValidBytes(re.Response.Body) {
		return ""
	}
	return gjson.GetBytes(re.Response.Body, "msg").String()
}

func fromResponse(out *DisplayError, resp *Response, defaultMessage string) {
	out.Status = resp.Status
	out.StatusText = statusText(resp.Status, resp.StatusText)
	out.Message = defaultMessage

	body := resp.Body
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return
	}
	for _, field := range []string{"message", "msg", "detail"} {
		if r := gjson.GetBytes(body, field); r.Exists() && r.String() != "" {
			out.Message = r.String()
			break
		}
	}
	if r := gjson.GetBytes(body, "errors"); r.Exists() && r.Type != gjson.Null {
		out.Errors = json.RawMessage(r.Raw)
	}
}

// statusText prefers the transport's text, trimming a leading "404 " style code.
func statusText(code int, text string) string {
	prefix := fmt.Sprintf("%d ", code)
	text = strings.TrimPrefix(text, prefix)
	if text == "" {
		return http.StatusText(code)
	}
	return text
}
