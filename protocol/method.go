package protocol

import (
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	httperrors "github.com/nczempin/httpc-oneshot/errors"
)

// Method is the closed set of request methods the client accepts.
type Method int

const (
	MethodGet Method = iota
	MethodPost
	MethodDelete
	MethodPatch
)

func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodPost:
		return "POST"
	case MethodDelete:
		return "DELETE"
	case MethodPatch:
		return "PATCH"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod maps a caller token onto a Method. Matching is exact: no case
// folding, no trimming. An unknown token is logged and rejected.
func ParseMethod(token string, logger log.Logger) (Method, error) {
	switch token {
	case "GET":
		return MethodGet, nil
	case "POST":
		return MethodPost, nil
	case "DELETE":
		return MethodDelete, nil
	case "PATCH":
		return MethodPatch, nil
	}
	if logger != nil {
		level.Error(logger).Log("msg", "invalid or unsupported method", "method", token)
	}
	return 0, httperrors.New(httperrors.ErrorMethodParse, fmt.Sprintf("invalid or unsupported method %q", token), nil)
}

// WireVerb converts m into the engine's verb.
func (m Method) WireVerb() (WireVerb, error) {
	return NewWireVerb(m.String())
}

// WireVerb is a validated method token as written on the request line.
type WireVerb struct {
	token string
}

// NewWireVerb validates token against the RFC 9110 token grammar.
func NewWireVerb(token string) (WireVerb, error) {
	if !isToken(token) {
		return WireVerb{}, httperrors.New(httperrors.ErrorRequestBuild, fmt.Sprintf("invalid method token %q", token), nil)
	}
	return WireVerb{token: token}, nil
}

func (v WireVerb) String() string { return v.token }

// IsZero reports whether v was never constructed.
func (v WireVerb) IsZero() bool { return v.token == "" }

func isToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isTokenChar(s[i]) {
			return false
		}
	}
	return true
}

func isTokenChar(c byte) bool {
	if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}
