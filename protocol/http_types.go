package protocol

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	httperrors "github.com/nczempin/httpc-oneshot/errors"
)

// HttpHeader represents an HTTP header key-value pair
type HttpHeader struct {
	Key   string
	Value string
}

// Headers keeps header fields in wire order.
type Headers []HttpHeader

// Get returns the first value for key, compared case-insensitively.
func (h Headers) Get(key string) string {
	for _, f := range h {
		if strings.EqualFold(f.Key, key) {
			return f.Value
		}
	}
	return ""
}

// Values returns every value for key in wire order.
func (h Headers) Values(key string) []string {
	var out []string
	for _, f := range h {
		if strings.EqualFold(f.Key, key) {
			out = append(out, f.Value)
		}
	}
	return out
}

// HttpRequest is one request: absolute target, a Host header and no body.
type HttpRequest struct {
	Verb    WireVerb
	Target  *url.URL
	Headers Headers
}

// NewRequest builds the request for verb and target. The target must be an
// absolute http URL; the Host header is its authority.
func NewRequest(verb WireVerb, target *url.URL) (*HttpRequest, error) {
	if verb.IsZero() {
		return nil, httperrors.New(httperrors.ErrorRequestBuild, "missing method", nil)
	}
	if target == nil || !target.IsAbs() || target.Host == "" {
		return nil, httperrors.New(httperrors.ErrorRequestBuild, "request target must be an absolute URI", nil)
	}
	if !validHeaderValue(target.Host) {
		return nil, httperrors.New(httperrors.ErrorRequestBuild, fmt.Sprintf("invalid Host header value %q", target.Host), nil)
	}

	t := *target
	// fragments never go on the wire
	t.Fragment, t.RawFragment = "", ""
	if t.Path == "" && t.RawPath == "" && t.Opaque == "" {
		t.Path = "/"
	}
	return &HttpRequest{
		Verb:    verb,
		Target:  &t,
		Headers: Headers{{Key: "Host", Value: target.Host}},
	}, nil
}

// RequestLine is the first line of the request without CRLF.
func (r *HttpRequest) RequestLine() string {
	return fmt.Sprintf("%s %s HTTP/1.1", r.Verb, r.Target.String())
}

// validHeaderValue rejects CR, LF, NUL and other controls except HTAB.
func validHeaderValue(v string) bool {
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == 0x7f || (c < 0x20 && c != '\t') {
			return false
		}
	}
	return true
}

// Frame is one unit of a streamed body: a data chunk or trailers.
type Frame struct {
	data     []byte
	trailers Headers
}

// NewDataFrame wraps a body chunk.
func NewDataFrame(b []byte) *Frame { return &Frame{data: b} }

// NewTrailersFrame wraps trailer fields.
func NewTrailersFrame(h Headers) *Frame { return &Frame{trailers: h} }

// Data returns the chunk carried by a data frame.
func (f *Frame) Data() ([]byte, bool) {
	if f == nil || f.trailers != nil {
		return nil, false
	}
	return f.data, true
}

// Trailers returns the fields carried by a trailers frame.
func (f *Frame) Trailers() (Headers, bool) {
	if f == nil || f.trailers == nil {
		return nil, false
	}
	return f.trailers, true
}

type frameResult struct {
	frame *Frame
	err   error
}

// HttpResponse is the response head plus a forward-only frame sequence.
type HttpResponse struct {
	Proto      string
	StatusCode int
	Reason     string
	Headers    Headers

	frames    <-chan frameResult
	abandon   chan struct{}
	closeOnce sync.Once
}

// Status is "<code> <reason>", e.g. "200 OK".
func (r *HttpResponse) Status() string {
	if r.Reason == "" {
		return fmt.Sprint(r.StatusCode)
	}
	return fmt.Sprintf("%d %s", r.StatusCode, r.Reason)
}

// Frame waits for the next body frame. It returns io.EOF once the body is
// complete; frames arrive in wire order and the sequence cannot be restarted.
func (r *HttpResponse) Frame(ctx context.Context) (*Frame, error) {
	if r.frames == nil {
		return nil, io.EOF
	}
	select {
	case fr, ok := <-r.frames:
		if !ok {
			return nil, io.EOF
		}
		return fr.frame, fr.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close tells the connection task that no more frames will be read.
func (r *HttpResponse) Close() error {
	r.closeOnce.Do(func() {
		if r.abandon != nil {
			close(r.abandon)
		}
	})
	return nil
}
