package protocol

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	httperrors "github.com/nczempin/httpc-oneshot/errors"
)

const (
	defaultMaxLine  = 8 << 10
	bodyReadSize    = 8 << 10
	maxChunkSize    = 16 << 20
	maxHeaderFields = 256
	// same bound bufio uses for a reader that keeps returning (0, nil)
	maxEmptyReads = 100
)

var errLineTooLong = stderrors.New("line too long")

// framing says how the response body is delimited on the wire.
type framing int

const (
	framingNone framing = iota
	framingLength
	framingChunked
	framingClose
)

func (f framing) String() string {
	switch f {
	case framingNone:
		return "none"
	case framingLength:
		return "content-length"
	case framingChunked:
		return "chunked"
	default:
		return "close-delimited"
	}
}

// readLine reads up to LF, dropping CRs. limit caps the line length.
func readLine(br *bufio.Reader, limit int) (string, error) {
	var sb strings.Builder
	for {
		b, err := br.ReadByte()
		if err != nil {
			return "", err
		}
		if b == '\n' {
			break
		}
		if b != '\r' {
			sb.WriteByte(b)
		}
		if limit > 0 && sb.Len() > limit {
			return "", errLineTooLong
		}
	}
	return sb.String(), nil
}

// isEOF reports whether err means the peer closed its side.
func isEOF(err error) bool {
	return stderrors.Is(err, io.EOF) || stderrors.Is(err, io.ErrUnexpectedEOF)
}

// wireError maps a raw read failure onto the module's error kinds. Errors
// that are already classified pass through.
func wireError(err error, pe httperrors.ProtocolError, msg string) error {
	var he *httperrors.HttpError
	if stderrors.As(err, &he) && !isEOF(err) {
		return err
	}
	if isEOF(err) {
		return &httperrors.HttpError{
			Type:          httperrors.ErrorTransport,
			ProtocolErr:   httperrors.ProtocolErrorIncompleteResponse,
			Message:       msg + ": connection closed",
			UnderlyingErr: err,
		}
	}
	return &httperrors.HttpError{
		Type:          httperrors.ErrorTransport,
		ProtocolErr:   pe,
		Message:       msg,
		UnderlyingErr: err,
	}
}

func readStatusLine(br *bufio.Reader, limit int) (proto string, code int, reason string, err error) {
	line, err := readLine(br, limit)
	if err != nil {
		return "", 0, "", wireError(err, httperrors.ProtocolErrorInvalidStatusLine, "reading status line")
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return "", 0, "", httperrors.NewProtocolError(httperrors.ProtocolErrorInvalidStatusLine,
			fmt.Sprintf("malformed status line %q", line))
	}
	proto = parts[0]
	if !strings.HasPrefix(proto, "HTTP/1.") {
		return "", 0, "", httperrors.NewProtocolError(httperrors.ProtocolErrorInvalidStatusLine,
			fmt.Sprintf("unsupported protocol %q", proto))
	}
	if len(parts[1]) != 3 {
		return "", 0, "", httperrors.NewProtocolError(httperrors.ProtocolErrorInvalidStatusLine,
			fmt.Sprintf("invalid status code %q", parts[1]))
	}
	code, err = strconv.Atoi(parts[1])
	if err != nil || code < 100 {
		return "", 0, "", httperrors.NewProtocolError(httperrors.ProtocolErrorInvalidStatusLine,
			fmt.Sprintf("invalid status code %q", parts[1]))
	}
	if len(parts) == 3 {
		reason = parts[2]
	}
	return proto, code, reason, nil
}

// readHeaders reads header fields up to the blank line. Keys are
// canonicalized; values keep their wire order.
func readHeaders(br *bufio.Reader, limit int) (Headers, error) {
	var h Headers
	for {
		line, err := readLine(br, limit)
		if err != nil {
			return nil, wireError(err, httperrors.ProtocolErrorInvalidHeader, "reading headers")
		}
		if line == "" {
			return h, nil
		}
		if line[0] == ' ' || line[0] == '\t' {
			return nil, httperrors.NewProtocolError(httperrors.ProtocolErrorInvalidHeader, "obsolete line folding")
		}
		i := strings.IndexByte(line, ':')
		if i <= 0 || !isToken(line[:i]) {
			return nil, httperrors.NewProtocolError(httperrors.ProtocolErrorInvalidHeader,
				fmt.Sprintf("malformed header line %q", line))
		}
		if len(h) >= maxHeaderFields {
			return nil, httperrors.NewProtocolError(httperrors.ProtocolErrorInvalidHeader, "too many header fields")
		}
		h = append(h, HttpHeader{
			Key:   canonicalKey(line[:i]),
			Value: strings.TrimSpace(line[i+1:]),
		})
	}
}

func canonicalKey(s string) string {
	b := []byte(strings.ToLower(s))
	upper := true
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			if upper {
				b[i] = c - 'a' + 'A'
			}
			upper = false
		} else {
			upper = c == '-'
		}
	}
	return string(b)
}

// bodyFraming picks the body delimiter for a response to verb. length is only
// meaningful for framingLength.
func bodyFraming(verb string, code int, h Headers) (framing, int64, error) {
	if verb == "HEAD" || (code >= 100 && code < 200) || code == 204 || code == 304 {
		return framingNone, 0, nil
	}
	if te := h.Values("Transfer-Encoding"); len(te) > 0 {
		codings := strings.Split(te[len(te)-1], ",")
		if strings.EqualFold(strings.TrimSpace(codings[len(codings)-1]), "chunked") {
			return framingChunked, 0, nil
		}
		return framingClose, 0, nil
	}
	cl := h.Values("Content-Length")
	if len(cl) == 0 {
		return framingClose, 0, nil
	}
	var n int64 = -1
	for _, v := range cl {
		for _, part := range strings.Split(v, ",") {
			m, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil || m < 0 {
				return 0, 0, httperrors.NewProtocolError(httperrors.ProtocolErrorInvalidContentLength,
					fmt.Sprintf("invalid Content-Length %q", v))
			}
			if n >= 0 && m != n {
				return 0, 0, httperrors.NewProtocolError(httperrors.ProtocolErrorInvalidContentLength,
					"conflicting Content-Length values")
			}
			n = m
		}
	}
	if n == 0 {
		return framingNone, 0, nil
	}
	return framingLength, n, nil
}

func readChunkSize(br *bufio.Reader, limit int) (int64, error) {
	line, err := readLine(br, limit)
	if err != nil {
		return 0, wireError(err, httperrors.ProtocolErrorInvalidChunkedEncoding, "reading chunk size")
	}
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	n, err := strconv.ParseInt(line, 16, 64)
	if err != nil || n < 0 {
		return 0, httperrors.NewProtocolError(httperrors.ProtocolErrorInvalidChunkedEncoding,
			fmt.Sprintf("invalid chunk size %q", line))
	}
	if n > maxChunkSize {
		return 0, httperrors.NewProtocolError(httperrors.ProtocolErrorInvalidChunkedEncoding,
			fmt.Sprintf("chunk of %d bytes exceeds limit", n))
	}
	return n, nil
}

func expectCRLF(br *bufio.Reader) error {
	b1, err := br.ReadByte()
	if err != nil {
		return wireError(err, httperrors.ProtocolErrorInvalidChunkedEncoding, "reading chunk terminator")
	}
	b2, err := br.ReadByte()
	if err != nil {
		return wireError(err, httperrors.ProtocolErrorInvalidChunkedEncoding, "reading chunk terminator")
	}
	if b1 != '\r' || b2 != '\n' {
		return httperrors.NewProtocolError(httperrors.ProtocolErrorInvalidChunkedEncoding,
			fmt.Sprintf("expected CRLF after chunk, got %q%q", b1, b2))
	}
	return nil
}

// bodyReader yields the body of one response as frames.
type bodyReader struct {
	br      *bufio.Reader
	mode    framing
	remain  int64
	maxLine int
	done    bool
}

// next returns the next frame, or io.EOF once the body is complete.
func (b *bodyReader) next() (*Frame, error) {
	if b.done {
		return nil, io.EOF
	}
	switch b.mode {
	case framingLength:
		return b.nextLength()
	case framingChunked:
		return b.nextChunk()
	case framingClose:
		return b.nextUntilClose()
	default:
		b.done = true
		return nil, io.EOF
	}
}

// read returns once it has at least one byte or an error. Empty reads are
// retried up to maxEmptyReads times before giving up with io.ErrNoProgress.
func (b *bodyReader) read(p []byte) (int, error) {
	for i := 0; i < maxEmptyReads; i++ {
		n, err := b.br.Read(p)
		if n > 0 || err != nil {
			return n, err
		}
	}
	return 0, io.ErrNoProgress
}

func (b *bodyReader) nextLength() (*Frame, error) {
	size := int64(bodyReadSize)
	if b.remain < size {
		size = b.remain
	}
	buf := make([]byte, size)
	n, err := b.read(buf)
	b.remain -= int64(n)
	if b.remain == 0 {
		b.done = true
	}
	if n > 0 {
		return NewDataFrame(buf[:n]), nil
	}
	if isEOF(err) {
		return nil, &httperrors.HttpError{
			Type:          httperrors.ErrorTransport,
			ProtocolErr:   httperrors.ProtocolErrorIncompleteResponse,
			Message:       fmt.Sprintf("connection closed with %d body bytes missing", b.remain),
			UnderlyingErr: err,
		}
	}
	return nil, wireError(err, httperrors.ProtocolErrorIncompleteResponse, "reading body")
}

func (b *bodyReader) nextChunk() (*Frame, error) {
	size, err := readChunkSize(b.br, b.maxLine)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		b.done = true
		trailers, err := readHeaders(b.br, b.maxLine)
		if err != nil {
			return nil, err
		}
		if len(trailers) > 0 {
			return NewTrailersFrame(trailers), nil
		}
		return nil, io.EOF
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(b.br, buf); err != nil {
		return nil, wireError(err, httperrors.ProtocolErrorInvalidChunkedEncoding, "reading chunk data")
	}
	if err := expectCRLF(b.br); err != nil {
		return nil, err
	}
	return NewDataFrame(buf), nil
}

func (b *bodyReader) nextUntilClose() (*Frame, error) {
	buf := make([]byte, bodyReadSize)
	n, err := b.read(buf)
	if n > 0 {
		return NewDataFrame(buf[:n]), nil
	}
	b.done = true
	if isEOF(err) {
		return nil, io.EOF
	}
	return nil, wireError(err, httperrors.ProtocolErrorIncompleteResponse, "reading body")
}
