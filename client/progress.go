package client

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/nczempin/httpc-oneshot/protocol"
)

// progress echoes an exchange to a writer as it happens. A nil *progress
// prints nothing.
type progress struct {
	w     io.Writer
	bold  *color.Color
	cyan  *color.Color
	green *color.Color
	red   *color.Color
}

func newProgress(w io.Writer, noColor bool) *progress {
	p := &progress{
		w:     w,
		bold:  color.New(color.Bold),
		cyan:  color.New(color.FgCyan),
		green: color.New(color.FgGreen),
		red:   color.New(color.FgRed),
	}
	if noColor {
		for _, c := range []*color.Color{p.bold, p.cyan, p.green, p.red} {
			c.DisableColor()
		}
	}
	return p
}

func (p *progress) method(m protocol.Method) {
	if p == nil {
		return
	}
	fmt.Fprintf(p.w, "Method is %s\n", p.bold.Sprint(m))
}

func (p *progress) rejected(token string) {
	if p == nil {
		return
	}
	fmt.Fprintf(p.w, "%s %q\n", p.red.Sprint("Invalid or unsupported method"), token)
}

func (p *progress) head(resp *protocol.HttpResponse) {
	if p == nil {
		return
	}
	status := p.green
	if resp.StatusCode >= 400 {
		status = p.red
	}
	fmt.Fprintf(p.w, "Response: %s\n", status.Sprint(resp.Status()))
	fmt.Fprintf(p.w, "Headers:\n")
	for _, h := range resp.Headers {
		fmt.Fprintf(p.w, "  %s: %s\n", p.cyan.Sprint(h.Key), h.Value)
	}
	fmt.Fprintln(p.w)
}

func (p *progress) chunk(b []byte) {
	if p == nil {
		return
	}
	p.w.Write(b)
}

func (p *progress) done() {
	if p == nil {
		return
	}
	fmt.Fprintf(p.w, "\n\n%s\n", p.bold.Sprint("Done!"))
}
