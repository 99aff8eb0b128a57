// Package devserver is a small HTTP server for trying the client against.
package devserver

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultAddr is where Run listens when no address is given.
const DefaultAddr = "0.0.0.0:9090"

const shutdownTimeout = 5 * time.Second

// InnerItem is one entry of Item.ListOfItems.
type InnerItem struct {
	InnerData uint64 `json:"inner_data"`
}

// Item is the document served at /.
type Item struct {
	ID          string      `json:"id"`
	CreatedAt   time.Time   `json:"created_at"`
	Data        string      `json:"data"`
	ListOfItems []InnerItem `json:"list_of_items"`
}

// NewItem returns an Item with a fresh v4 id.
func NewItem(data string, now time.Time, inner ...uint64) Item {
	it := Item{
		ID:          uuid.NewString(),
		CreatedAt:   now.UTC(),
		Data:        data,
		ListOfItems: []InnerItem{},
	}
	for _, v := range inner {
		it.ListOfItems = append(it.ListOfItems, InnerItem{InnerData: v})
	}
	return it
}

// Server serves the development routes.
type Server struct {
	Addr   string
	Logger log.Logger
	now    func() time.Time
}

// New creates a Server on addr. An empty addr means DefaultAddr.
func New(addr string, logger log.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Server{Addr: addr, Logger: logger, now: time.Now}
}

// Handler returns the routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleItem)
	mux.HandleFunc("/chunked", s.handleChunked)
	mux.HandleFunc("/echo", s.handleEcho)
	return s.logRequests(mux)
}

func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	item := NewItem("Data", s.now(), 1, 2, 3)
	if err := json.NewEncoder(w).Encode(item); err != nil {
		level.Error(s.Logger).Log("msg", "failed to encode item", "err", err)
	}
}

func (s *Server) handleChunked(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	flusher, _ := w.(http.Flusher)
	for _, part := range []string{"ab", "cd", "ef"} {
		if _, err := fmt.Fprint(w, part); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "%s %s", r.Method, r.RequestURI)
}

// statusRecorder captures the status code and body size for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		level.Info(s.Logger).Log(
			"msg", "request",
			"method", r.Method,
			"target", r.RequestURI,
			"status", rec.status,
			"bytes", rec.bytes,
			"remote", r.RemoteAddr,
			"took", time.Since(start),
		)
	})
}

// Run listens on s.Addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		level.Info(s.Logger).Log("msg", "listening", "addr", l.Addr().String())
		if err := srv.Serve(l); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		level.Info(s.Logger).Log("msg", "shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
