package devserver

import (
	"bytes"
	"context"
	"net"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nczempin/httpc-oneshot/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// lockedBuffer lets the test read what the server goroutines log.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestServer(t *testing.T) (*httptest.Server, *lockedBuffer) {
	t.Helper()
	logs := &lockedBuffer{}
	s := New("", log.NewLogfmtLogger(logs))
	s.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, logs
}

func TestNew_Defaults(t *testing.T) {
	s := New("", nil)
	assert.Equal(t, DefaultAddr, s.Addr)
	assert.NotNil(t, s.Logger)
}

func TestItemRoute(t *testing.T) {
	ts, logs := newTestServer(t)

	body, err := client.NewHttpClient().Send(context.Background(), ts.URL+"/", "GET")
	require.NoError(t, err)

	var item Item
	require.NoError(t, json.Unmarshal([]byte(body), &item))
	_, err = uuid.Parse(item.ID)
	assert.NoError(t, err)
	assert.Equal(t, "Data", item.Data)
	assert.True(t, item.CreatedAt.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.Equal(t, []InnerItem{{1}, {2}, {3}}, item.ListOfItems)

	assert.Equal(t, "2024-01-02T03:04:05Z", gjson.Get(body, "created_at").String())
	assert.Equal(t, int64(3), gjson.Get(body, "list_of_items.#").Int())
	assert.Equal(t, int64(2), gjson.Get(body, "list_of_items.1.inner_data").Int())

	assert.Contains(t, logs.String(), "status=200")
}

func TestChunkedRoute(t *testing.T) {
	ts, _ := newTestServer(t)

	body, err := client.NewHttpClient().Send(context.Background(), ts.URL+"/chunked", "GET")
	require.NoError(t, err)
	assert.Equal(t, "abcdef", body)
}

func TestEchoRoute(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, m := range []string{"GET", "POST", "DELETE", "PATCH"} {
		body, err := client.NewHttpClient().Send(context.Background(), ts.URL+"/echo?x=1", m)
		require.NoError(t, err)
		assert.Equal(t, m+" "+ts.URL+"/echo?x=1", body)
	}
}

func TestUnknownRoute(t *testing.T) {
	ts, logs := newTestServer(t)

	body, err := client.NewHttpClient().Send(context.Background(), ts.URL+"/nope", "GET")
	require.NoError(t, err)
	assert.Contains(t, body, "404")
	assert.Contains(t, logs.String(), "status=404")
}

func TestNewItem(t *testing.T) {
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.FixedZone("X", 3600))
	it := NewItem("payload", now)
	assert.Equal(t, time.UTC, it.CreatedAt.Location())
	assert.NotNil(t, it.ListOfItems)
	assert.Empty(t, it.ListOfItems)

	raw, err := json.Marshal(it)
	require.NoError(t, err)
	assert.Equal(t, "[]", gjson.GetBytes(raw, "list_of_items").Raw)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(l.Addr().String(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, l) }()

	body, err := client.NewHttpClient().Send(context.Background(), "http://"+l.Addr().String()+"/chunked", "GET")
	require.NoError(t, err)
	assert.Equal(t, "abcdef", body)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
