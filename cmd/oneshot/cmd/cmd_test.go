package cmd

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-kit/log"
	"github.com/nczempin/httpc-oneshot/client"
	"github.com/nczempin/httpc-oneshot/internal/devserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func devServer(t *testing.T) string {
	t.Helper()
	ts := httptest.NewServer(devserver.New("", log.NewNopLogger()).Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestSend_PrintsBody(t *testing.T) {
	base := devServer(t)
	out, errOut, err := run(t, "send", base+"/chunked", "--no-color")
	require.NoError(t, err)
	assert.Equal(t, "abcdef", out)
	assert.Contains(t, errOut, "Method is GET")
	assert.Contains(t, errOut, "Response: 200 OK")
	assert.Contains(t, errOut, "Done!")
}

func TestSend_MethodFlag(t *testing.T) {
	base := devServer(t)
	out, _, err := run(t, "send", "-X", "DELETE", base+"/echo", "--no-progress")
	require.NoError(t, err)
	assert.Equal(t, "DELETE "+base+"/echo", out)
}

func TestSend_Extract(t *testing.T) {
	base := devServer(t)
	out, _, err := run(t, "send", base+"/", "--no-progress", "--extract", "data")
	require.NoError(t, err)
	assert.Equal(t, "Data\n", out)

	out, _, err = run(t, "send", base+"/", "--no-progress", "--extract", "list_of_items.#.inner_data")
	require.NoError(t, err)
	assert.Equal(t, "[1,2,3]\n", out)

	_, _, err = run(t, "send", base+"/", "--no-progress", "--extract", "missing")
	assert.ErrorContains(t, err, "nothing at path")

	_, _, err = run(t, "send", base+"/chunked", "--no-progress", "--extract", "data")
	assert.ErrorContains(t, err, "not JSON")
}

func TestSend_TypedFailure(t *testing.T) {
	_, errOut, err := run(t, "send", "http://127.0.0.1:1/", "--no-progress")
	require.Error(t, err)
	assert.Contains(t, errOut, "request failed")
}

func TestSend_Legacy(t *testing.T) {
	out, _, err := run(t, "send", "http://127.0.0.1:1/", "--legacy", "--no-progress", "--log-level", "none")
	require.NoError(t, err)
	assert.Equal(t, client.DefaultPlaceholder, out)

	out, _, err = run(t, "send", "-X", "PUT", "http://127.0.0.1:1/", "--legacy", "--no-progress")
	require.NoError(t, err)
	assert.Equal(t, client.DefaultPlaceholder, out)
}

func TestSend_ConfigFile(t *testing.T) {
	base := devServer(t)
	cfgPath := filepath.Join(t.TempDir(), "oneshot.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("progress: false\nplaceholder: custom failure\n"), 0o644))

	out, errOut, err := run(t, "send", base+"/chunked", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", out)
	assert.NotContains(t, errOut, "Method is")

	out, _, err = run(t, "send", "http://127.0.0.1:1/", "--config", cfgPath, "--legacy", "--log-level", "none")
	require.NoError(t, err)
	assert.Equal(t, "custom failure", out)
}

func TestSend_InvalidSettings(t *testing.T) {
	_, _, err := run(t, "send", "http://127.0.0.1:1/", "--transport", "carrier-pigeon")
	assert.ErrorContains(t, err, "unknown transport")

	_, _, err = run(t, "send", "http://127.0.0.1:1/", "--transport", "unix")
	assert.ErrorContains(t, err, "unixSocket")

	_, _, err = run(t, "send")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "oneshot version "))
	assert.Contains(t, out, "Built: ")
}
