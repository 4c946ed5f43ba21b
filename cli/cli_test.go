package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/state-table-server/command"
	"github.com/stevemurr/state-table-server/config"
	"github.com/stevemurr/state-table-server/handler"
	"github.com/stevemurr/state-table-server/logging"
	"github.com/stevemurr/state-table-server/table"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	router := command.NewRouter(table.NewRegistry(nil, nil), nil)
	srv := httptest.NewServer(handler.New(router, handler.Options{}))
	t.Cleanup(srv.Close)
	return srv
}

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootCmd := newRootCmd()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "statetable version dev")
}

func TestExecRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	_, err := runCLI(t, "exec", "--addr", srv.URL, "--cmd", "CREATE_STATE", "--state", "players", "--max-length", "5")
	require.NoError(t, err)

	dataFile := filepath.Join(t.TempDir(), "players.json")
	require.NoError(t, os.WriteFile(dataFile, []byte(`[{"id":7,"name":"ann"},{"name":"bob"}]`), 0o644))
	out, err := runCLI(t, "exec", "--addr", srv.URL, "--cmd", "SET_STATE", "--state", "players", "--data", "@"+dataFile)
	require.NoError(t, err)

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.EqualValues(t, 2, resp["accepted"])

	out, err = runCLI(t, "exec", "--addr", srv.URL, "--cmd", "GET_RECORD", "--state", "players", "--id", "7")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, map[string]any{"id": 7.0, "name": "ann"}, resp["record"])
}

func TestExecErrorReplyFails(t *testing.T) {
	srv := newTestServer(t)

	out, err := runCLI(t, "exec", "--addr", srv.URL, "--cmd", "GET_SCHEMA", "--state", "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.Contains(t, out, `"status": "error"`)
}

func TestExecRejectsBadData(t *testing.T) {
	_, err := runCLI(t, "exec", "--addr", "http://127.0.0.1:1", "--cmd", "CREATE_RECORD", "--state", "s", "--data", "{oops")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
}

func TestExecRequiresCmd(t *testing.T) {
	_, err := runCLI(t, "exec", "--state", "s")
	require.Error(t, err)
}

func TestServeFlagsOverrideConfig(t *testing.T) {
	cmd := newServeCmd()
	require.NoError(t, cmd.Flags().Parse([]string{"--listen", "127.0.0.1:0", "--store", "memory", "--log-level", "debug"}))

	cfg := config.Default()
	cfg.Store.Backend = "json"
	opts := &serveOptions{listenAddr: "127.0.0.1:0", backend: "memory", logLevel: "debug"}
	require.NoError(t, opts.apply(cmd.Flags(), &cfg))
	assert.Equal(t, "127.0.0.1:0", cfg.Server.ListenAddr)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "./data", cfg.Store.DataDir)

	bad := &serveOptions{backend: "redis"}
	badCmd := newServeCmd()
	require.NoError(t, badCmd.Flags().Parse([]string{"--store", "redis"}))
	require.Error(t, bad.apply(badCmd.Flags(), &cfg))
}

func TestRunServerGracefulShutdown(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Backend = "memory"
	cfg.Server.ShutdownTimeout = 2 * time.Second

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runServer(ctx, &cfg, logging.New(&bytes.Buffer{}, "error", "text"), ln)
	}()

	url := "http://" + ln.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := send(context.Background(), url, []byte(`{"cmd":"CREATE_STATE","state":"s"}`))
	require.NoError(t, err)
	assert.True(t, resp.OK())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
