package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway is a stateful gateway: status commands change what status
// reads return.
type fakeGateway struct {
	mu       sync.Mutex
	order    []string
	types    map[string]string
	state    map[string]bool
	commands []string
	ignore   bool // accept commands without changing state
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		order: []string{"sw1", "dim1", "sensor1", "sw2"},
		types: map[string]string{"sw1": "switch", "dim1": "dimmer", "sensor1": "sensor", "sw2": "switch"},
		state: map[string]bool{},
	}
}

func (f *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] == "devices" && r.Method == http.MethodGet:
		result := make([]map[string]string, 0, len(f.order))
		for _, id := range f.order {
			result = append(result, map[string]string{"id": id, "type": f.types[id], "name": "Device " + id})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": result})
	case len(parts) == 2 && r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"status": f.state[parts[1]]}})
	case len(parts) == 3 && parts[2] == "commands" && r.Method == http.MethodPost:
		var body struct {
			Attribute string `json:"attribute"`
			Value     any    `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.commands = append(f.commands, fmt.Sprintf("%s.%s=%v", parts[1], body.Attribute, body.Value))
		if on, ok := body.Value.(bool); ok && body.Attribute == "status" && !f.ignore {
			f.state[parts[1]] = on
		}
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeGateway) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

// writeTestConfig writes a config pointing at srv with no batch or retry delays.
func writeTestConfig(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	host := strings.TrimPrefix(srv.URL, "http://")
	content := fmt.Sprintf(`
gateway:
  host: %q
  scheme: "http"
  token: "1234"
dispatch:
  retry_delay_ms: 0
batch:
  size: 2
  delay_ms: 0
logging:
  level: "error"
`, host)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDevicesCommand(t *testing.T) {
	fg := newFakeGateway()
	srv := httptest.NewServer(fg)
	defer srv.Close()

	out, err := execute(t, "-c", writeTestConfig(t, srv), "devices")
	require.NoError(t, err)

	assert.Contains(t, out, "Retrieved 4 devices\n")
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "dim1")
	assert.Contains(t, out, "Device sensor1")
}

func TestDevicesCommand_GatewayDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := execute(t, "-c", writeTestConfig(t, srv), "devices")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFirstCommand(t *testing.T) {
	fg := newFakeGateway()
	srv := httptest.NewServer(fg)
	defer srv.Close()

	out, err := execute(t, "-c", writeTestConfig(t, srv), "first", "2", "on")
	require.NoError(t, err)

	assert.Contains(t, out, "Turn First 2 On completed in ")
	assert.Contains(t, out, "Success: true\n")
	assert.ElementsMatch(t, []string{"sw1.status=true", "dim1.status=true", "dim1.dimLevel=100"}, fg.sent())
}

func TestFirstCommand_InvalidArgs(t *testing.T) {
	tests := [][]string{
		{"first", "zero", "on"},
		{"first", "0", "on"},
		{"first", "5", "maybe"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			_, err := execute(t, args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestAllCommand_SkipsDevicesAlreadyInState(t *testing.T) {
	fg := newFakeGateway()
	fg.state["sw2"] = true
	srv := httptest.NewServer(fg)
	defer srv.Close()

	out, err := execute(t, "-c", writeTestConfig(t, srv), "all", "on")
	require.NoError(t, err)

	assert.Contains(t, out, "Turn All On completed in ")
	assert.Contains(t, out, "Success: true\n")
	assert.ElementsMatch(t, []string{"sw1.status=true", "dim1.status=true", "dim1.dimLevel=100"}, fg.sent())
}

func TestAllCommand_VerificationFailure(t *testing.T) {
	fg := newFakeGateway()
	fg.state = map[string]bool{"sw1": true, "dim1": true, "sw2": true}
	fg.ignore = true
	srv := httptest.NewServer(fg)
	defer srv.Close()

	out, err := execute(t, "-c", writeTestConfig(t, srv), "all", "off")
	require.Error(t, err)

	assert.Contains(t, out, "Success: false\n")
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestMenuCommand(t *testing.T) {
	fg := newFakeGateway()
	srv := httptest.NewServer(fg)
	defer srv.Close()

	cmd := NewRootCommand("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader("0\n3\n11\n"))
	cmd.SetArgs([]string{"-c", writeTestConfig(t, srv)})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Retrieved 4 devices\n")
	assert.Contains(t, out.String(), "Turn First 5 On completed in ")
	assert.Contains(t, out.String(), "Exiting program\n")
}
