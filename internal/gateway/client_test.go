package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gatewayctl/internal/device"
)

// fakeGateway records requests and serves canned responses.
type fakeGateway struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []commandBody
	status   int
	payload  string
}

func (f *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Clone(context.Background()))
	if r.Method == http.MethodPost {
		var b commandBody
		_ = json.NewDecoder(r.Body).Decode(&b)
		f.bodies = append(f.bodies, b)
	}
	status, payload := f.status, f.payload
	f.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(payload))
}

func newTestClient(t *testing.T, fg *fakeGateway) *Client {
	t.Helper()
	srv := httptest.NewServer(fg)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Token: "1234", UserAgent: "gatewayctl/test"})
}

func TestClient_ListDevices(t *testing.T) {
	fg := &fakeGateway{payload: `{"result":[{"id":"a","type":"switch"},{"id":"b","type":"dimmer","room":"hall"}]}`}
	c := newTestClient(t, fg)

	devices, err := c.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "a", devices[0].ID)
	assert.Equal(t, device.TypeDimmer, devices[1].Type)
	assert.Equal(t, "hall", devices[1].Attributes["room"])

	req := fg.requests[0]
	assert.Equal(t, "/devices", req.URL.Path)
	assert.Equal(t, "Bearer 1234", req.Header.Get("Authorization"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "*/*", req.Header.Get("Accept"))
	assert.Equal(t, "gatewayctl/test", req.Header.Get("User-Agent"))
}

func TestClient_ListDevices_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, `{}`, ErrUnexpectedStatus},
		{"unauthorized", http.StatusUnauthorized, ``, ErrUnexpectedStatus},
		{"missing result", http.StatusOK, `{"devices":[]}`, ErrInvalidResponse},
		{"not json", http.StatusOK, `<html>`, ErrInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, &fakeGateway{status: tt.status, payload: tt.payload})
			_, err := c.ListDevices(context.Background())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClient_DeviceStatus(t *testing.T) {
	fg := &fakeGateway{payload: `{"result":{"status":{"on":true}}}`}
	c := newTestClient(t, fg)

	status, err := c.DeviceStatus(context.Background(), "a b")
	require.NoError(t, err)
	assert.True(t, device.MatchesState(status, true))
	assert.Equal(t, "/devices/a%20b", fg.requests[0].URL.EscapedPath())
}

func TestClient_DeviceStatus_NotFound(t *testing.T) {
	c := newTestClient(t, &fakeGateway{status: http.StatusNotFound})

	_, err := c.DeviceStatus(context.Background(), "zz")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestClient_SendCommand(t *testing.T) {
	fg := &fakeGateway{}
	c := newTestClient(t, fg)

	code, err := c.SendCommand(context.Background(), "b", "dimLevel", 100)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)

	require.Len(t, fg.bodies, 1)
	assert.Equal(t, "dimLevel", fg.bodies[0].Attribute)
	assert.Equal(t, float64(100), fg.bodies[0].Value)
	assert.Equal(t, "/devices/b/commands", fg.requests[0].URL.Path)
	assert.Equal(t, http.MethodPost, fg.requests[0].Method)
}

func TestClient_SendCommand_NonOKIsNotAnError(t *testing.T) {
	c := newTestClient(t, &fakeGateway{status: http.StatusServiceUnavailable})

	code, err := c.SendCommand(context.Background(), "a", "status", true)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestClient_SendCommand_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Config{BaseURL: url})
	_, err := c.SendCommand(context.Background(), "a", "status", true)
	assert.Error(t, err)
}

func TestClient_SendCommand_ContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)

	c := New(Config{BaseURL: srv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.SendCommand(ctx, "a", "status", true)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_InsecureTLS(t *testing.T) {
	srv := httptest.NewTLSServer(&fakeGateway{payload: `{"result":[{"id":"a","type":"switch"}]}`})
	t.Cleanup(srv.Close)

	strict := New(Config{BaseURL: srv.URL})
	_, err := strict.ListDevices(context.Background())
	assert.Error(t, err, "self-signed certificate must be rejected without InsecureSkipVerify")

	insecure := New(Config{BaseURL: srv.URL, InsecureSkipVerify: true})
	devices, err := insecure.ListDevices(context.Background())
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

func TestClient_NoTokenNoAuthHeader(t *testing.T) {
	fg := &fakeGateway{payload: `{"result":[]}`}
	srv := httptest.NewServer(fg)
	t.Cleanup(srv.Close)

	c := New(Config{BaseURL: srv.URL + "/"})
	_, err := c.ListDevices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, fg.requests[0].Header.Get("Authorization"))
	assert.Equal(t, "gatewayctl", fg.requests[0].Header.Get("User-Agent"))
}
