package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/memdev/internal/auth"
	"github.com/danmuck/memdev/internal/chardev"
	"github.com/danmuck/memdev/internal/device"
	"github.com/danmuck/memdev/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func newDaemon(t *testing.T, capacity int) *Daemon {
	t.Helper()
	registry := device.NewRegistry(nil)
	if _, err := registry.Create(device.DefaultName, capacity); err != nil {
		t.Fatalf("create device: %v", err)
	}
	d := Appear("memdevd-test", ":0", registry, nil)
	d.MaxBodyBytes = 64
	d.RegisterRoutes()
	return d
}

func do(t *testing.T, d *Daemon, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rr := httptest.NewRecorder()
	d.HTTPRouter().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return body
}

func openSession(t *testing.T, d *Daemon) string {
	t.Helper()
	rr := do(t, d, http.MethodPost, "/devices/my_device/open", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("open: status=%d body=%s", rr.Code, rr.Body.String())
	}
	id, ok := decode(t, rr)["session"].(float64)
	if !ok {
		t.Fatalf("open: missing session id in %s", rr.Body.String())
	}
	return strconv.FormatUint(uint64(id), 10)
}

func TestWriteThenReadOverHTTP(t *testing.T) {
	testlog.Start(t)

	d := newDaemon(t, 1024)
	writer := openSession(t, d)
	rr := do(t, d, http.MethodPost, "/sessions/"+writer+"/write", []byte("hello"))
	if rr.Code != http.StatusOK {
		t.Fatalf("write: status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := decode(t, rr)
	if body["written"] != float64(5) || body["position"] != float64(5) {
		t.Fatalf("unexpected write body: %#v", body)
	}

	reader := openSession(t, d)
	if reader == writer {
		t.Fatalf("expected distinct session ids")
	}
	rr = do(t, d, http.MethodPost, "/sessions/"+reader+"/read?count=10", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("read: status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !bytes.Equal(rr.Body.Bytes(), []byte("hello\x00\x00\x00\x00\x00")) {
		t.Fatalf("unexpected read body: %q", rr.Body.Bytes())
	}
	if rr.Header().Get(HeaderCount) != "10" || rr.Header().Get(HeaderPosition) != "10" {
		t.Fatalf("unexpected headers: %v", rr.Header())
	}

	rr = do(t, d, http.MethodGet, "/sessions/"+reader, nil)
	if rr.Code != http.StatusOK || decode(t, rr)["position"] != float64(10) {
		t.Fatalf("unexpected session info: %d %s", rr.Code, rr.Body.String())
	}

	rr = do(t, d, http.MethodGet, "/devices/my_device/contents", nil)
	if rr.Code != http.StatusOK || decode(t, rr)["contents"] != "hello" {
		t.Fatalf("unexpected contents: %d %s", rr.Code, rr.Body.String())
	}
}

func TestReadToEndOfStream(t *testing.T) {
	testlog.Start(t)

	d := newDaemon(t, 8)
	id := openSession(t, d)
	rr := do(t, d, http.MethodPost, "/sessions/"+id+"/read", nil)
	if rr.Code != http.StatusOK || rr.Body.Len() != 8 {
		t.Fatalf("default count read: status=%d len=%d", rr.Code, rr.Body.Len())
	}
	rr = do(t, d, http.MethodPost, "/sessions/"+id+"/read?count=4", nil)
	if rr.Code != http.StatusOK || rr.Body.Len() != 0 || rr.Header().Get(HeaderCount) != "0" {
		t.Fatalf("end of stream: status=%d len=%d", rr.Code, rr.Body.Len())
	}
}

func TestWriteClampedAtCapacityOverHTTP(t *testing.T) {
	testlog.Start(t)

	d := newDaemon(t, 4)
	id := openSession(t, d)
	rr := do(t, d, http.MethodPost, "/sessions/"+id+"/write", []byte("abcdef"))
	if rr.Code != http.StatusOK {
		t.Fatalf("write: status=%d body=%s", rr.Code, rr.Body.String())
	}
	if decode(t, rr)["written"] != float64(4) {
		t.Fatalf("expected clamped write: %s", rr.Body.String())
	}
	rr = do(t, d, http.MethodPost, "/sessions/"+id+"/write", []byte("more"))
	if rr.Code != http.StatusOK || decode(t, rr)["written"] != float64(0) {
		t.Fatalf("write at capacity: %d %s", rr.Code, rr.Body.String())
	}
	node, _ := d.Devices.Resolve(device.DefaultName)
	if got := node.Buffer.Snapshot(); !bytes.Equal(got, []byte{'a', 'b', 'c', 0}) {
		t.Fatalf("unexpected buffer: %q", got)
	}
}

func TestRouteErrors(t *testing.T) {
	testlog.Start(t)

	d := newDaemon(t, 16)
	id := openSession(t, d)

	cases := []struct {
		name   string
		method string
		path   string
		body   []byte
		want   int
	}{
		{"unknown device", http.MethodPost, "/devices/nope/open", nil, http.StatusNotFound},
		{"unknown device info", http.MethodGet, "/devices/nope", nil, http.StatusNotFound},
		{"unknown session", http.MethodPost, "/sessions/999/read", nil, http.StatusNotFound},
		{"bad session id", http.MethodPost, "/sessions/abc/read", nil, http.StatusBadRequest},
		{"bad count", http.MethodPost, "/sessions/" + id + "/read?count=-1", nil, http.StatusBadRequest},
		{"body too large", http.MethodPost, "/sessions/" + id + "/write", bytes.Repeat([]byte("x"), 65), http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		rr := do(t, d, tc.method, tc.path, tc.body)
		if rr.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d body=%s", tc.name, tc.want, rr.Code, rr.Body.String())
		}
		if _, ok := decode(t, rr)["error"]; !ok {
			t.Fatalf("%s: expected error body", tc.name)
		}
	}
}

func TestReleaseSession(t *testing.T) {
	testlog.Start(t)

	d := newDaemon(t, 16)
	id := openSession(t, d)
	rr := do(t, d, http.MethodDelete, "/sessions/"+id, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("release: status=%d", rr.Code)
	}
	rr = do(t, d, http.MethodDelete, "/sessions/"+id, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second release: expected 404, got %d", rr.Code)
	}

	parsed, _ := strconv.ParseUint(id, 10, 64)
	if _, err := d.Session(parsed); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestHealthDevicesAndMetrics(t *testing.T) {
	testlog.Start(t)

	d := newDaemon(t, 16)
	rr := do(t, d, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK || decode(t, rr)["status"] != "ok" {
		t.Fatalf("health: %d %s", rr.Code, rr.Body.String())
	}
	rr = do(t, d, http.MethodGet, "/ready", nil)
	if rr.Code != http.StatusOK || decode(t, rr)["ready"] != true {
		t.Fatalf("ready: %d %s", rr.Code, rr.Body.String())
	}
	rr = do(t, d, http.MethodGet, "/devices", nil)
	devices, _ := decode(t, rr)["devices"].([]any)
	if rr.Code != http.StatusOK || len(devices) != 1 {
		t.Fatalf("devices: %d %s", rr.Code, rr.Body.String())
	}

	id := openSession(t, d)
	do(t, d, http.MethodPost, "/sessions/"+id+"/write", []byte("hi"))
	rr = do(t, d, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "memdev_device_transfer_bytes_total") {
		t.Fatalf("metrics missing device counters: %d", rr.Code)
	}
}

func TestServeShutsDownAndReleasesSessions(t *testing.T) {
	testlog.Start(t)

	registry := device.NewRegistry(nil)
	if _, err := registry.Create(device.DefaultName, 16); err != nil {
		t.Fatalf("create device: %v", err)
	}
	d := Appear("memdevd-serve", "127.0.0.1:0", registry, nil)
	// routes registered ahead of Serve must not be registered again
	d.RegisterRoutes()
	if _, err := d.Open(device.DefaultName); err != nil {
		t.Fatalf("open: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := d.Serve(ctx, nil, time.Second); err != nil {
		t.Skipf("listener unavailable in this environment: %v", err)
	}
	if len(d.sessions.ids()) != 0 {
		t.Fatalf("expected sessions released after shutdown")
	}
}

func TestAuthGuardsDeviceRoutes(t *testing.T) {
	testlog.Start(t)

	registry := device.NewRegistry(nil)
	if _, err := registry.Create(device.DefaultName, 16); err != nil {
		t.Fatalf("create device: %v", err)
	}
	d := Appear("memdevd-auth", ":0", registry, nil)
	d.Auth = auth.StaticToken{Token: "secret"}
	d.RegisterRoutes()

	rr := do(t, d, http.MethodPost, "/devices/my_device/open", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	rr = do(t, d, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("health should stay open, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/devices/my_device/open", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	d.HTTPRouter().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestRegisterRoutesIsIdempotent(t *testing.T) {
	testlog.Start(t)

	d := newDaemon(t, 16)
	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("second RegisterRoutes panicked: %v", r)
			}
		}()
		d.RegisterRoutes()
	}()
	if rr := do(t, d, http.MethodGet, "/health", nil); rr.Code != http.StatusOK {
		t.Fatalf("health after re-register: %d", rr.Code)
	}
}

func TestRespondErrorStatusMapping(t *testing.T) {
	testlog.Start(t)

	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "transfer fault", err: fmt.Errorf("read: %w", chardev.ErrTransferFault), want: http.StatusInternalServerError},
		{name: "invalid position", err: fmt.Errorf("%w: -1", chardev.ErrInvalidPosition), want: http.StatusBadRequest},
		{name: "missing device", err: fmt.Errorf("%w: ghost", device.ErrNodeNotFound), want: http.StatusNotFound},
		{name: "missing session", err: fmt.Errorf("%w: 9", ErrSessionNotFound), want: http.StatusNotFound},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rr)
		respondError(c, tc.err)
		if rr.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, rr.Code)
		}
		if got := decode(t, rr)["error"]; got != tc.err.Error() {
			t.Fatalf("%s: unexpected error body %v", tc.name, got)
		}
	}
}

func TestConcurrentHTTPSessionsKeepTerminator(t *testing.T) {
	testlog.Start(t)

	const capacity = 32
	d := newDaemon(t, capacity)
	ids := make([]string, 8)
	for i := range ids {
		ids[i] = openSession(t, d)
	}
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			payload := bytes.Repeat([]byte{byte('a' + i)}, 12)
			for j := 0; j < 5; j++ {
				if rr := do(t, d, http.MethodPost, "/sessions/"+id+"/write", payload); rr.Code != http.StatusOK {
					t.Errorf("write %s: %d", id, rr.Code)
					return
				}
				if rr := do(t, d, http.MethodPost, "/sessions/"+id+"/read?count=4", nil); rr.Code != http.StatusOK {
					t.Errorf("read %s: %d", id, rr.Code)
					return
				}
				if rr := do(t, d, http.MethodGet, "/sessions/"+id, nil); rr.Code != http.StatusOK {
					t.Errorf("info %s: %d", id, rr.Code)
					return
				}
			}
			if rr := do(t, d, http.MethodDelete, "/sessions/"+id, nil); rr.Code != http.StatusOK {
				t.Errorf("release %s: %d", id, rr.Code)
			}
		}(i, id)
	}
	wg.Wait()

	node, _ := d.Devices.Resolve(device.DefaultName)
	if snap := node.Buffer.Snapshot(); snap[capacity-1] != 0 {
		t.Fatalf("last byte lost its terminator: %q", snap)
	}
	if left := d.sessions.ids(); len(left) != 0 {
		t.Fatalf("expected all sessions released, got %v", left)
	}
}
