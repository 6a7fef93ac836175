package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rabbitmq/amqp091-go"

	"github.com/fusion-flap/flap-w7x-mdsplus/internal/metrics"
	"github.com/fusion-flap/flap-w7x-mdsplus/internal/queue"
	mid "github.com/fusion-flap/flap-w7x-mdsplus/internal/server/middleware"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/common"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/dataobj"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/datasource"
)

const masterKey = "master-secret"

var jwtSecret = []byte("test-secret")

type fakePublisher struct {
	queues []string
}

func (p *fakePublisher) Publish(_, key string, _, _ bool, _ amqp091.Publishing) error {
	p.queues = append(p.queues, key)
	return nil
}

func newTestApp(t *testing.T, calls *atomic.Int32) (*mid.App, *fakePublisher) {
	t.Helper()

	reg := datasource.NewRegistry()
	err := reg.Register(datasource.Source{
		Name: "TEST",
		GetData: func(_ context.Context, req datasource.Request) (*dataobj.DataObject, error) {
			calls.Add(1)
			if req.ExpID == "bad" {
				return nil, fmt.Errorf("%w: exp_id %q", common.ErrFormat, req.ExpID)
			}
			if req.Names[0] == "offline" {
				return nil, fmt.Errorf("%w: no route", common.ErrConnection)
			}
			return &dataobj.DataObject{
				Title: "test",
				ExpID: req.ExpID,
				Data:  dataobj.Array{Shape: []int{2}, Values: common.FloatSamples([]float64{1, 2})},
			}, nil
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	pub := &fakePublisher{}
	return &mid.App{
		Sources:        reg,
		Metrics:        metrics.New(),
		Queue:          pub,
		MasterAPIKey:   masterKey,
		MasterUserID:   1,
		MasterUserRole: "admin",
		Keyfunc: func(*jwt.Token) (any, error) {
			return jwtSecret, nil
		},
	}, pub
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return s
}

func do(e http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	var calls atomic.Int32
	app, _ := newTestApp(t, &calls)
	e := New(app)

	if rec := do(e, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("/health = %d %q", rec.Code, rec.Body.String())
	}
	if rec := do(e, http.MethodGet, "/metrics", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("/metrics = %d", rec.Code)
	}
}

func TestAuth(t *testing.T) {
	var calls atomic.Int32
	app, _ := newTestApp(t, &calls)
	e := New(app)

	reader := signToken(t, jwt.MapClaims{"id": "7", "role": "user", "permissions": []string{mid.PermSignalRead}})
	noPerms := signToken(t, jwt.MapClaims{"id": 8.0, "role": "user"})
	admin := signToken(t, jwt.MapClaims{"id": "9", "role": "admin"})

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{name: "missing_token", token: "", want: http.StatusUnauthorized},
		{name: "garbage_token", token: "not-a-jwt", want: http.StatusUnauthorized},
		{name: "master_key", token: masterKey, want: http.StatusOK},
		{name: "jwt_with_permission", token: reader, want: http.StatusOK},
		{name: "jwt_without_permission", token: noPerms, want: http.StatusForbidden},
		{name: "admin_gets_all_permissions", token: admin, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, http.MethodGet, "/api/sources", tt.token, "")
			if rec.Code != tt.want {
				t.Fatalf("GET /api/sources = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestGetSources(t *testing.T) {
	var calls atomic.Int32
	app, _ := newTestApp(t, &calls)
	e := New(app)

	rec := do(e, http.MethodGet, "/api/sources", masterKey, "")
	var got struct {
		Sources []string `json:"sources"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(got.Sources) != 1 || got.Sources[0] != "TEST" {
		t.Fatalf("sources = %v, want [TEST]", got.Sources)
	}
}

func TestGetData(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{name: "ok", path: "/api/sources/TEST/data", body: `{"exp_id":"20181018.003","names":["CR-B"]}`, want: http.StatusOK},
		{name: "unknown_source", path: "/api/sources/NOPE/data", body: `{"exp_id":"20181018.003","names":["CR-B"]}`, want: http.StatusNotFound},
		{name: "no_names", path: "/api/sources/TEST/data", body: `{"exp_id":"20181018.003","names":[]}`, want: http.StatusBadRequest},
		{name: "empty_name", path: "/api/sources/TEST/data", body: `{"exp_id":"20181018.003","names":[""]}`, want: http.StatusBadRequest},
		{name: "range_without_coordinate", path: "/api/sources/TEST/data", body: `{"exp_id":"20181018.003","names":["A"],"ranges":[{"low":1}]}`, want: http.StatusBadRequest},
		{name: "format_error", path: "/api/sources/TEST/data", body: `{"exp_id":"bad","names":["CR-B"]}`, want: http.StatusBadRequest},
		{name: "connection_error", path: "/api/sources/TEST/data", body: `{"exp_id":"20181018.003","names":["offline"]}`, want: http.StatusBadGateway},
		{name: "malformed_json", path: "/api/sources/TEST/data", body: `{"exp_id":`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			app, _ := newTestApp(t, &calls)
			e := New(app)

			rec := do(e, http.MethodPost, tt.path, masterKey, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("POST %s = %d, want %d: %s", tt.path, rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	var calls atomic.Int32
	app, _ := newTestApp(t, &calls)
	rec := do(New(app), http.MethodPost, "/api/sources/TEST/data", masterKey, `{"exp_id":"20181018.003","names":["CR-B"]}`)
	var obj dataobj.DataObject
	if err := json.Unmarshal(rec.Body.Bytes(), &obj); err != nil {
		t.Fatalf("Unmarshal() error = %v: %s", err, rec.Body.String())
	}
	if obj.ExpID != "20181018.003" || obj.Data.Len() != 2 {
		t.Fatalf("data object = %+v", obj)
	}
}

func TestRequestOptionsCannotSetServerSideValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{name: "server", key: "Server"},
		{name: "user", key: "User"},
		{name: "virtual_name_file", key: "Virtual name file"},
		{name: "cache_directory", key: "Cache directory"},
		{name: "case_folded", key: "cache DIRECTORY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			app, pub := newTestApp(t, &calls)
			e := New(app)

			opts := fmt.Sprintf(`{"%s":"/tmp/elsewhere","Cache data":"true"}`, tt.key)
			rec := do(e, http.MethodPost, "/api/sources/TEST/data", masterKey,
				`{"exp_id":"20181018.003","names":["CR-B"],"options":`+opts+`}`)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("POST data with %q = %d, want 400: %s", tt.key, rec.Code, rec.Body.String())
			}
			rec = do(e, http.MethodPost, "/api/prefetch", masterKey,
				`{"exp_id":"20181018.003","names":["CR-B"],"options":`+opts+`}`)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("POST prefetch with %q = %d, want 400: %s", tt.key, rec.Code, rec.Body.String())
			}
			if calls.Load() != 0 || len(pub.queues) != 0 {
				t.Fatalf("rejected request reached the source (%d calls) or queue (%v)", calls.Load(), pub.queues)
			}
		})
	}

	var calls atomic.Int32
	app, _ := newTestApp(t, &calls)
	rec := do(New(app), http.MethodPost, "/api/sources/TEST/data", masterKey,
		`{"exp_id":"20181018.003","names":["CR-B"],"options":{"Cache data":"true","Verbose":"false"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST data with client options = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestSharedReadOutlivesCaller(t *testing.T) {
	seen := make(chan error, 1)
	reg := datasource.NewRegistry()
	err := reg.Register(datasource.Source{
		Name: "SLOW",
		GetData: func(ctx context.Context, req datasource.Request) (*dataobj.DataObject, error) {
			time.Sleep(20 * time.Millisecond)
			seen <- ctx.Err()
			return &dataobj.DataObject{
				ExpID: req.ExpID,
				Data:  dataobj.Array{Shape: []int{1}, Values: common.FloatSamples([]float64{1})},
			}, nil
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	e := New(&mid.App{Sources: reg, MasterAPIKey: masterKey, MasterUserID: 1, MasterUserRole: "admin"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/sources/SLOW/data",
		strings.NewReader(`{"exp_id":"20181018.003","names":["CR-B"]}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+masterKey)
	e.ServeHTTP(httptest.NewRecorder(), req)

	select {
	case err := <-seen:
		if err != nil {
			t.Fatalf("shared read context error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("shared read did not run")
	}
}

func TestPostPrefetch(t *testing.T) {
	var calls atomic.Int32
	app, pub := newTestApp(t, &calls)
	e := New(app)

	rec := do(e, http.MethodPost, "/api/prefetch", masterKey, `{"exp_id":"20181018.003","names":["CR-B"],"export":true}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST /api/prefetch = %d: %s", rec.Code, rec.Body.String())
	}
	var got map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got["id"] == "" || got["export_key"] != "signals/20181018.003/"+got["id"]+".cbor" {
		t.Fatalf("response = %v", got)
	}
	if len(pub.queues) != 1 || pub.queues[0] != queue.PrefetchQueue {
		t.Fatalf("published to %v", pub.queues)
	}

	reader := signToken(t, jwt.MapClaims{"id": "7", "permissions": []string{mid.PermSignalRead}})
	if rec := do(e, http.MethodPost, "/api/prefetch", reader, `{"exp_id":"20181018.003","names":["CR-B"]}`); rec.Code != http.StatusForbidden {
		t.Fatalf("prefetch without permission = %d, want 403", rec.Code)
	}
}

func TestUnconfiguredBackends(t *testing.T) {
	var calls atomic.Int32
	app, _ := newTestApp(t, &calls)
	app.Queue = nil
	e := New(app)

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodPost, "/api/prefetch", `{"exp_id":"20181018.003","names":["CR-B"]}`},
		{http.MethodGet, "/api/fetch-time?node=QRN::CH1", ""},
		{http.MethodGet, "/api/exports/20181018.003", ""},
		{http.MethodGet, "/api/exports/20181018.003/abc", ""},
	} {
		if rec := do(e, tc.method, tc.path, masterKey, tc.body); rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s %s = %d, want 503", tc.method, tc.path, rec.Code)
		}
	}
	if rec := do(e, http.MethodGet, "/api/fetch-time", masterKey, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("fetch-time without node = %d, want 400", rec.Code)
	}
}
