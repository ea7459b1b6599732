package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"resource-tracker/internal/model"
	"resource-tracker/internal/registry"
	"resource-tracker/internal/tracker"
)

func newTestServer(t *testing.T) (*registry.Registry, *httptest.Server) {
	t.Helper()

	reg := registry.New()
	tr, err := tracker.NewForName(reg, "svc", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tr.Open(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(tr.Close)

	mux := http.NewServeMux()
	New(reg, tr, time.Second).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return reg, srv
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	var buf strings.Builder
	dec := json.NewDecoder(resp.Body)
	var raw json.RawMessage
	if err := dec.Decode(&raw); err == nil {
		buf.Write(raw)
	}
	return resp, []byte(buf.String())
}

func TestHandleRegister(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/resources",
		`{"name":"svc","ranking":3,"properties":{"zone":"eu"}}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}

	var info model.ResourceInfo
	if err := json.Unmarshal(body, &info); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Name != "svc" || info.Ranking != 3 || info.Properties["zone"] != "eu" {
		t.Errorf("unexpected payload: %+v", info)
	}

	// The new registration is immediately visible through the tracker.
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/tracked", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var tracked model.TrackedResponse
	if err := json.Unmarshal(body, &tracked); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tracked.Size != 1 || len(tracked.Resources) != 1 {
		t.Errorf("expected one tracked resource, got %+v", tracked)
	}
}

func TestHandleRegister_Invalid(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"name":`},
		{"unknown field", `{"name":"svc","bogus":1}`},
		{"missing name", `{"ranking":1}`},
		{"trailing garbage", `{"name":"svc"}{"name":"again"}`},
	}
	for _, tt := range tests {
		resp, body := doJSON(t, http.MethodPost, srv.URL+"/resources", tt.body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d: %s", tt.name, resp.StatusCode, body)
		}
	}
}

func TestHandleUpdate(t *testing.T) {
	t.Parallel()

	reg, srv := newTestServer(t)
	ref, _ := reg.Register("svc", 1, nil, "obj")

	url := srv.URL + "/resources/" + strconv.FormatUint(ref.ID, 10)
	resp, body := doJSON(t, http.MethodPatch, url, `{"ranking":9}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if ref.Ranking() != 9 {
		t.Errorf("expected ranking applied, got %d", ref.Ranking())
	}
}

func TestHandleUnregister(t *testing.T) {
	t.Parallel()

	reg, srv := newTestServer(t)
	ref, _ := reg.Register("svc", 0, nil, "obj")

	url := srv.URL + "/resources/" + strconv.FormatUint(ref.ID, 10)
	resp, _ := doJSON(t, http.MethodDelete, url, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	// Gone now.
	resp, _ = doJSON(t, http.MethodDelete, url, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown resource, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/resources/abc", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for non-numeric id, got %d", resp.StatusCode)
	}
}

func TestHandleBest(t *testing.T) {
	t.Parallel()

	reg, srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/tracked/best", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 when nothing is tracked, got %d", resp.StatusCode)
	}

	reg.Register("svc", 1, nil, "low")
	best, _ := reg.Register("svc", 9, nil, "high")

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/tracked/best", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got model.BestResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Resource == nil || got.Resource.ID != best.ID {
		t.Errorf("expected the highest-ranked resource, got %+v", got.Resource)
	}
	if got.Object != "high" {
		t.Errorf("expected resolved object, got %v", got.Object)
	}
}

func TestHandleObjects(t *testing.T) {
	t.Parallel()

	reg, srv := newTestServer(t)
	reg.Register("svc", 1, nil, "low")
	reg.Register("svc", 9, nil, "high")

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/tracked/objects", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got model.ObjectsResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Objects) != 2 || got.Objects[0] != "high" || got.Objects[1] != "low" {
		t.Errorf("expected [high low], got %v", got.Objects)
	}
}

func TestHandleWait(t *testing.T) {
	t.Parallel()

	reg, srv := newTestServer(t)

	// Nothing arrives: the bounded wait times out.
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/tracked/wait?timeout_ms=50", "")
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("expected 504 on timeout, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/tracked/wait?timeout_ms=oops", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad timeout, got %d", resp.StatusCode)
	}

	// With a resource present the wait returns immediately.
	reg.Register("svc", 0, nil, "obj")
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/tracked/wait?timeout_ms=1000", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var got model.BestResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Object != "obj" {
		t.Errorf("expected obj, got %v", got.Object)
	}
}

func TestHandleHealthz(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t)
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/healthz", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}
