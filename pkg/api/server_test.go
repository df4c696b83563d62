package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tradepit/params"
	"tradepit/pkg/engine"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	round := params.Default().Round
	round.Seed = 1
	round.Bots = nil

	eng := engine.New(round, nil, nil)
	sched := engine.NewScheduler(eng, time.Hour, nil)
	go sched.Run()
	t.Cleanup(sched.Shutdown)

	return NewServer(sched, round, nil)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, "GET", "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp statusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.State != "lobby" {
		t.Errorf("state = %s, want lobby", resp.State)
	}
}

func TestRoundControlFlow(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, "POST", "/api/v1/round/start", "")
	if w.Code != http.StatusOK {
		t.Fatalf("start = %d: %s", w.Code, w.Body)
	}
	// Starting twice conflicts.
	if w = do(t, s, "POST", "/api/v1/round/start", ""); w.Code != http.StatusConflict {
		t.Errorf("double start = %d, want conflict", w.Code)
	}

	w = do(t, s, "POST", "/api/v1/round/step", "")
	if w.Code != http.StatusOK {
		t.Fatalf("step = %d", w.Code)
	}
	var d engine.Delta
	if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
		t.Fatal(err)
	}
	if d.Tick != 1 {
		t.Errorf("tick = %d, want 1", d.Tick)
	}

	if w = do(t, s, "POST", "/api/v1/round/stop", ""); w.Code != http.StatusOK {
		t.Errorf("stop = %d", w.Code)
	}
	// Stepping a stopped round conflicts.
	if w = do(t, s, "POST", "/api/v1/round/step", ""); w.Code != http.StatusConflict {
		t.Errorf("step after stop = %d, want conflict", w.Code)
	}
}

func TestRegisterSubmitCancel(t *testing.T) {
	s := newTestServer(t)
	do(t, s, "POST", "/api/v1/round/start", "")

	w := do(t, s, "POST", "/api/v1/players", `{"id":"alice","name":"Alice"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("register = %d: %s", w.Code, w.Body)
	}

	w = do(t, s, "POST", "/api/v1/orders",
		`{"player":"alice","symbol":"PIT","type":"limit","side":"buy","price":900,"qty":5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("submit = %d: %s", w.Code, w.Body)
	}
	var res engine.SubmitResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.Accepted || res.RestingID == 0 {
		t.Fatalf("submit result = %+v", res)
	}

	w = do(t, s, "GET", "/api/v1/players/alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("player view = %d", w.Code)
	}
	var pu engine.PlayerUpdate
	if err := json.Unmarshal(w.Body.Bytes(), &pu); err != nil {
		t.Fatal(err)
	}
	if len(pu.OpenOrders) != 1 {
		t.Errorf("open orders = %+v", pu.OpenOrders)
	}

	w = do(t, s, "POST", "/api/v1/orders/cancel", `{"player":"alice","all":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel = %d", w.Code)
	}

	w = do(t, s, "GET", "/api/v1/assets/PIT/depth", "")
	if w.Code != http.StatusOK {
		t.Fatalf("depth = %d", w.Code)
	}
	var snap engine.DepthSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Bids) != 0 {
		t.Errorf("depth after cancel = %+v", snap.Bids)
	}
}

func TestBadRequests(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name, method, path, body string
		want                     int
	}{
		{"unknown asset depth", "GET", "/api/v1/assets/XYZ/depth", "", http.StatusNotFound},
		{"unknown player view", "GET", "/api/v1/players/ghost", "", http.StatusNotFound},
		{"malformed submit", "POST", "/api/v1/orders", "{", http.StatusBadRequest},
		{"bad side", "POST", "/api/v1/orders", `{"player":"a","symbol":"PIT","type":"limit","side":"hold","qty":1}`, http.StatusBadRequest},
		{"bad type", "POST", "/api/v1/orders", `{"player":"a","symbol":"PIT","type":"stop","side":"buy","qty":1}`, http.StatusBadRequest},
		{"empty register id", "POST", "/api/v1/players", `{"name":"x"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		w := do(t, s, tt.method, tt.path, tt.body)
		if w.Code != tt.want {
			t.Errorf("%s: code = %d, want %d", tt.name, w.Code, tt.want)
		}
	}
}

func TestParseHelpers(t *testing.T) {
	if side, ok := parseSide("buy"); !ok || side != engine.Buy {
		t.Error("buy should parse")
	}
	if _, ok := parseSide("hold"); ok {
		t.Error("hold should not parse")
	}
	if typ, ok := parseOrderType("iceberg"); !ok || typ != engine.Iceberg {
		t.Error("iceberg should parse")
	}
	if _, ok := parseOrderType("stop"); ok {
		t.Error("stop should not parse")
	}
}
