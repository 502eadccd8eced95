// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/heliohq/helio-go/lib/schema/event"
)

func newTestMock(t *testing.T, seedFlags map[string]event.FlagValue) (*mockServer, http.Handler) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mock := newMockServer(logger, seedFlags)
	return mock, mock.routes()
}

// doRequest runs one request through the handler tree and returns the
// recorder. A bearer token is attached unless auth is false.
func doRequest(t *testing.T, handler http.Handler, method, target string, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, target, reader)
	if auth {
		request.Header.Set("Authorization", "Bearer test-token")
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("decoding response %q: %v", recorder.Body.String(), err)
	}
}

func batchBody(names ...string) string {
	batch := event.Batch{}
	for _, name := range names {
		batch.Events = append(batch.Events, event.Event{
			Type:       event.TypeTrack,
			Event:      name,
			DistinctID: "user-1",
		})
	}
	raw, _ := json.Marshal(batch)
	return string(raw)
}

// --- ingest ---

func TestIngestStoresEvents(t *testing.T) {
	_, handler := newTestMock(t, nil)

	recorder := doRequest(t, handler, http.MethodPost, "/e", batchBody("signup", "purchase"), true)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", recorder.Code, http.StatusOK, recorder.Body.String())
	}

	recorder = doRequest(t, handler, http.MethodGet, "/admin/events", "", false)
	if recorder.Code != http.StatusOK {
		t.Fatalf("admin events status = %d, want %d", recorder.Code, http.StatusOK)
	}
	var result struct {
		Count  int           `json:"count"`
		Events []event.Event `json:"events"`
	}
	decodeBody(t, recorder, &result)
	if result.Count != 2 {
		t.Fatalf("count = %d, want 2", result.Count)
	}
	if result.Events[0].Event != "signup" || result.Events[1].Event != "purchase" {
		t.Errorf("events out of order: %q, %q", result.Events[0].Event, result.Events[1].Event)
	}
}

func TestIngestRequiresBearerToken(t *testing.T) {
	_, handler := newTestMock(t, nil)

	recorder := doRequest(t, handler, http.MethodPost, "/e", batchBody("signup"), false)
	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
}

func TestIngestRejectsMalformedBatch(t *testing.T) {
	_, handler := newTestMock(t, nil)

	recorder := doRequest(t, handler, http.MethodPost, "/e", "{not json", true)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want %d", recorder.Code, http.StatusBadRequest)
	}

	recorder = doRequest(t, handler, http.MethodPost, "/e", `{"events":[]}`, true)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("empty batch: status = %d, want %d", recorder.Code, http.StatusBadRequest)
	}
}

func TestIngestAcceptsGzip(t *testing.T) {
	_, handler := newTestMock(t, nil)

	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	if _, err := zw.Write([]byte(batchBody("signup"))); err != nil {
		t.Fatalf("compressing body: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing gzip writer: %v", err)
	}

	request := httptest.NewRequest(http.MethodPost, "/e", &compressed)
	request.Header.Set("Authorization", "Bearer test-token")
	request.Header.Set("Content-Encoding", "gzip")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", recorder.Code, http.StatusOK, recorder.Body.String())
	}

	recorder = doRequest(t, handler, http.MethodGet, "/admin/events", "", false)
	var result struct {
		Count int `json:"count"`
	}
	decodeBody(t, recorder, &result)
	if result.Count != 1 {
		t.Errorf("count = %d, want 1", result.Count)
	}
}

// --- failure injection ---

func TestFailureInjection(t *testing.T) {
	_, handler := newTestMock(t, nil)

	recorder := doRequest(t, handler, http.MethodPost, "/admin/fail", `{"count":2,"status":503}`, false)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("arming failures: status = %d, want %d", recorder.Code, http.StatusNoContent)
	}

	for attempt := range 2 {
		recorder = doRequest(t, handler, http.MethodPost, "/e", batchBody("signup"), true)
		if recorder.Code != http.StatusServiceUnavailable {
			t.Fatalf("attempt %d: status = %d, want %d", attempt, recorder.Code, http.StatusServiceUnavailable)
		}
	}
	recorder = doRequest(t, handler, http.MethodPost, "/e", batchBody("signup"), true)
	if recorder.Code != http.StatusOK {
		t.Fatalf("after failures exhausted: status = %d, want %d", recorder.Code, http.StatusOK)
	}

	recorder = doRequest(t, handler, http.MethodGet, "/admin/events", "", false)
	var result struct {
		Count int `json:"count"`
	}
	decodeBody(t, recorder, &result)
	if result.Count != 1 {
		t.Errorf("stored events = %d, want 1 (failed batches must not be stored)", result.Count)
	}
}

func TestFailureInjectionValidation(t *testing.T) {
	_, handler := newTestMock(t, nil)

	cases := []struct {
		name string
		body string
	}{
		{"negative count", `{"count":-1}`},
		{"status too low", `{"count":1,"status":200}`},
		{"status too high", `{"count":1,"status":700}`},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := doRequest(t, handler, http.MethodPost, "/admin/fail", testCase.body, false)
			if recorder.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", recorder.Code, http.StatusBadRequest)
			}
		})
	}
}

// --- flags ---

func TestFlagsServeAndReplace(t *testing.T) {
	_, handler := newTestMock(t, map[string]event.FlagValue{"dark-mode": true})

	recorder := doRequest(t, handler, http.MethodGet, "/flags", "", true)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusOK)
	}
	var snapshot struct {
		Flags map[string]event.FlagValue `json:"flags"`
	}
	decodeBody(t, recorder, &snapshot)
	if enabled, ok := snapshot.Flags["dark-mode"].(bool); !ok || !enabled {
		t.Fatalf("dark-mode = %v, want true", snapshot.Flags["dark-mode"])
	}

	recorder = doRequest(t, handler, http.MethodPost, "/admin/flags", `{"flags":{"checkout-v2":"variant-b"}}`, false)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("replacing flags: status = %d, want %d", recorder.Code, http.StatusNoContent)
	}

	recorder = doRequest(t, handler, http.MethodGet, "/flags", "", true)
	// json.Unmarshal merges into a non-nil map; reset the target so
	// this decode reflects only the latest response.
	snapshot.Flags = nil
	decodeBody(t, recorder, &snapshot)
	if len(snapshot.Flags) != 1 {
		t.Fatalf("flags = %v, want only checkout-v2", snapshot.Flags)
	}
	if variant, _ := snapshot.Flags["checkout-v2"].(string); variant != "variant-b" {
		t.Errorf("checkout-v2 = %v, want variant-b", snapshot.Flags["checkout-v2"])
	}
}

// --- entities ---

func TestEntityLifecycle(t *testing.T) {
	_, handler := newTestMock(t, nil)

	recorder := doRequest(t, handler, http.MethodPost, "/entities/lasers", `{"name":"alpha"}`, true)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, want %d: %s", recorder.Code, http.StatusCreated, recorder.Body.String())
	}
	var created map[string]any
	decodeBody(t, recorder, &created)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatal("create did not assign an id")
	}

	recorder = doRequest(t, handler, http.MethodGet, "/entities/lasers/"+id, "", true)
	if recorder.Code != http.StatusOK {
		t.Fatalf("get: status = %d, want %d", recorder.Code, http.StatusOK)
	}

	recorder = doRequest(t, handler, http.MethodPatch, "/entities/lasers/"+id, `{"status":"armed"}`, true)
	if recorder.Code != http.StatusOK {
		t.Fatalf("patch: status = %d, want %d", recorder.Code, http.StatusOK)
	}
	var updated map[string]any
	decodeBody(t, recorder, &updated)
	if updated["name"] != "alpha" || updated["status"] != "armed" {
		t.Errorf("patch result = %v, want merged fields", updated)
	}

	recorder = doRequest(t, handler, http.MethodGet, "/entities/lasers?status=armed", "", true)
	var matched []map[string]any
	decodeBody(t, recorder, &matched)
	if len(matched) != 1 {
		t.Fatalf("filtered list = %d entities, want 1", len(matched))
	}

	recorder = doRequest(t, handler, http.MethodGet, "/entities/lasers?status=idle", "", true)
	decodeBody(t, recorder, &matched)
	if len(matched) != 0 {
		t.Fatalf("non-matching filter = %d entities, want 0", len(matched))
	}

	recorder = doRequest(t, handler, http.MethodDelete, "/entities/lasers/"+id, "", true)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d, want %d", recorder.Code, http.StatusNoContent)
	}
	recorder = doRequest(t, handler, http.MethodGet, "/entities/lasers/"+id, "", true)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("get after delete: status = %d, want %d", recorder.Code, http.StatusNotFound)
	}
	recorder = doRequest(t, handler, http.MethodDelete, "/entities/lasers/"+id, "", true)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("double delete: status = %d, want %d", recorder.Code, http.StatusNotFound)
	}
}

func TestEntityCreateKeepsProvidedID(t *testing.T) {
	_, handler := newTestMock(t, nil)

	recorder := doRequest(t, handler, http.MethodPost, "/entities/lasers", `{"id":"laser-7","name":"beta"}`, true)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusCreated)
	}
	var created map[string]any
	decodeBody(t, recorder, &created)
	if created["id"] != "laser-7" {
		t.Errorf("id = %v, want laser-7", created["id"])
	}
}

func TestEntityUpdateMissingReturns404(t *testing.T) {
	_, handler := newTestMock(t, nil)

	recorder := doRequest(t, handler, http.MethodPatch, "/entities/lasers/ghost", `{"status":"armed"}`, true)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", recorder.Code, http.StatusNotFound)
	}
}

func TestEntityListSortedByID(t *testing.T) {
	_, handler := newTestMock(t, nil)

	for _, id := range []string{"laser-9", "laser-1", "laser-5"} {
		body := fmt.Sprintf(`{"id":%q}`, id)
		recorder := doRequest(t, handler, http.MethodPost, "/entities/lasers", body, true)
		if recorder.Code != http.StatusCreated {
			t.Fatalf("seeding %s: status = %d", id, recorder.Code)
		}
	}

	recorder := doRequest(t, handler, http.MethodGet, "/entities/lasers", "", true)
	var listed []map[string]any
	decodeBody(t, recorder, &listed)
	var ids []string
	for _, entity := range listed {
		ids = append(ids, entity["id"].(string))
	}
	want := []string{"laser-1", "laser-5", "laser-9"}
	for i, id := range want {
		if ids[i] != id {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestEntityVerbEchoes(t *testing.T) {
	_, handler := newTestMock(t, nil)

	doRequest(t, handler, http.MethodPost, "/entities/lasers", `{"id":"laser-7"}`, true)

	recorder := doRequest(t, handler, http.MethodPost, "/entities/lasers/laser-7/fire", `{"power":9}`, true)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", recorder.Code, http.StatusOK, recorder.Body.String())
	}
	var result struct {
		ID   string         `json:"id"`
		Verb string         `json:"verb"`
		Args map[string]any `json:"args"`
		OK   bool           `json:"ok"`
	}
	decodeBody(t, recorder, &result)
	if result.ID != "laser-7" || result.Verb != "fire" || !result.OK {
		t.Errorf("verb result = %+v", result)
	}
	if result.Args["power"] != float64(9) {
		t.Errorf("args = %v, want power 9", result.Args)
	}

	recorder = doRequest(t, handler, http.MethodPost, "/entities/lasers/ghost/fire", "", true)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("verb on missing entity: status = %d, want %d", recorder.Code, http.StatusNotFound)
	}
}

func TestAdminSeedBulk(t *testing.T) {
	_, handler := newTestMock(t, nil)

	seed := `[{"id":"room-1","name":"bridge"},{"name":"engine"}]`
	recorder := doRequest(t, handler, http.MethodPost, "/admin/entities/rooms", seed, false)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", recorder.Code, http.StatusOK, recorder.Body.String())
	}
	var result map[string]int
	decodeBody(t, recorder, &result)
	if result["seeded"] != 2 {
		t.Fatalf("seeded = %d, want 2", result["seeded"])
	}

	recorder = doRequest(t, handler, http.MethodGet, "/entities/rooms", "", true)
	var listed []map[string]any
	decodeBody(t, recorder, &listed)
	if len(listed) != 2 {
		t.Fatalf("listed = %d entities, want 2", len(listed))
	}
	for _, entity := range listed {
		if id, _ := entity["id"].(string); id == "" {
			t.Errorf("entity %v has no id", entity)
		}
	}
}

// --- admin event queries ---

func TestAdminEventsTypeFilter(t *testing.T) {
	_, handler := newTestMock(t, nil)

	batch := event.Batch{Events: []event.Event{
		{Type: event.TypeTrack, Event: "signup", DistinctID: "user-1"},
		{Type: event.TypeException, DistinctID: "user-1"},
	}}
	raw, _ := json.Marshal(batch)
	doRequest(t, handler, http.MethodPost, "/e", string(raw), true)

	recorder := doRequest(t, handler, http.MethodGet, "/admin/events?type=exception", "", false)
	var result struct {
		Count  int           `json:"count"`
		Events []event.Event `json:"events"`
	}
	decodeBody(t, recorder, &result)
	if result.Count != 1 {
		t.Fatalf("count = %d, want 1", result.Count)
	}
	if result.Events[0].Type != event.TypeException {
		t.Errorf("type = %q, want exception", result.Events[0].Type)
	}
}

func TestAdminEventsLongPollWakesOnIngest(t *testing.T) {
	_, handler := newTestMock(t, nil)

	type pollResult struct {
		code  int
		count int
	}
	done := make(chan pollResult, 1)
	go func() {
		recorder := doRequest(t, handler, http.MethodGet, "/admin/events?min=1&timeout=5s", "", false)
		var result struct {
			Count int `json:"count"`
		}
		json.Unmarshal(recorder.Body.Bytes(), &result)
		done <- pollResult{code: recorder.Code, count: result.Count}
	}()

	// Give the poller a moment to register its waiter, then ingest.
	time.Sleep(50 * time.Millisecond)
	doRequest(t, handler, http.MethodPost, "/e", batchBody("signup"), true)

	select {
	case result := <-done:
		if result.code != http.StatusOK {
			t.Fatalf("status = %d, want %d", result.code, http.StatusOK)
		}
		if result.count < 1 {
			t.Fatalf("count = %d, want >= 1", result.count)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("long-poll did not wake after ingest")
	}
}

func TestAdminEventsTimeoutReturnsCurrent(t *testing.T) {
	_, handler := newTestMock(t, nil)

	start := time.Now()
	recorder := doRequest(t, handler, http.MethodGet, "/admin/events?min=3&timeout=100ms", "", false)
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Fatalf("returned after %v, want the full 100ms timeout", elapsed)
	}
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusOK)
	}
	var result struct {
		Count int `json:"count"`
	}
	decodeBody(t, recorder, &result)
	if result.Count != 0 {
		t.Errorf("count = %d, want 0", result.Count)
	}
}

func TestAdminEventsBadParameters(t *testing.T) {
	_, handler := newTestMock(t, nil)

	recorder := doRequest(t, handler, http.MethodGet, "/admin/events?min=abc", "", false)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("bad min: status = %d, want %d", recorder.Code, http.StatusBadRequest)
	}
	recorder = doRequest(t, handler, http.MethodGet, "/admin/events?timeout=forever", "", false)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("bad timeout: status = %d, want %d", recorder.Code, http.StatusBadRequest)
	}
}

// --- reset ---

func TestAdminResetRestoresSeedState(t *testing.T) {
	_, handler := newTestMock(t, map[string]event.FlagValue{"dark-mode": true})

	doRequest(t, handler, http.MethodPost, "/e", batchBody("signup"), true)
	doRequest(t, handler, http.MethodPost, "/admin/flags", `{"flags":{"other":1}}`, false)
	doRequest(t, handler, http.MethodPost, "/entities/lasers", `{"id":"laser-7"}`, true)
	doRequest(t, handler, http.MethodPost, "/admin/fail", `{"count":5,"status":503}`, false)

	recorder := doRequest(t, handler, http.MethodPost, "/admin/reset", "", false)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("reset: status = %d, want %d", recorder.Code, http.StatusNoContent)
	}

	recorder = doRequest(t, handler, http.MethodGet, "/admin/events", "", false)
	var events struct {
		Count int `json:"count"`
	}
	decodeBody(t, recorder, &events)
	if events.Count != 0 {
		t.Errorf("events after reset = %d, want 0", events.Count)
	}

	recorder = doRequest(t, handler, http.MethodGet, "/flags", "", true)
	var snapshot struct {
		Flags map[string]event.FlagValue `json:"flags"`
	}
	decodeBody(t, recorder, &snapshot)
	if enabled, ok := snapshot.Flags["dark-mode"].(bool); !ok || !enabled || len(snapshot.Flags) != 1 {
		t.Errorf("flags after reset = %v, want the seed set", snapshot.Flags)
	}

	recorder = doRequest(t, handler, http.MethodGet, "/entities/lasers/laser-7", "", true)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("entity after reset: status = %d, want %d", recorder.Code, http.StatusNotFound)
	}

	// Failure injection is disarmed: ingest succeeds immediately.
	recorder = doRequest(t, handler, http.MethodPost, "/e", batchBody("signup"), true)
	if recorder.Code != http.StatusOK {
		t.Errorf("ingest after reset: status = %d, want %d", recorder.Code, http.StatusOK)
	}
}
