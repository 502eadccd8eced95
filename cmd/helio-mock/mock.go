// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/heliohq/helio-go/lib/schema/event"
)

// maxBodySize bounds any request body the mock reads into memory.
const maxBodySize = 8 << 20

// defaultWaitTimeout bounds /admin/events long-polls that do not name
// their own timeout.
const defaultWaitTimeout = 10 * time.Second

// mockServer holds the mock's entire state in memory.
type mockServer struct {
	logger    *slog.Logger
	seedFlags map[string]event.FlagValue

	mu       sync.Mutex
	events   []event.Event
	flags    map[string]event.FlagValue
	entities map[string]map[string]map[string]any

	// failures remaining to inject on /e, and the status to fail with.
	failCount  int
	failStatus int

	// waiters are closed and discarded whenever events arrive, waking
	// /admin/events long-polls.
	waiters []chan struct{}
}

func newMockServer(logger *slog.Logger, seedFlags map[string]event.FlagValue) *mockServer {
	if seedFlags == nil {
		seedFlags = map[string]event.FlagValue{}
	}
	return &mockServer{
		logger:    logger,
		seedFlags: seedFlags,
		flags:     cloneFlags(seedFlags),
		entities:  make(map[string]map[string]map[string]any),
	}
}

func cloneFlags(flags map[string]event.FlagValue) map[string]event.FlagValue {
	cloned := make(map[string]event.FlagValue, len(flags))
	for key, value := range flags {
		cloned[key] = value
	}
	return cloned
}

// routes builds the full handler tree: the API surface the SDK talks
// to, plus the admin surface for tests.
func (m *mockServer) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /e", m.requireAuth(m.handleIngest))
	mux.HandleFunc("GET /flags", m.requireAuth(m.handleFlags))
	mux.HandleFunc("GET /entities/{type}", m.requireAuth(m.handleEntityList))
	mux.HandleFunc("POST /entities/{type}", m.requireAuth(m.handleEntityCreate))
	mux.HandleFunc("GET /entities/{type}/{id}", m.requireAuth(m.handleEntityGet))
	mux.HandleFunc("PATCH /entities/{type}/{id}", m.requireAuth(m.handleEntityUpdate))
	mux.HandleFunc("DELETE /entities/{type}/{id}", m.requireAuth(m.handleEntityDelete))
	mux.HandleFunc("POST /entities/{type}/{id}/{verb}", m.requireAuth(m.handleEntityVerb))

	mux.HandleFunc("GET /admin/events", m.handleAdminEvents)
	mux.HandleFunc("POST /admin/flags", m.handleAdminFlags)
	mux.HandleFunc("POST /admin/entities/{type}", m.handleAdminSeed)
	mux.HandleFunc("POST /admin/fail", m.handleAdminFail)
	mux.HandleFunc("POST /admin/reset", m.handleAdminReset)

	return mux
}

// requireAuth enforces a bearer token on the API surface. Any token is
// accepted; the mock verifies presence, not validity.
func (m *mockServer) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		if request.Header.Get("Authorization") == "" {
			writeError(writer, http.StatusUnauthorized, "missing bearer token")
			return
		}
		m.logger.Debug("request", "method", request.Method, "path", request.URL.Path)
		next(writer, request)
	}
}

func writeJSON(writer http.ResponseWriter, status int, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		http.Error(writer, err.Error(), http.StatusInternalServerError)
		return
	}
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	writer.Write(raw)
}

func writeError(writer http.ResponseWriter, status int, message string) {
	writeJSON(writer, status, map[string]string{"error": message})
}

// readBody reads a bounded request body, transparently decompressing
// gzip, which the SDK applies to large batches.
func readBody(request *http.Request) ([]byte, error) {
	var reader io.Reader = request.Body
	if request.Header.Get("Content-Encoding") == "gzip" {
		unzipper, err := gzip.NewReader(request.Body)
		if err != nil {
			return nil, fmt.Errorf("bad gzip body: %w", err)
		}
		defer unzipper.Close()
		reader = unzipper
	}
	data, err := io.ReadAll(io.LimitReader(reader, maxBodySize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxBodySize {
		return nil, fmt.Errorf("body exceeds %d byte limit", maxBodySize)
	}
	return data, nil
}

func (m *mockServer) handleIngest(writer http.ResponseWriter, request *http.Request) {
	m.mu.Lock()
	if m.failCount > 0 {
		m.failCount--
		status := m.failStatus
		remaining := m.failCount
		m.mu.Unlock()
		m.logger.Info("injected failure", "status", status, "remaining", remaining)
		writeError(writer, status, "injected failure")
		return
	}
	m.mu.Unlock()

	body, err := readBody(request)
	if err != nil {
		writeError(writer, http.StatusBadRequest, err.Error())
		return
	}
	var batch event.Batch
	if err := json.Unmarshal(body, &batch); err != nil {
		writeError(writer, http.StatusBadRequest, "malformed batch: "+err.Error())
		return
	}
	if len(batch.Events) == 0 {
		writeError(writer, http.StatusBadRequest, "batch must contain at least one event")
		return
	}

	m.mu.Lock()
	m.events = append(m.events, batch.Events...)
	total := len(m.events)
	waiters := m.waiters
	m.waiters = nil
	m.mu.Unlock()

	for _, waiter := range waiters {
		close(waiter)
	}

	m.logger.Debug("batch stored", "events", len(batch.Events), "total", total)
	writer.WriteHeader(http.StatusOK)
}

func (m *mockServer) handleFlags(writer http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	payload := struct {
		Flags map[string]event.FlagValue `json:"flags"`
	}{Flags: cloneFlags(m.flags)}
	m.mu.Unlock()
	writeJSON(writer, http.StatusOK, payload)
}

// entityBucket returns the store for one entity type, creating it when
// needed. Must be called with m.mu held.
func (m *mockServer) entityBucket(entityType string) map[string]map[string]any {
	bucket, ok := m.entities[entityType]
	if !ok {
		bucket = make(map[string]map[string]any)
		m.entities[entityType] = bucket
	}
	return bucket
}

func (m *mockServer) handleEntityList(writer http.ResponseWriter, request *http.Request) {
	entityType := request.PathValue("type")
	filter := request.URL.Query()

	m.mu.Lock()
	bucket := m.entityBucket(entityType)
	var matched []map[string]any
	for _, entity := range bucket {
		if entityMatches(entity, filter) {
			matched = append(matched, entity)
		}
	}
	m.mu.Unlock()

	// Stable output order for assertions and watch streams.
	slices.SortFunc(matched, func(a, b map[string]any) int {
		idA, _ := a["id"].(string)
		idB, _ := b["id"].(string)
		if idA < idB {
			return -1
		}
		if idA > idB {
			return 1
		}
		return 0
	})
	if matched == nil {
		matched = []map[string]any{}
	}
	writeJSON(writer, http.StatusOK, matched)
}

// entityMatches applies the query filter: every parameter must equal
// the entity's rendered field value.
func entityMatches(entity map[string]any, filter map[string][]string) bool {
	for key, values := range filter {
		field, ok := entity[key]
		if !ok {
			return false
		}
		if len(values) > 0 && fmt.Sprint(field) != values[0] {
			return false
		}
	}
	return true
}

func (m *mockServer) handleEntityGet(writer http.ResponseWriter, request *http.Request) {
	entityType := request.PathValue("type")
	id := request.PathValue("id")

	m.mu.Lock()
	entity, ok := m.entityBucket(entityType)[id]
	m.mu.Unlock()
	if !ok {
		writeError(writer, http.StatusNotFound, fmt.Sprintf("no %s with id %s", entityType, id))
		return
	}
	writeJSON(writer, http.StatusOK, entity)
}

func (m *mockServer) handleEntityCreate(writer http.ResponseWriter, request *http.Request) {
	entityType := request.PathValue("type")
	body, err := readBody(request)
	if err != nil {
		writeError(writer, http.StatusBadRequest, err.Error())
		return
	}
	var entity map[string]any
	if err := json.Unmarshal(body, &entity); err != nil {
		writeError(writer, http.StatusBadRequest, "malformed entity: "+err.Error())
		return
	}
	if entity == nil {
		entity = map[string]any{}
	}
	id, _ := entity["id"].(string)
	if id == "" {
		id = uuid.NewString()
		entity["id"] = id
	}

	m.mu.Lock()
	m.entityBucket(entityType)[id] = entity
	m.mu.Unlock()

	writeJSON(writer, http.StatusCreated, entity)
}

func (m *mockServer) handleEntityUpdate(writer http.ResponseWriter, request *http.Request) {
	entityType := request.PathValue("type")
	id := request.PathValue("id")
	body, err := readBody(request)
	if err != nil {
		writeError(writer, http.StatusBadRequest, err.Error())
		return
	}
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		writeError(writer, http.StatusBadRequest, "malformed update: "+err.Error())
		return
	}

	m.mu.Lock()
	entity, ok := m.entityBucket(entityType)[id]
	if ok {
		for key, value := range fields {
			if key == "id" {
				continue
			}
			entity[key] = value
		}
	}
	m.mu.Unlock()
	if !ok {
		writeError(writer, http.StatusNotFound, fmt.Sprintf("no %s with id %s", entityType, id))
		return
	}
	writeJSON(writer, http.StatusOK, entity)
}

func (m *mockServer) handleEntityDelete(writer http.ResponseWriter, request *http.Request) {
	entityType := request.PathValue("type")
	id := request.PathValue("id")

	m.mu.Lock()
	bucket := m.entityBucket(entityType)
	_, ok := bucket[id]
	delete(bucket, id)
	m.mu.Unlock()
	if !ok {
		writeError(writer, http.StatusNotFound, fmt.Sprintf("no %s with id %s", entityType, id))
		return
	}
	writer.WriteHeader(http.StatusNoContent)
}

func (m *mockServer) handleEntityVerb(writer http.ResponseWriter, request *http.Request) {
	entityType := request.PathValue("type")
	id := request.PathValue("id")
	verb := request.PathValue("verb")
	body, err := readBody(request)
	if err != nil {
		writeError(writer, http.StatusBadRequest, err.Error())
		return
	}

	m.mu.Lock()
	_, ok := m.entityBucket(entityType)[id]
	m.mu.Unlock()
	if !ok {
		writeError(writer, http.StatusNotFound, fmt.Sprintf("no %s with id %s", entityType, id))
		return
	}

	var args any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &args); err != nil {
			writeError(writer, http.StatusBadRequest, "malformed verb args: "+err.Error())
			return
		}
	}
	writeJSON(writer, http.StatusOK, map[string]any{
		"id":   id,
		"verb": verb,
		"args": args,
		"ok":   true,
	})
}

func (m *mockServer) handleAdminEvents(writer http.ResponseWriter, request *http.Request) {
	query := request.URL.Query()
	typeFilter := query.Get("type")

	minCount := 0
	if raw := query.Get("min"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &minCount); err != nil {
			writeError(writer, http.StatusBadRequest, "bad min: "+raw)
			return
		}
	}
	timeout := defaultWaitTimeout
	if raw := query.Get("timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			writeError(writer, http.StatusBadRequest, "bad timeout: "+raw)
			return
		}
		timeout = parsed
	}

	deadline := time.After(timeout)
	for {
		m.mu.Lock()
		matched := filterEvents(m.events, typeFilter)
		if len(matched) >= minCount {
			m.mu.Unlock()
			writeJSON(writer, http.StatusOK, map[string]any{
				"count":  len(matched),
				"events": matched,
			})
			return
		}
		waiter := make(chan struct{})
		m.waiters = append(m.waiters, waiter)
		m.mu.Unlock()

		select {
		case <-waiter:
		case <-deadline:
			m.mu.Lock()
			matched := filterEvents(m.events, typeFilter)
			m.mu.Unlock()
			writeJSON(writer, http.StatusOK, map[string]any{
				"count":  len(matched),
				"events": matched,
			})
			return
		case <-request.Context().Done():
			return
		}
	}
}

func filterEvents(events []event.Event, typeFilter string) []event.Event {
	matched := make([]event.Event, 0, len(events))
	for _, ev := range events {
		if typeFilter != "" && string(ev.Type) != typeFilter {
			continue
		}
		matched = append(matched, ev)
	}
	return matched
}

func (m *mockServer) handleAdminFlags(writer http.ResponseWriter, request *http.Request) {
	body, err := readBody(request)
	if err != nil {
		writeError(writer, http.StatusBadRequest, err.Error())
		return
	}
	var payload struct {
		Flags map[string]event.FlagValue `json:"flags"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(writer, http.StatusBadRequest, "malformed flag set: "+err.Error())
		return
	}
	if payload.Flags == nil {
		payload.Flags = map[string]event.FlagValue{}
	}

	m.mu.Lock()
	m.flags = payload.Flags
	m.mu.Unlock()

	m.logger.Info("flag set replaced", "count", len(payload.Flags))
	writer.WriteHeader(http.StatusNoContent)
}

func (m *mockServer) handleAdminSeed(writer http.ResponseWriter, request *http.Request) {
	entityType := request.PathValue("type")
	body, err := readBody(request)
	if err != nil {
		writeError(writer, http.StatusBadRequest, err.Error())
		return
	}
	var seed []map[string]any
	if err := json.Unmarshal(body, &seed); err != nil {
		writeError(writer, http.StatusBadRequest, "seed must be a JSON array of entities: "+err.Error())
		return
	}

	m.mu.Lock()
	bucket := m.entityBucket(entityType)
	for _, entity := range seed {
		id, _ := entity["id"].(string)
		if id == "" {
			id = uuid.NewString()
			entity["id"] = id
		}
		bucket[id] = entity
	}
	m.mu.Unlock()

	m.logger.Info("entities seeded", "type", entityType, "count", len(seed))
	writeJSON(writer, http.StatusOK, map[string]int{"seeded": len(seed)})
}

func (m *mockServer) handleAdminFail(writer http.ResponseWriter, request *http.Request) {
	body, err := readBody(request)
	if err != nil {
		writeError(writer, http.StatusBadRequest, err.Error())
		return
	}
	var payload struct {
		Count  int `json:"count"`
		Status int `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(writer, http.StatusBadRequest, "malformed fail request: "+err.Error())
		return
	}
	if payload.Count < 0 {
		writeError(writer, http.StatusBadRequest, "count must not be negative")
		return
	}
	if payload.Status == 0 {
		payload.Status = http.StatusInternalServerError
	}
	if payload.Status < 400 || payload.Status > 599 {
		writeError(writer, http.StatusBadRequest, "status must be a 4xx or 5xx code")
		return
	}

	m.mu.Lock()
	m.failCount = payload.Count
	m.failStatus = payload.Status
	m.mu.Unlock()

	m.logger.Info("failure injection armed", "count", payload.Count, "status", payload.Status)
	writer.WriteHeader(http.StatusNoContent)
}

func (m *mockServer) handleAdminReset(writer http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	m.events = nil
	m.flags = cloneFlags(m.seedFlags)
	m.entities = make(map[string]map[string]map[string]any)
	m.failCount = 0
	m.failStatus = 0
	waiters := m.waiters
	m.waiters = nil
	m.mu.Unlock()

	// Wake long-polls so they observe the reset instead of hanging on
	// a count that can no longer be reached.
	for _, waiter := range waiters {
		close(waiter)
	}

	m.logger.Info("mock reset")
	writer.WriteHeader(http.StatusNoContent)
}
