// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/heliohq/helio-go/lib/schema/event"
)

// newTestClient creates a Client pointed at the given httptest.Server.
// httptest binds to 127.0.0.1, which the loopback exemption admits
// over plain HTTP.
func newTestClient(t *testing.T, server *httptest.Server, options ...func(*Config)) *Client {
	t.Helper()
	config := Config{
		Endpoint:   server.URL,
		APIKey:     func() string { return "test-key" },
		HTTPClient: server.Client(),
	}
	for _, option := range options {
		option(&config)
	}
	client, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func trackEvent(name string) event.Event {
	return event.Event{
		Type:       event.TypeTrack,
		Event:      name,
		DistinctID: "user-1",
		Timestamp:  time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{APIKey: func() string { return "k" }}); err == nil {
		t.Error("expected error for missing endpoint")
	}
	if _, err := New(Config{Endpoint: "https://ingest.helio.dev"}); err == nil {
		t.Error("expected error for missing API key source")
	}
	if _, err := New(Config{Endpoint: "ftp://ingest.helio.dev", APIKey: func() string { return "k" }}); err == nil {
		t.Error("expected error for non-HTTP scheme")
	}
}

func TestNew_HTTPSEnforcement(t *testing.T) {
	apiKey := func() string { return "k" }

	_, err := New(Config{Endpoint: "http://ingest.helio.dev", APIKey: apiKey})
	if err == nil {
		t.Fatal("expected error for plain HTTP to a remote host")
	}
	if !strings.Contains(err.Error(), "loopback") {
		t.Errorf("unexpected error: %v", err)
	}

	for _, endpoint := range []string{
		"https://ingest.helio.dev",
		"http://localhost:8273",
		"http://127.0.0.1:8273",
		"http://[::1]:8273",
	} {
		if _, err := New(Config{Endpoint: endpoint, APIKey: apiKey}); err != nil {
			t.Errorf("New(%q): unexpected error: %v", endpoint, err)
		}
	}
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	client, err := New(Config{
		Endpoint: "https://ingest.helio.dev/",
		APIKey:   func() string { return "k" },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := client.Endpoint(); got != "https://ingest.helio.dev" {
		t.Errorf("Endpoint() = %q, want trailing slash trimmed", got)
	}
}

func TestClient_AuthAndUserAgentHeaders(t *testing.T) {
	var receivedAuth, receivedAgent string
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		receivedAuth = request.Header.Get("Authorization")
		receivedAgent = request.Header.Get("User-Agent")
		writer.Write([]byte(`{"flags":{}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	if _, err := client.FetchFlags(context.Background()); err != nil {
		t.Fatalf("FetchFlags: %v", err)
	}

	if receivedAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want %q", receivedAuth, "Bearer test-key")
	}
	if !strings.HasPrefix(receivedAgent, "helio-go/") {
		t.Errorf("User-Agent = %q, want helio-go/ prefix", receivedAgent)
	}
}

// The API key function is consulted on every request, so a rotated
// credential takes effect without rebuilding the client.
func TestClient_APIKeyLiveRead(t *testing.T) {
	var received []string
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		received = append(received, request.Header.Get("Authorization"))
		writer.Write([]byte(`{"flags":{}}`))
	}))
	defer server.Close()

	key := "first"
	client := newTestClient(t, server, func(config *Config) {
		config.APIKey = func() string { return key }
	})

	if _, err := client.FetchFlags(context.Background()); err != nil {
		t.Fatalf("FetchFlags: %v", err)
	}
	key = "second"
	if _, err := client.FetchFlags(context.Background()); err != nil {
		t.Fatalf("FetchFlags: %v", err)
	}

	want := []string{"Bearer first", "Bearer second"}
	for i, auth := range received {
		if auth != want[i] {
			t.Errorf("request %d Authorization = %q, want %q", i, auth, want[i])
		}
	}
}

func TestSendBatch_PostsToIngestPath(t *testing.T) {
	var (
		receivedMethod string
		receivedPath   string
		receivedType   string
		receivedBatch  event.Batch
	)
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		receivedMethod = request.Method
		receivedPath = request.URL.Path
		receivedType = request.Header.Get("Content-Type")
		if err := json.NewDecoder(request.Body).Decode(&receivedBatch); err != nil {
			t.Errorf("decoding batch: %v", err)
		}
		writer.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	events := []event.Event{trackEvent("signup"), trackEvent("purchase")}
	if err := client.SendBatch(context.Background(), events); err != nil {
		t.Fatalf("SendBatch: %v", err)
	}

	if receivedMethod != http.MethodPost || receivedPath != "/e" {
		t.Errorf("request = %s %s, want POST /e", receivedMethod, receivedPath)
	}
	if receivedType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", receivedType)
	}
	if len(receivedBatch.Events) != 2 {
		t.Fatalf("received %d events, want 2", len(receivedBatch.Events))
	}
	if receivedBatch.Events[0].Event != "signup" || receivedBatch.Events[1].Event != "purchase" {
		t.Errorf("event order = %q, %q; want signup, purchase",
			receivedBatch.Events[0].Event, receivedBatch.Events[1].Event)
	}
}

func TestSendBatch_EmptyBatchIsNoop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		t.Error("server should not be contacted for an empty batch")
	}))
	defer server.Close()

	client := newTestClient(t, server)
	if err := client.SendBatch(context.Background(), nil); err != nil {
		t.Fatalf("SendBatch: %v", err)
	}
}

// largeBatch builds a batch whose JSON encoding comfortably exceeds
// the compression threshold.
func largeBatch() []event.Event {
	events := make([]event.Event, 0, 64)
	for i := 0; i < 64; i++ {
		ev := trackEvent("bulk_import")
		ev.Properties = event.Properties{
			"payload": strings.Repeat("row-data-", 8),
			"index":   i,
		}
		events = append(events, ev)
	}
	return events
}

func TestSendBatch_CompressesLargeBodies(t *testing.T) {
	var (
		receivedEncoding string
		receivedBatch    event.Batch
	)
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		receivedEncoding = request.Header.Get("Content-Encoding")
		reader, err := gzip.NewReader(request.Body)
		if err != nil {
			t.Errorf("gzip reader: %v", err)
			return
		}
		if err := json.NewDecoder(reader).Decode(&receivedBatch); err != nil {
			t.Errorf("decoding batch: %v", err)
		}
		writer.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	if err := client.SendBatch(context.Background(), largeBatch()); err != nil {
		t.Fatalf("SendBatch: %v", err)
	}

	if receivedEncoding != "gzip" {
		t.Errorf("Content-Encoding = %q, want gzip", receivedEncoding)
	}
	if len(receivedBatch.Events) != 64 {
		t.Errorf("received %d events after decompression, want 64", len(receivedBatch.Events))
	}
}

func TestSendBatch_CompressionDisabled(t *testing.T) {
	var receivedEncoding string
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		receivedEncoding = request.Header.Get("Content-Encoding")
		var batch event.Batch
		if err := json.NewDecoder(request.Body).Decode(&batch); err != nil {
			t.Errorf("decoding raw batch: %v", err)
		}
		writer.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server, func(config *Config) {
		config.DisableCompression = true
	})
	if err := client.SendBatch(context.Background(), largeBatch()); err != nil {
		t.Fatalf("SendBatch: %v", err)
	}

	if receivedEncoding != "" {
		t.Errorf("Content-Encoding = %q, want none", receivedEncoding)
	}
}

func TestSendBatch_SmallBodiesStayRaw(t *testing.T) {
	var receivedEncoding string
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		receivedEncoding = request.Header.Get("Content-Encoding")
		writer.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	if err := client.SendBatch(context.Background(), []event.Event{trackEvent("tiny")}); err != nil {
		t.Fatalf("SendBatch: %v", err)
	}

	if receivedEncoding != "" {
		t.Errorf("Content-Encoding = %q, want none for a small body", receivedEncoding)
	}
}

func TestFetchFlags(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodGet || request.URL.Path != "/flags" {
			t.Errorf("request = %s %s, want GET /flags", request.Method, request.URL.Path)
		}
		writer.Write([]byte(`{"flags":{"dark-mode":true,"variant":"treatment","rollout":0.5}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	flags, err := client.FetchFlags(context.Background())
	if err != nil {
		t.Fatalf("FetchFlags: %v", err)
	}

	if got := flags["dark-mode"]; got != true {
		t.Errorf("dark-mode = %v, want true", got)
	}
	if got := flags["variant"]; got != "treatment" {
		t.Errorf("variant = %v, want treatment", got)
	}
	if got := flags["rollout"]; got != 0.5 {
		t.Errorf("rollout = %v, want 0.5", got)
	}
}

func TestFetchFlags_MissingKeyYieldsEmptyMap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	flags, err := client.FetchFlags(context.Background())
	if err != nil {
		t.Fatalf("FetchFlags: %v", err)
	}
	if flags == nil {
		t.Fatal("FetchFlags returned nil map")
	}
	if len(flags) != 0 {
		t.Errorf("flags = %v, want empty", flags)
	}
}

func TestAPIError_MessageExtraction(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
	}{
		{"error field", http.StatusBadRequest, `{"error":"malformed batch"}`, "malformed batch"},
		{"message field", http.StatusForbidden, `{"message":"key revoked"}`, "key revoked"},
		{"plain text", http.StatusInternalServerError, "upstream exploded", "upstream exploded"},
		{"empty body", http.StatusBadGateway, "", "Bad Gateway"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
				writer.WriteHeader(test.status)
				writer.Write([]byte(test.body))
			}))
			defer server.Close()

			client := newTestClient(t, server)
			_, err := client.FetchFlags(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			var apiError *APIError
			if !errors.As(err, &apiError) {
				t.Fatalf("error %v is not an *APIError", err)
			}
			if apiError.StatusCode != test.status {
				t.Errorf("StatusCode = %d, want %d", apiError.StatusCode, test.status)
			}
			if apiError.Message != test.wantMessage {
				t.Errorf("Message = %q, want %q", apiError.Message, test.wantMessage)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	if Retryable(nil) {
		t.Error("nil error must not be retryable")
	}
	if !Retryable(&APIError{StatusCode: 500}) {
		t.Error("HTTP 500 should be retryable")
	}
	if !Retryable(&APIError{StatusCode: 503}) {
		t.Error("HTTP 503 should be retryable")
	}
	if Retryable(&APIError{StatusCode: 400}) {
		t.Error("HTTP 400 must not be retryable")
	}
	if Retryable(&APIError{StatusCode: 404}) {
		t.Error("HTTP 404 must not be retryable")
	}
	if Retryable(context.Canceled) {
		t.Error("context cancellation must not be retryable")
	}
	if !Retryable(errors.New("connection refused")) {
		t.Error("generic transport failure should be retryable")
	}
}

func TestRetryable_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {}))
	endpoint := server.URL
	server.Close()

	client, err := New(Config{
		Endpoint: endpoint,
		APIKey:   func() string { return "k" },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sendErr := client.SendBatch(context.Background(), []event.Event{trackEvent("x")})
	if sendErr == nil {
		t.Fatal("expected error against a closed server")
	}
	if !Retryable(sendErr) {
		t.Errorf("connection failure should be retryable: %v", sendErr)
	}
}

func TestRetryable_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		// The server watches for client disconnect only once the request
		// body is consumed; drain it so the client's timeout cancels
		// this context instead of deadlocking the deferred Close.
		io.Copy(io.Discard, request.Body)
		<-request.Context().Done()
	}))
	defer server.Close()

	client := newTestClient(t, server, func(config *Config) {
		config.HTTPClient = &http.Client{Timeout: 30 * time.Millisecond}
	})
	err := client.SendBatch(context.Background(), []event.Event{trackEvent("x")})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !Retryable(err) {
		t.Errorf("timeout should be retryable like any network failure: %v", err)
	}
}

func TestRetryable_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		<-request.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(t, server)
	err := client.SendBatch(ctx, []event.Event{trackEvent("x")})
	if err == nil {
		t.Fatal("expected error from canceled context")
	}
	if Retryable(err) {
		t.Errorf("canceled request must not be retryable: %v", err)
	}
}

func TestErrorClassifiers(t *testing.T) {
	notFound := error(&APIError{StatusCode: 404, Message: "no such flag"})
	if !IsRejection(notFound) || !IsNotFound(notFound) {
		t.Error("404 should classify as rejection and not-found")
	}
	if IsUnauthorized(notFound) {
		t.Error("404 is not an auth failure")
	}

	unauthorized := error(&APIError{StatusCode: 401})
	if !IsRejection(unauthorized) || !IsUnauthorized(unauthorized) {
		t.Error("401 should classify as rejection and unauthorized")
	}

	serverError := error(&APIError{StatusCode: 500})
	if IsRejection(serverError) {
		t.Error("500 is not a rejection")
	}

	if IsRejection(errors.New("plain")) || IsNotFound(nil) {
		t.Error("non-API errors must not classify")
	}
}
