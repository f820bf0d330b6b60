package akapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const failedWriteResponseMsg = "Failed to write response: %v"

// newTestClient points a client at server with logging off and a
// recording notifier.
func newTestClient(t *testing.T, server *httptest.Server, opts ...Option) (*Client, *RecordingNotifier) {
	t.Helper()
	notes := &RecordingNotifier{}
	base := []Option{
		WithBaseURL(server.URL),
		WithLogger(NewNullLogger()),
		WithNotifier(notes),
		WithConsoleLogging(LogSilent),
	}
	client := New(append(base, opts...)...)
	if !client.IsValid() {
		t.Fatalf("client invalid: %v", client.ValidationError())
	}
	return client, notes
}

func jsonHandler(t *testing.T, hits *atomic.Int32, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(body)); err != nil {
			t.Errorf(failedWriteResponseMsg, err)
		}
	}
}

func TestNew(t *testing.T) {
	client := New(WithBaseURL("https://act.example.org"))

	if client == nil {
		t.Fatal("New() returned nil")
	}
	if !client.IsValid() {
		t.Fatalf("default client invalid: %v", client.ValidationError())
	}
	if client.apiBase != DefaultAPIBase {
		t.Errorf("Expected apiBase=%q, got %q", DefaultAPIBase, client.apiBase)
	}
	if client.httpClient.Timeout != 30*time.Second {
		t.Errorf("Expected timeout=30s, got %v", client.httpClient.Timeout)
	}
	if !client.Policy().AllowWrites() {
		t.Error("Expected writes allowed by default")
	}
	if client.Policy().ConsoleLogging() != LogSummary {
		t.Errorf("Expected console logging 1, got %d", client.Policy().ConsoleLogging())
	}
	if !client.Policy().AlertOnFailure() {
		t.Error("Expected alert on failure by default")
	}
	if client.ID() == "" {
		t.Error("Expected a client ID")
	}
}

func TestFetchJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("Expected GET method, got %s", r.Method)
		}
		if r.URL.Path != "/rest/v1/user/12/" {
			t.Errorf("Expected path /rest/v1/user/12/, got %s", r.URL.Path)
		}
		if _, err := w.Write([]byte(`{"id":12,"email":"a@example.org"}`)); err != nil {
			t.Errorf(failedWriteResponseMsg, err)
		}
	}))
	defer server.Close()

	client, _ := newTestClient(t, server)
	result, err := client.Get(context.Background(), "user/12/", NoData(), nil)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if result.Mode != ReceiveJSON {
		t.Fatalf("Expected json mode, got %s", result.Mode)
	}
	value, ok := result.Value.(map[string]any)
	if !ok || value["email"] != "a@example.org" {
		t.Errorf("Unexpected value %#v", result.Value)
	}

	type user struct {
		ID    int    `json:"id"`
		Email string `json:"email"`
	}
	u, err := DecodeResult[user](result)
	if err != nil {
		t.Fatalf("DecodeResult failed: %v", err)
	}
	if u.ID != 12 {
		t.Errorf("Expected id 12, got %d", u.ID)
	}
}

func TestFetchGetQueryString(t *testing.T) {
	var gotURI string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURI = r.URL.RequestURI()
		gotBody, _ = io.ReadAll(r.Body)
		jsonHandler(t, nil, `[]`)(w, r)
	}))
	defer server.Close()

	client, _ := newTestClient(t, server)
	data := Fields(map[string]any{"a": 1, "b": 2})

	if _, err := client.Get(context.Background(), "user/", data, nil); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if gotURI != "/rest/v1/user/?a=1&b=2" {
		t.Errorf("Expected query appended with ?, got %s", gotURI)
	}
	if len(gotBody) != 0 {
		t.Errorf("Expected no GET body, got %q", gotBody)
	}

	if _, err := client.Get(context.Background(), "user/?_limit=5", data, nil); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if gotURI != "/rest/v1/user/?_limit=5&a=1&b=2" {
		t.Errorf("Expected query appended with &, got %s", gotURI)
	}
}

func TestFetchPostBody(t *testing.T) {
	var gotType, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Location", "/rest/v1/user/99/")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client, _ := newTestClient(t, server)

	result, err := client.Post(context.Background(), "user/", Fields(map[string]any{"email": "x@example.org"}), nil)
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if gotType != "application/json" {
		t.Errorf("Expected application/json, got %q", gotType)
	}
	if gotBody != `{"email":"x@example.org"}` {
		t.Errorf("Unexpected body %q", gotBody)
	}
	if result.Mode != ReceiveLocation || !result.HasLocation || result.Location != "/rest/v1/user/99/" {
		t.Errorf("Unexpected result %#v", result)
	}

	_, err = client.Post(context.Background(), "user/", Fields(map[string]any{"email": "x@example.org"}), &RequestOptions{Content: ContentURLEncoded})
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if gotType != "application/x-www-form-urlencoded" || gotBody != "email=x%40example.org" {
		t.Errorf("Unexpected form request %q %q", gotType, gotBody)
	}
}

func TestFetchEmptyPayloadSendsNoBody(t *testing.T) {
	var gotBody []byte
	var gotType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, _ := newTestClient(t, server)
	result, err := client.Post(context.Background(), "user/1/", Fields(map[string]any{}), nil)
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if len(gotBody) != 0 || gotType != "" {
		t.Errorf("Expected no body and no content type, got %q %q", gotBody, gotType)
	}
	if result.Mode != ReceiveStatus || result.Status != http.StatusNoContent {
		t.Errorf("Expected status 204 result, got %#v", result)
	}
}

func TestFetchRedirectIsLocation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/rest/v1/user/5/", http.StatusMovedPermanently)
	}))
	defer server.Close()

	client, _ := newTestClient(t, server)
	result, err := client.Get(context.Background(), "user/old/", NoData(), nil)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if result.Mode != ReceiveLocation || result.Location != "/rest/v1/user/5/" {
		t.Errorf("Expected location result, got %#v", result)
	}
}

func TestFetchReceiveOverride(t *testing.T) {
	var gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		if _, err := w.Write([]byte("<p>hi</p>")); err != nil {
			t.Errorf(failedWriteResponseMsg, err)
		}
	}))
	defer server.Close()

	client, _ := newTestClient(t, server)

	result, err := client.GetHTML(context.Background(), "/admin/core/page/", NoData())
	if err != nil {
		t.Fatalf("GetHTML failed: %v", err)
	}
	if gotAccept != "text/html" {
		t.Errorf("Expected Accept text/html, got %q", gotAccept)
	}
	if result.Mode != ReceiveHTML || result.Text != "<p>hi</p>" {
		t.Errorf("Unexpected result %#v", result)
	}

	result, err = client.Get(context.Background(), "user/", NoData(), &RequestOptions{Receive: ReceiveStatus})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if result.Status != http.StatusOK {
		t.Errorf("Expected status 200, got %d", result.Status)
	}
}

func TestFetchInvalidReceiveMode(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(jsonHandler(t, &hits, `{}`))
	defer server.Close()

	client, notes := newTestClient(t, server)
	_, err := client.Get(context.Background(), "user/", NoData(), &RequestOptions{Receive: "xml"})
	if !errors.Is(err, ErrInvalidReceiveMode) {
		t.Fatalf("Expected InvalidReceiveMode, got %v", err)
	}
	if hits.Load() != 0 {
		t.Errorf("Expected no network call, got %d", hits.Load())
	}
	if len(notes.Messages()) != 1 {
		t.Errorf("Expected one alert, got %v", notes.Messages())
	}
}

func TestFetchTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		if _, err := w.Write([]byte("missing")); err != nil {
			t.Errorf(failedWriteResponseMsg, err)
		}
	}))
	defer server.Close()

	client, notes := newTestClient(t, server)
	_, err := client.Get(context.Background(), "user/404/", NoData(), &RequestOptions{Cache: true})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Expected TransportError, got %v", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %T", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Body != "missing" {
		t.Errorf("Unexpected status/body %d %q", apiErr.Status, apiErr.Body)
	}
	if apiErr.Path != "/rest/v1/user/404/" || apiErr.Method != MethodGet || apiErr.CallID != 1 {
		t.Errorf("Unexpected call details %#v", apiErr)
	}

	msgs := notes.Messages()
	if len(msgs) != 1 || !strings.HasPrefix(msgs[0], "API Error: ") || !strings.Contains(msgs[0], "404") {
		t.Errorf("Unexpected alerts %v", msgs)
	}
	if client.Cache().Len() != 0 {
		t.Error("Failed call must not be cached")
	}
}

func TestFetchNetworkFailure(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, nil, `{}`))
	url := server.URL
	server.Close()

	client := New(WithBaseURL(url), WithLogger(NewNullLogger()), WithAlertOnFailure(false))
	_, err := client.Get(context.Background(), "user/", NoData(), nil)
	if KindOf(err) != KindTransport {
		t.Fatalf("Expected TransportError, got %v", err)
	}
	if errors.Unwrap(err) == nil {
		t.Error("Expected the network cause to be wrapped")
	}
}

func TestFetchInterpretError(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, nil, `not json`))
	defer server.Close()

	client, _ := newTestClient(t, server)
	_, err := client.Get(context.Background(), "user/", NoData(), nil)
	if !errors.Is(err, ErrInterpret) {
		t.Fatalf("Expected InterpretError, got %v", err)
	}
}

func TestFetchCacheRoundTrip(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(jsonHandler(t, &hits, `{"n":1}`))
	defer server.Close()

	client, _ := newTestClient(t, server)
	ctx := context.Background()

	first, err := client.GetCached(ctx, "user/", NoData())
	if err != nil {
		t.Fatalf("GetCached failed: %v", err)
	}
	second, err := client.GetCached(ctx, "/rest/v1/user/", NoData())
	if err != nil {
		t.Fatalf("GetCached failed: %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("Expected one network call, got %d", hits.Load())
	}
	if string(first.Body) != string(second.Body) {
		t.Errorf("Cached result differs: %s vs %s", first.Body, second.Body)
	}

	// Without the cache flag the call always reaches the network.
	if _, err := client.Get(ctx, "user/", NoData(), nil); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("Expected uncached call to hit network, got %d", hits.Load())
	}

	// Different data is a different identity.
	if _, err := client.GetCached(ctx, "user/", Fields(map[string]any{"a": 1})); err != nil {
		t.Fatalf("GetCached failed: %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("Expected new identity to hit network, got %d", hits.Load())
	}
	if client.Cache().Len() != 2 {
		t.Errorf("Expected 2 cache entries, got %d", client.Cache().Len())
	}
}

func TestFetchCacheServesWithoutTransport(t *testing.T) {
	var sent atomic.Int32
	client := New(
		WithLogger(NewNullLogger()),
		WithTransport(TransportFunc(func(*http.Request) (*http.Response, error) {
			sent.Add(1)
			return nil, errors.New("offline")
		})),
	)
	client.Cache().Put("GET user/ undefined", &Result{Mode: ReceiveStatus, Status: 200})

	result, err := client.GetCached(context.Background(), "user/", NoData())
	if err != nil {
		t.Fatalf("GetCached failed: %v", err)
	}
	if result.Status != 200 || sent.Load() != 0 {
		t.Errorf("Expected cached result with no network call, got %#v sent=%d", result, sent.Load())
	}
}

func TestFetchCacheControlHeader(t *testing.T) {
	var got []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("Cache-Control"))
		jsonHandler(t, nil, `{}`)(w, r)
	}))
	defer server.Close()

	client, _ := newTestClient(t, server)
	ctx := context.Background()
	if _, err := client.Get(ctx, "user/", NoData(), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := client.GetCached(ctx, "user/", NoData()); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "no-store" || got[1] != "" {
		t.Errorf("Unexpected Cache-Control headers %q", got)
	}
}

func TestFetchWriteNotAllowed(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(jsonHandler(t, &hits, `{}`))
	defer server.Close()

	client, notes := newTestClient(t, server, WithAllowWrites(false))
	ctx := context.Background()

	for _, m := range []Method{MethodPost, MethodPut, MethodPatch, MethodDelete} {
		_, err := client.Fetch(ctx, m, "user/1/", Fields(map[string]any{"a": 1}), nil)
		if !errors.Is(err, ErrWriteNotAllowed) {
			t.Errorf("%s: expected WriteNotAllowed, got %v", m, err)
		}
	}
	if hits.Load() != 0 {
		t.Errorf("Expected no network calls, got %d", hits.Load())
	}
	if len(notes.Messages()) != 4 {
		t.Errorf("Expected 4 alerts, got %d", len(notes.Messages()))
	}

	// Reads are never guarded.
	if _, err := client.Get(ctx, "user/", NoData(), nil); err != nil {
		t.Errorf("Get failed: %v", err)
	}

	// Toggling takes effect on the next call.
	client.Policy().SetAllowWrites(true)
	if _, err := client.Post(ctx, "user/", Fields(map[string]any{"a": 1}), nil); err != nil {
		t.Errorf("Post after enabling writes failed: %v", err)
	}
}

func TestFetchReadSafeReportRun(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(jsonHandler(t, &hits, `[[1]]`))
	defer server.Close()

	client, _ := newTestClient(t, server, WithAllowWrites(false))
	ctx := context.Background()

	if _, err := client.Post(ctx, "report/run/my_report-1/", Fields(map[string]any{"page": 3}), nil); err != nil {
		t.Fatalf("report run rejected: %v", err)
	}
	if _, err := client.Post(ctx, "/rest/v1/report/run/other/", NoData(), nil); err != nil {
		t.Fatalf("report run rejected: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("Expected 2 network calls, got %d", hits.Load())
	}

	if _, err := client.Post(ctx, "report/", Fields(map[string]any{"name": "x"}), nil); !errors.Is(err, ErrWriteNotAllowed) {
		t.Errorf("Expected report creation rejected, got %v", err)
	}
	if _, err := client.Put(ctx, "report/run/my_report/", NoData(), nil); !errors.Is(err, ErrWriteNotAllowed) {
		t.Errorf("Expected PUT rejected, got %v", err)
	}
}

func TestFetchCSRFHeader(t *testing.T) {
	var got []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get(CSRFHeader))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client, _ := newTestClient(t, server, WithTokenSource(StaticTokens{DefaultCSRFCookie: "tok123"}))
	ctx := context.Background()

	if _, err := client.Get(ctx, "user/", NoData(), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Delete(ctx, "user/1/", NoData(), nil); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "" || got[1] != "tok123" {
		t.Errorf("Unexpected CSRF headers %q", got)
	}
}

func TestFetchMissingCSRFTokenWarns(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header[CSRFHeader]; ok {
			t.Error("Expected no CSRF header without a token")
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := hclog.New(&hclog.LoggerOptions{Output: &buf, Level: hclog.Debug})
	client, _ := newTestClient(t, server, WithLogger(logger), WithConsoleLogging(LogSummary))

	if _, err := client.Delete(context.Background(), "user/1/", NoData(), nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "no csrf token available") {
		t.Errorf("Expected a warning, got %q", buf.String())
	}
}

func TestFetchLoggingLevels(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, nil, `{"secret":"value"}`))
	defer server.Close()

	run := func(level int) string {
		var buf bytes.Buffer
		logger := hclog.New(&hclog.LoggerOptions{Output: &buf, Level: hclog.Debug})
		client, _ := newTestClient(t, server, WithLogger(logger), WithConsoleLogging(level))
		if _, err := client.Get(context.Background(), "user/", Fields(map[string]any{"q": "find"}), nil); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		return buf.String()
	}

	if out := run(LogSilent); out != "" {
		t.Errorf("Expected no output at level 0, got %q", out)
	}

	out := run(LogSummary)
	if !strings.Contains(out, "api call") || !strings.Contains(out, "path=/rest/v1/user/") {
		t.Errorf("Expected call summary, got %q", out)
	}
	if strings.Contains(out, "secret") || strings.Contains(out, "q=find") {
		t.Errorf("Expected no payloads at level 1, got %q", out)
	}

	out = run(LogPayloads)
	if !strings.Contains(out, "q=find") || !strings.Contains(out, "secret") {
		t.Errorf("Expected payloads at level 2, got %q", out)
	}
}

func TestFetchAlertToggle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, notes := newTestClient(t, server, WithAlertOnFailure(false))
	if _, err := client.Get(context.Background(), "user/", NoData(), nil); err == nil {
		t.Fatal("Expected error")
	}
	if len(notes.Messages()) != 0 {
		t.Errorf("Expected no alerts, got %v", notes.Messages())
	}

	client.Policy().SetAlertOnFailure(true)
	if _, err := client.Get(context.Background(), "user/", NoData(), nil); err == nil {
		t.Fatal("Expected error")
	}
	if len(notes.Messages()) != 1 {
		t.Errorf("Expected one alert, got %v", notes.Messages())
	}
}

func TestFetchInvalidPayload(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(jsonHandler(t, &hits, `{}`))
	defer server.Close()

	client, notes := newTestClient(t, server)
	_, err := client.Get(context.Background(), "user/", Fields(map[string]any{"a": map[string]any{"b": 1}}), nil)
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("Expected InvalidPayload, got %v", err)
	}
	if hits.Load() != 0 || len(notes.Messages()) != 1 {
		t.Errorf("Expected no network call and one alert, got %d %v", hits.Load(), notes.Messages())
	}
}

func TestFetchInvalidClient(t *testing.T) {
	client := New(WithBaseURL("ftp://example.org"), WithLogger(NewNullLogger()), WithAlertOnFailure(false))
	if client.IsValid() {
		t.Fatal("Expected invalid client")
	}
	_, err := client.Get(context.Background(), "user/", NoData(), nil)
	if KindOf(err) != KindValidation {
		t.Errorf("Expected ValidationError, got %v", err)
	}
}

func TestFetchCallCounter(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, nil, `{}`))
	defer server.Close()

	client, _ := newTestClient(t, server)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.Get(context.Background(), "user/", NoData(), nil); err != nil {
				t.Errorf("Get failed: %v", err)
			}
		}()
	}
	wg.Wait()
	if client.Calls() != 10 {
		t.Errorf("Expected 10 calls, got %d", client.Calls())
	}
}

func TestFetchCoalescing(t *testing.T) {
	var hits atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			close(started)
		}
		<-release
		jsonHandler(t, nil, `{"ok":true}`)(w, r)
	}))
	defer server.Close()

	client, _ := newTestClient(t, server, WithCoalescing())
	ctx := context.Background()

	results := make(chan *Result, 3)
	worker := func() {
		r, err := client.GetCached(ctx, "user/", NoData())
		if err != nil {
			t.Errorf("GetCached failed: %v", err)
		}
		results <- r
	}

	go worker()
	<-started
	go worker()
	go worker()

	deadline := time.Now().Add(5 * time.Second)
	for client.coalesce.Waiters("GET user/ undefined") < 2 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for duplicate calls")
		}
		time.Sleep(time.Millisecond)
	}
	close(release)

	for i := 0; i < 3; i++ {
		if r := <-results; r == nil || r.Mode != ReceiveJSON {
			t.Errorf("Unexpected result %#v", r)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("Expected one network call, got %d", hits.Load())
	}
}

func TestFetchWithoutCoalescingSendsEach(t *testing.T) {
	var hits atomic.Int32
	var reached sync.WaitGroup
	reached.Add(2)
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		reached.Done()
		<-release
		jsonHandler(t, nil, `{}`)(w, r)
	}))
	defer server.Close()

	client, _ := newTestClient(t, server)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.GetCached(context.Background(), "user/", NoData()); err != nil {
				t.Errorf("GetCached failed: %v", err)
			}
		}()
	}
	reached.Wait()
	close(release)
	wg.Wait()

	if hits.Load() != 2 {
		t.Errorf("Expected both in-flight calls to reach the network, got %d", hits.Load())
	}
	if client.Cache().Len() != 1 {
		t.Errorf("Expected one cache entry, got %d", client.Cache().Len())
	}
}

func TestMiddlewareChain(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Trace") != "a,b" {
			t.Errorf("Unexpected trace header %q", r.Header.Get("X-Trace"))
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	tag := func(name string) Middleware {
		return func(req *http.Request, next Transport) (*http.Response, error) {
			if prev := req.Header.Get("X-Trace"); prev != "" {
				name = prev + "," + name
			}
			req.Header.Set("X-Trace", name)
			return next.RoundTrip(req)
		}
	}

	client, _ := newTestClient(t, server, WithMiddleware(tag("a"), tag("b")))
	if _, err := client.Get(context.Background(), "user/", NoData(), nil); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
}

func TestFetchFullURL(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, nil, `{}`))
	defer server.Close()

	client := New(WithBaseURL("https://unused.invalid"), WithLogger(NewNullLogger()))
	if _, err := client.Get(context.Background(), server.URL+"/rest/v1/user/", NoData(), nil); err != nil {
		t.Fatalf("Get with full URL failed: %v", err)
	}
}

func TestFetchRequestID(t *testing.T) {
	var ids []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids = append(ids, r.Header.Get(RequestIDHeader))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := hclog.New(&hclog.LoggerOptions{Output: &buf})
	client, _ := newTestClient(t, server, WithLogger(logger), WithConsoleLogging(LogSummary))
	for i := 0; i < 2; i++ {
		if _, err := client.Get(context.Background(), "user/", NoData(), nil); err != nil {
			t.Fatal(err)
		}
	}
	if len(ids) != 2 || ids[0] == "" || ids[0] == ids[1] {
		t.Fatalf("Expected distinct request ids, got %q", ids)
	}
	if !strings.Contains(buf.String(), "request_id="+ids[0]) {
		t.Errorf("Expected request id in call log, got %q", buf.String())
	}
}

func TestFetchCachedResultIsolated(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, nil, `{"name":"x"}`))
	defer server.Close()

	client, _ := newTestClient(t, server)
	ctx := context.Background()

	first, err := client.GetCached(ctx, "user/", NoData())
	if err != nil {
		t.Fatalf("GetCached failed: %v", err)
	}
	first.Value.(map[string]any)["name"] = "mutated"

	second, err := client.GetCached(ctx, "user/", NoData())
	if err != nil {
		t.Fatalf("GetCached failed: %v", err)
	}
	if got := second.Value.(map[string]any)["name"]; got != "x" {
		t.Errorf("Expected cached value unchanged, got %v", got)
	}
}

func TestFetchFollowsTemporaryRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/v1/old/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/rest/v1/user/", http.StatusTemporaryRedirect)
	})
	mux.HandleFunc("/rest/v1/user/", jsonHandler(t, nil, `{"ok":true}`))
	server := httptest.NewServer(mux)
	defer server.Close()

	client, _ := newTestClient(t, server)
	result, err := client.Get(context.Background(), "old/", NoData(), nil)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if value, ok := result.Value.(map[string]any); result.Mode != ReceiveJSON || !ok || value["ok"] != true {
		t.Errorf("Expected redirected json result, got %#v", result)
	}
}

func TestReportsRedirect(t *testing.T) {
	tests := map[int]bool{
		http.StatusMovedPermanently:  true,
		http.StatusFound:             true,
		http.StatusSeeOther:          false,
		http.StatusTemporaryRedirect: false,
		http.StatusPermanentRedirect: false,
		http.StatusOK:                false,
		http.StatusCreated:           false,
	}
	for status, want := range tests {
		if got := reportsRedirect(status); got != want {
			t.Errorf("reportsRedirect(%d) = %v, want %v", status, got, want)
		}
	}
}

func TestFetchCoalescedFailureReachesEachCaller(t *testing.T) {
	var hits atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			close(started)
		}
		<-release
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	collector := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())
	client, notes := newTestClient(t, server, WithCoalescing(), WithMetricsCollector(collector))
	ctx := context.Background()

	errs := make(chan error, 3)
	worker := func() {
		_, err := client.GetCached(ctx, "user/", NoData())
		errs <- err
	}

	go worker()
	<-started
	go worker()
	go worker()

	deadline := time.Now().Add(5 * time.Second)
	for client.coalesce.Waiters("GET user/ undefined") < 2 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for duplicate calls")
		}
		time.Sleep(time.Millisecond)
	}
	close(release)

	callIDs := map[uint64]bool{}
	for i := 0; i < 3; i++ {
		var apiErr *APIError
		if err := <-errs; !errors.As(err, &apiErr) || apiErr.Kind != KindTransport || apiErr.Status != http.StatusInternalServerError {
			t.Fatalf("Expected TransportError 500, got %v", err)
		}
		callIDs[apiErr.CallID] = true
	}
	if len(callIDs) != 3 {
		t.Errorf("Expected each caller's own call id, got %v", callIDs)
	}
	if hits.Load() != 1 {
		t.Errorf("Expected one network call, got %d", hits.Load())
	}
	if len(notes.Messages()) != 3 {
		t.Errorf("Expected an alert per caller, got %v", notes.Messages())
	}
	if got := testutil.ToFloat64(collector.coalescedTotal.WithLabelValues("GET", "/rest/v1/user/")); got != 2 {
		t.Errorf("Expected 2 coalesced calls, got %v", got)
	}
	if got := testutil.ToFloat64(collector.errorsTotal.WithLabelValues(string(KindTransport), "GET")); got != 3 {
		t.Errorf("Expected 3 counted errors, got %v", got)
	}
}
