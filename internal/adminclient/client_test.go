package adminclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dwizi/edge-console/internal/config"
	"github.com/dwizi/edge-console/internal/consoleerr"
)

func TestClientSnapshotSendsBearerAndSession(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/edge_stack/api/snapshot" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if got := r.URL.Query().Get("client_session"); got != "session-1" {
			t.Errorf("unexpected client session %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Watt":{"Kubernetes":{"Mapping":[{"metadata":{"name":"foo"},"spec":{"prefix":"/foo/"}}]}}}`))
	}))
	defer server.Close()

	client := &Client{baseURL: server.URL, http: server.Client(), tokens: StaticToken("secret")}
	snap, err := client.Snapshot(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Count() != 1 {
		t.Fatalf("expected one resource, got %d", snap.Count())
	}
}

func TestClientApplyReturnsBodyOnError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/edge_stack/api/apply" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "kind: Host\n" {
			t.Errorf("unexpected body %q", body)
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("error validating data"))
	}))
	defer server.Close()

	client := &Client{baseURL: server.URL, http: server.Client()}
	_, err := client.Apply(context.Background(), []byte("kind: Host\n"))
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusBadRequest || err.Error() != "error validating data" {
		t.Fatalf("unexpected error: %d %q", httpErr.StatusCode, err.Error())
	}
}

func TestClientTreatsRedirectAsError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Location", "/edge_stack/login")
		w.WriteHeader(http.StatusFound)
		_, _ = w.Write([]byte("cluster-1"))
	}))
	defer server.Close()

	httpClient := server.Client()
	httpClient.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	client := &Client{baseURL: server.URL, http: httpClient}
	_, err := client.ClusterID(context.Background())
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusFound {
		t.Fatalf("expected a 302 HTTPError, got %v", err)
	}
}

func TestClientForbiddenIsUnauthorized(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("Ambassador Edge Stack admin webui API forbidden"))
	}))
	defer server.Close()

	client := &Client{baseURL: server.URL, http: server.Client()}
	err := client.SetLogLevel(context.Background(), "debug")
	if !errors.Is(err, consoleerr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestClientNetworkFailureIsWrapped(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := server.URL
	server.Close()

	client := &Client{baseURL: endpoint, http: &http.Client{Timeout: time.Second}}
	_, err := client.ClusterID(context.Background())
	if !errors.Is(err, consoleerr.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if _, err := client.Probe(context.Background()); !errors.Is(err, consoleerr.ErrNetwork) {
		t.Fatalf("expected probe network error, got %v", err)
	}
}

func TestClientDeletePostsNamespaceAndNames(t *testing.T) {
	t.Parallel()

	var got deleteRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/edge_stack/api/delete" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
	}))
	defer server.Close()

	client := &Client{baseURL: server.URL, http: server.Client()}
	if err := client.Delete(context.Background(), "", []string{"Mapping/foo"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got.Namespace != "default" || len(got.Names) != 1 || got.Names[0] != "Mapping/foo" {
		t.Fatalf("unexpected delete payload: %+v", got)
	}
}

func TestClientSetLogLevelIsFormEncoded(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("loglevel"); got != "debug" {
			t.Errorf("unexpected loglevel %q", got)
		}
	}))
	defer server.Close()

	client := &Client{baseURL: server.URL, http: server.Client()}
	if err := client.SetLogLevel(context.Background(), " debug "); err != nil {
		t.Fatalf("set log level: %v", err)
	}
}

func TestClientHostLookups(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/edge_stack/api/tos-url":
			if r.URL.Query().Get("ca-url") != "https://acme.example/directory" {
				t.Errorf("unexpected ca-url %q", r.URL.Query().Get("ca-url"))
			}
			_, _ = w.Write([]byte("https://acme.example/tos.pdf\n"))
		case "/edge_stack/api/acme-host-qualifies":
			_, _ = w.Write([]byte(`true`))
		case "/edge_stack/tls/api/status":
			_, _ = w.Write([]byte(`{"state":"Ready"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := &Client{baseURL: server.URL, http: server.Client()}
	tosURL, err := client.TermsOfServiceURL(context.Background(), "https://acme.example/directory")
	if err != nil || tosURL != "https://acme.example/tos.pdf" {
		t.Fatalf("unexpected tos url %q (%v)", tosURL, err)
	}
	qualifies, err := client.HostQualifies(context.Background(), "example.com")
	if err != nil || !qualifies {
		t.Fatalf("expected host to qualify (%v)", err)
	}
	status, err := client.HostStatus(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("host status: %v", err)
	}
	if status.Hostname != "example.com" || !status.Terminal() {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestClientOpenAPIDocumentIsCached(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openapi/services/default/quote/openapi.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		hits.Add(1)
		_, _ = w.Write([]byte(`{"openapi":"3.0.0"}`))
	}))
	defer server.Close()

	docs, err := lru.New[string, json.RawMessage](4)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	client := &Client{baseURL: server.URL, http: server.Client(), docs: docs}
	for i := 0; i < 2; i++ {
		if _, err := client.OpenAPIDocument(context.Background(), "default", "quote"); err != nil {
			t.Fatalf("document: %v", err)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one backend hit, got %d", hits.Load())
	}
	client.Forget("default", "quote")
	if _, err := client.OpenAPIDocument(context.Background(), "default", "quote"); err != nil {
		t.Fatalf("document: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected refetch after forget, got %d hits", hits.Load())
	}
}

func TestClientWithTimeoutClonesClient(t *testing.T) {
	t.Parallel()

	base := &Client{
		baseURL: "https://example.com",
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	updated := base.WithTimeout(3 * time.Second)
	if updated == nil {
		t.Fatal("expected updated client")
	}
	if updated == base {
		t.Fatal("expected timeout update to clone client")
	}
	if updated.http == base.http {
		t.Fatal("expected timeout update to clone http client")
	}
	if updated.http.Timeout != 3*time.Second {
		t.Fatalf("expected timeout 3s, got %s", updated.http.Timeout)
	}
	if base.http.Timeout != 15*time.Second {
		t.Fatalf("expected original timeout unchanged, got %s", base.http.Timeout)
	}
}

func TestNewRespectsRequestTimeoutConfig(t *testing.T) {
	t.Parallel()

	client, err := New(config.Config{
		BaseURL:        "https://example.com/",
		RequestTimeout: 42 * time.Second,
		Token:          "abc",
	}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.http.Timeout != 42*time.Second {
		t.Fatalf("expected timeout 42s, got %s", client.http.Timeout)
	}
	if client.BaseURL() != "https://example.com" {
		t.Fatalf("unexpected base url %s", client.BaseURL())
	}
	if client.tokens.Token() != "abc" {
		t.Fatalf("expected static token from config")
	}
	if client.HasDiagnosticsFeed() {
		t.Fatal("expected no separate diagnostics feed")
	}
}
