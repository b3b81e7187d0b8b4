package adminclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dwizi/edge-console/internal/config"
	"github.com/dwizi/edge-console/internal/consoleerr"
	"github.com/dwizi/edge-console/internal/snapshot"
)

const (
	apiPrefix = "/edge_stack/api"
	tlsPrefix = "/edge_stack/tls/api"

	// maxErrorBody bounds how much of a failed response is kept for display.
	maxErrorBody = 64 * 1024
)

// TokenSource supplies the bearer token for each request. Implementations
// may change the token between calls, for example after a file reload.
type TokenSource interface {
	Token() string
}

type StaticToken string

func (t StaticToken) Token() string { return strings.TrimSpace(string(t)) }

type Client struct {
	baseURL string
	diagURL string
	http    *http.Client
	tokens  TokenSource
	docs    *lru.Cache[string, json.RawMessage]
}

// HTTPError is a completed request the backend answered with an error
// status. Body is the raw response text, which is what operators see.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if body := strings.TrimSpace(e.Body); body != "" {
		return body
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *HTTPError) Is(target error) bool {
	return target == consoleerr.ErrUnauthorized && (e.StatusCode == http.StatusForbidden || e.StatusCode == http.StatusUnauthorized)
}

type HostStatus struct {
	Hostname       string `json:"hostname"`
	State          string `json:"state"`
	Reason         string `json:"reason"`
	PhaseCompleted string `json:"phaseCompleted"`
	PhasePending   string `json:"phasePending"`
}

func (s HostStatus) Terminal() bool {
	return s.State == "Ready" || s.State == "Error"
}

type OpenAPIService struct {
	ServiceName      string `json:"service_name"`
	ServiceNamespace string `json:"service_namespace"`
	RoutingPrefix    string `json:"routing_prefix"`
	HasDoc           bool   `json:"has_doc"`
}

type deleteRequest struct {
	Namespace string   `json:"Namespace"`
	Names     []string `json:"Names"`
}

func New(cfg config.Config, tokens TokenSource) (*Client, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.TLSSkipVerify,
		ServerName:         cfg.TLSServerName,
	}
	if cfg.TLSCAFile != "" {
		caBytes, err := os.ReadFile(cfg.TLSCAFile)
		if err != nil {
			return nil, fmt.Errorf("read tls ca file: %w", err)
		}
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM(caBytes); !ok {
			return nil, fmt.Errorf("parse tls ca file")
		}
		tlsConfig.RootCAs = certPool
	}
	if cfg.TLSCertFile != "" || cfg.TLSKeyFile != "" {
		if cfg.TLSCertFile == "" || cfg.TLSKeyFile == "" {
			return nil, fmt.Errorf("both EDGE_CONSOLE_TLS_CLIENT_CERT_FILE and EDGE_CONSOLE_TLS_CLIENT_KEY_FILE are required")
		}
		clientCert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("load tls client cert: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{clientCert}
	}

	timeout := cfg.RequestTimeout
	if timeout < time.Second {
		timeout = 30 * time.Second
	}
	if tokens == nil {
		tokens = StaticToken(cfg.Token)
	}
	docs, err := lru.New[string, json.RawMessage](64)
	if err != nil {
		return nil, fmt.Errorf("create openapi cache: %w", err)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		diagURL: strings.TrimSpace(cfg.DiagURL),
		http: &http.Client{
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: tlsConfig,
			},
			Timeout: timeout,
		},
		tokens: tokens,
		docs:   docs,
	}, nil
}

func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if c == nil {
		return nil
	}
	if timeout < time.Second {
		return c
	}
	clone := *c
	if c.http == nil {
		clone.http = &http.Client{Timeout: timeout}
		return &clone
	}
	httpClone := *c.http
	httpClone.Timeout = timeout
	clone.http = &httpClone
	return &clone
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// HasDiagnosticsFeed reports whether diagnostics are polled separately from
// the snapshot.
func (c *Client) HasDiagnosticsFeed() bool {
	return c.diagURL != ""
}

func (c *Client) Snapshot(ctx context.Context, clientSession string) (*snapshot.Snapshot, error) {
	query := url.Values{}
	if strings.TrimSpace(clientSession) != "" {
		query.Set("client_session", clientSession)
	}
	endpoint := c.baseURL + apiPrefix + "/snapshot"
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return snapshot.Parse(body)
}

func (c *Client) Diagnostics(ctx context.Context) (*snapshot.Diagnostics, error) {
	if c.diagURL == "" {
		return nil, fmt.Errorf("diagnostics url is not configured")
	}
	req, err := c.newRequest(ctx, http.MethodGet, c.diagURL, nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return snapshot.ParseDiagnostics(body)
}

// Probe sends the bearer-authenticated authorization probe. A completed
// request always returns its status code with a nil error, whatever the
// status; only transport failures return an error.
func (c *Client) Probe(ctx context.Context) (int, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+apiPrefix+"/empty", nil)
	if err != nil {
		return 0, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return 0, networkError(req, err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxErrorBody))
	return res.StatusCode, nil
}

// Apply submits one or more YAML documents. The backend answers with the
// apply output as text.
func (c *Client) Apply(ctx context.Context, manifest []byte) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+apiPrefix+"/apply", bytes.NewReader(manifest))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/yaml")
	body, err := c.do(req)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Delete removes resources by "Kind/name" reference within one namespace.
func (c *Client) Delete(ctx context.Context, namespace string, names []string) error {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = snapshot.DefaultNamespace
	}
	if len(names) == 0 {
		return fmt.Errorf("at least one resource name is required")
	}
	requestBody, err := json.Marshal(deleteRequest{Namespace: namespace, Names: names})
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+apiPrefix+"/delete", bytes.NewReader(requestBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = c.do(req)
	return err
}

func (c *Client) TermsOfServiceURL(ctx context.Context, caURL string) (string, error) {
	caURL = strings.TrimSpace(caURL)
	if caURL == "" {
		return "", fmt.Errorf("ca url is required")
	}
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+apiPrefix+"/tos-url?ca-url="+url.QueryEscape(caURL), nil)
	if err != nil {
		return "", err
	}
	body, err := c.do(req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func (c *Client) HostQualifies(ctx context.Context, hostname string) (bool, error) {
	hostname = strings.TrimSpace(hostname)
	if hostname == "" {
		return false, nil
	}
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+apiPrefix+"/acme-host-qualifies?hostname="+url.QueryEscape(hostname), nil)
	if err != nil {
		return false, err
	}
	var qualifies bool
	if err := c.doJSON(req, &qualifies); err != nil {
		return false, err
	}
	return qualifies, nil
}

func (c *Client) SetLogLevel(ctx context.Context, level string) error {
	form := url.Values{}
	form.Set("loglevel", strings.TrimSpace(level))
	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+apiPrefix+"/log-level", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	_, err = c.do(req)
	return err
}

// RegisterActivity tells the backend an operator is active, which keeps the
// backend's session alive.
func (c *Client) RegisterActivity(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+apiPrefix+"/activity", nil)
	if err != nil {
		return err
	}
	_, err = c.do(req)
	return err
}

// ClusterID needs no credentials.
func (c *Client) ClusterID(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiPrefix+"/config/ambassador-cluster-id", nil)
	if err != nil {
		return "", err
	}
	body, err := c.do(req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func (c *Client) HostStatus(ctx context.Context, hostname string) (HostStatus, error) {
	hostname = strings.TrimSpace(hostname)
	if hostname == "" {
		return HostStatus{}, fmt.Errorf("hostname is required")
	}
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+tlsPrefix+"/status?hostname="+url.QueryEscape(hostname), nil)
	if err != nil {
		return HostStatus{}, err
	}
	var status HostStatus
	if err := c.doJSON(req, &status); err != nil {
		return HostStatus{}, err
	}
	if status.Hostname == "" {
		status.Hostname = hostname
	}
	return status, nil
}

// BootstrapHost asks the backend to generate and apply the Host
// configuration for a hostname. The generated YAML is returned.
func (c *Client) BootstrapHost(ctx context.Context, hostname, authority, email string) (string, error) {
	hostname = strings.TrimSpace(hostname)
	if hostname == "" {
		return "", fmt.Errorf("hostname is required")
	}
	query := url.Values{}
	query.Set("hostname", hostname)
	query.Set("acme_authority", strings.TrimSpace(authority))
	query.Set("acme_email", strings.TrimSpace(email))
	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+tlsPrefix+"/yaml?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}
	body, err := c.do(req)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) OpenAPIServices(ctx context.Context) ([]OpenAPIService, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/openapi/services", nil)
	if err != nil {
		return nil, err
	}
	var services []OpenAPIService
	if err := c.doJSON(req, &services); err != nil {
		return nil, err
	}
	return services, nil
}

// OpenAPIDocument fetches a service's OpenAPI document. Documents are cached
// per service until Forget is called or the cache evicts them.
func (c *Client) OpenAPIDocument(ctx context.Context, namespace, name string) (json.RawMessage, error) {
	namespace = strings.TrimSpace(namespace)
	name = strings.TrimSpace(name)
	if namespace == "" || name == "" {
		return nil, fmt.Errorf("namespace and service name are required")
	}
	cacheKey := namespace + "/" + name
	if c.docs != nil {
		if doc, ok := c.docs.Get(cacheKey); ok {
			return doc, nil
		}
	}
	endpoint := fmt.Sprintf("%s/openapi/services/%s/%s/openapi.json", c.baseURL, url.PathEscape(namespace), url.PathEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("openapi document for %s is not valid json", cacheKey)
	}
	doc := json.RawMessage(body)
	if c.docs != nil {
		c.docs.Add(cacheKey, doc)
	}
	return doc, nil
}

func (c *Client) Forget(namespace, name string) {
	if c.docs != nil {
		c.docs.Remove(strings.TrimSpace(namespace) + "/" + strings.TrimSpace(name))
	}
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	res, err := c.http.Do(req)
	if err != nil {
		return nil, networkError(req, err)
	}
	defer res.Body.Close()

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, &HTTPError{
			Method:     req.Method,
			Path:       req.URL.Path,
			StatusCode: res.StatusCode,
			Body:       string(body),
		}
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, networkError(req, err)
	}
	return body, nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	body, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func networkError(req *http.Request, err error) error {
	return fmt.Errorf("%s %s: %w: %w", req.Method, req.URL.Path, consoleerr.ErrNetwork, err)
}
