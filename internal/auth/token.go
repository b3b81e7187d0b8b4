package auth

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/dwizi/edge-console/internal/consoleerr"
)

// CookieName is the cookie the admin web console keeps its token in.
const CookieName = "edge_stack_auth"

// ExtractToken accepts the forms an operator is likely to paste: the bare
// token, the console URL with the token in its fragment, a Cookie header,
// or a Netscape cookie jar.
func ExtractToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if parsed, err := url.Parse(raw); err == nil && parsed.Scheme != "" && parsed.Host != "" {
		return strings.TrimSpace(parsed.Fragment)
	}
	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if token, ok := cookieValue(line); ok {
			return token
		}
	}
	if strings.ContainsAny(raw, "\n\t ;") {
		return ""
	}
	return raw
}

func cookieValue(line string) (string, bool) {
	if line == "" || strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "#HttpOnly_") {
		return "", false
	}
	// Netscape jar: domain, flag, path, secure, expiry, name, value.
	if fields := strings.Split(line, "\t"); len(fields) == 7 && fields[5] == CookieName {
		return strings.TrimSpace(fields[6]), true
	}
	line = strings.TrimPrefix(line, "Cookie:")
	for _, part := range strings.Split(line, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && name == CookieName {
			return strings.TrimSpace(value), true
		}
	}
	return "", false
}

// FileTokenSource reads the token from a file and keeps it until Reload.
type FileTokenSource struct {
	path string

	mu    sync.RWMutex
	token string
}

func NewFileTokenSource(path string) (*FileTokenSource, error) {
	source := &FileTokenSource{path: path}
	if err := source.Reload(); err != nil {
		return nil, err
	}
	return source, nil
}

func (s *FileTokenSource) Path() string {
	return s.path
}

func (s *FileTokenSource) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read token file %s: %w", s.path, err)
	}
	token := ExtractToken(string(data))
	if token == "" {
		return fmt.Errorf("token file %s: %w", s.path, consoleerr.ErrNoToken)
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

func (s *FileTokenSource) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}
