package snapshot

import "encoding/json"

type HostSpec struct {
	Hostname     string        `json:"hostname,omitempty"`
	AcmeProvider *ACMEProvider `json:"acmeProvider,omitempty"`
	TLSSecret    *SecretRef    `json:"tlsSecret,omitempty"`
}

type ACMEProvider struct {
	Authority        string     `json:"authority,omitempty"`
	Email            string     `json:"email,omitempty"`
	PrivateKeySecret *SecretRef `json:"privateKeySecret,omitempty"`
}

type SecretRef struct {
	Name string `json:"name,omitempty"`
}

// ACMEAuthorityNone disables certificate management for a Host.
const ACMEAuthorityNone = "none"

func (s HostSpec) UsesACME() bool {
	return s.AcmeProvider != nil && s.AcmeProvider.Authority != "" && s.AcmeProvider.Authority != ACMEAuthorityNone
}

type HostStatus struct {
	State       string `json:"state,omitempty"`
	Reason      string `json:"reason,omitempty"`
	PhaseNeeded string `json:"phaseNeeded,omitempty"`
}

type MappingSpec struct {
	Prefix    string         `json:"prefix,omitempty"`
	Service   string         `json:"service,omitempty"`
	Host      string         `json:"host,omitempty"`
	Rewrite   *string        `json:"rewrite,omitempty"`
	Weight    int            `json:"weight,omitempty"`
	TimeoutMS int            `json:"timeout_ms,omitempty"`
	Resolver  string         `json:"resolver,omitempty"`
	Labels    map[string]any `json:"labels,omitempty"`
	Headers   map[string]any `json:"headers,omitempty"`
}

type RateLimitSpec struct {
	Domain string  `json:"domain,omitempty"`
	Limits []Limit `json:"limits,omitempty"`
}

// Limit is one rate limit rule. Pattern entries match request labels set on
// mappings, each entry a single key/value pair.
type Limit struct {
	Pattern []map[string]string `json:"pattern,omitempty"`
	Rate    int                 `json:"rate"`
	Unit    string              `json:"unit,omitempty"`
}

// FilterSpec carries exactly one filter type; the key present names it.
type FilterSpec struct {
	OAuth2   *OAuth2Filter   `json:"OAuth2,omitempty"`
	External *ExternalFilter `json:"External,omitempty"`
	JWT      *JWTFilter      `json:"JWT,omitempty"`
	Plugin   *PluginFilter   `json:"Plugin,omitempty"`
	Internal map[string]any  `json:"Internal,omitempty"`
}

const (
	FilterTypeOAuth2   = "OAuth2"
	FilterTypeExternal = "External"
	FilterTypeJWT      = "JWT"
	FilterTypePlugin   = "Plugin"
	FilterTypeInternal = "Internal"
)

// Type names the filter type present, or "" when none is.
func (s FilterSpec) Type() string {
	switch {
	case s.OAuth2 != nil:
		return FilterTypeOAuth2
	case s.External != nil:
		return FilterTypeExternal
	case s.JWT != nil:
		return FilterTypeJWT
	case s.Plugin != nil:
		return FilterTypePlugin
	case s.Internal != nil:
		return FilterTypeInternal
	default:
		return ""
	}
}

type OAuth2Filter struct {
	AuthorizationURL      string `json:"authorizationURL,omitempty"`
	GrantType             string `json:"grantType,omitempty"`
	AccessTokenValidation string `json:"accessTokenValidation,omitempty"`
	ClientURL             string `json:"clientURL,omitempty"`
	ClientID              string `json:"clientID,omitempty"`
	StateTTL              string `json:"stateTTL,omitempty"`
	Secret                string `json:"secret,omitempty"`
	SecretName            string `json:"secretName,omitempty"`
	SecretNamespace       string `json:"secretNamespace,omitempty"`
	InsecureTLS           *bool  `json:"insecureTLS,omitempty"`
	RenegotiateTLS        string `json:"renegotiateTLS,omitempty"`
	MaxStale              string `json:"maxStale,omitempty"`
}

type ExternalFilter struct {
	AuthService                 string   `json:"auth_service,omitempty"`
	PathPrefix                  string   `json:"path_prefix,omitempty"`
	TLS                         *bool    `json:"tls,omitempty"`
	Proto                       string   `json:"proto,omitempty"`
	AllowRequestBody            *bool    `json:"allow_request_body,omitempty"`
	TimeoutMS                   int      `json:"timeout_ms,omitempty"`
	AllowedRequestHeaders       []string `json:"allowed_request_headers,omitempty"`
	AllowedAuthorizationHeaders []string `json:"allowed_authorization_headers,omitempty"`
}

type JWTFilter struct {
	ValidAlgorithms      []string         `json:"validAlgorithms,omitempty"`
	JWKSURI              string           `json:"jwksURI,omitempty"`
	Audience             string           `json:"audience,omitempty"`
	RequireAudience      *bool            `json:"requireAudience,omitempty"`
	Issuer               string           `json:"issuer,omitempty"`
	RequireIssuer        *bool            `json:"requireIssuer,omitempty"`
	RequireIssuedAt      *bool            `json:"requireIssuedAt,omitempty"`
	RequireExpiresAt     *bool            `json:"requireExpiresAt,omitempty"`
	RequireNotBefore     *bool            `json:"requireNotBefore,omitempty"`
	InjectRequestHeaders []HeaderTemplate `json:"injectRequestHeaders,omitempty"`
	InsecureTLS          *bool            `json:"insecureTLS,omitempty"`
	RenegotiateTLS       string           `json:"renegotiateTLS,omitempty"`
	ErrorResponse        *ErrorResponse   `json:"errorResponse,omitempty"`
}

// HeaderTemplate is a header whose value is a template rendered per request.
type HeaderTemplate struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type ErrorResponse struct {
	Headers      []HeaderTemplate `json:"headers,omitempty"`
	BodyTemplate string           `json:"bodyTemplate,omitempty"`
}

type PluginFilter struct {
	Name string `json:"name,omitempty"`
}

type FilterPolicySpec struct {
	Rules []FilterRule `json:"rules"`
}

// FilterRule applies filters, in order, to requests matching host and path.
type FilterRule struct {
	Host    string      `json:"host"`
	Path    string      `json:"path"`
	Filters []FilterRef `json:"filters"`
}

type FilterRef struct {
	Name      string          `json:"name"`
	Namespace string          `json:"namespace,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}
