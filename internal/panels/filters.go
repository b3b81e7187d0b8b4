package panels

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dwizi/edge-console/internal/resource"
	"github.com/dwizi/edge-console/internal/snapshot"
)

// FilterFieldType selects the filter type. Every other filter field is
// named "<type>.<key>" and only applies while that type is selected.
const FilterFieldType = "type"

const (
	filterOAuth2AuthorizationURL = "OAuth2.authorizationURL"
	filterOAuth2GrantType        = "OAuth2.grantType"
	filterOAuth2TokenValidation  = "OAuth2.accessTokenValidation"
	filterOAuth2ClientURL        = "OAuth2.clientURL"
	filterOAuth2ClientID         = "OAuth2.clientID"
	filterOAuth2StateTTL         = "OAuth2.stateTTL"
	filterOAuth2Secret           = "OAuth2.secret"
	filterOAuth2SecretName       = "OAuth2.secretName"
	filterOAuth2SecretNamespace  = "OAuth2.secretNamespace"
	filterOAuth2InsecureTLS      = "OAuth2.insecureTLS"
	filterOAuth2RenegotiateTLS   = "OAuth2.renegotiateTLS"
	filterOAuth2MaxStale         = "OAuth2.maxStale"

	filterExternalAuthService    = "External.auth_service"
	filterExternalPathPrefix     = "External.path_prefix"
	filterExternalTLS            = "External.tls"
	filterExternalProto          = "External.proto"
	filterExternalAllowBody      = "External.allow_request_body"
	filterExternalTimeout        = "External.timeout_ms"
	filterExternalRequestHeaders = "External.allowed_request_headers"
	filterExternalAuthHeaders    = "External.allowed_authorization_headers"

	filterJWTAlgorithms       = "JWT.validAlgorithms"
	filterJWTJWKSURI          = "JWT.jwksURI"
	filterJWTAudience         = "JWT.audience"
	filterJWTRequireAudience  = "JWT.requireAudience"
	filterJWTIssuer           = "JWT.issuer"
	filterJWTRequireIssuer    = "JWT.requireIssuer"
	filterJWTRequireIssuedAt  = "JWT.requireIssuedAt"
	filterJWTRequireExpiresAt = "JWT.requireExpiresAt"
	filterJWTRequireNotBefore = "JWT.requireNotBefore"
	// FilterFieldInjectHeaders holds one "name=template" header per line.
	FilterFieldInjectHeaders = "JWT.injectRequestHeaders"
	filterJWTInsecureTLS     = "JWT.insecureTLS"
	filterJWTRenegotiateTLS  = "JWT.renegotiateTLS"
	filterJWTErrorHeaders    = "JWT.errorResponse.headers"
	filterJWTErrorBody       = "JWT.errorResponse.bodyTemplate"

	filterPluginName = "Plugin.name"
)

var (
	filterTypes = []string{
		snapshot.FilterTypeOAuth2,
		snapshot.FilterTypeExternal,
		snapshot.FilterTypeJWT,
		snapshot.FilterTypePlugin,
		snapshot.FilterTypeInternal,
	}
	oauth2GrantTypes       = []string{"AuthorizationCode", "ClientCredentials"}
	oauth2TokenValidations = []string{"auto", "jwt", "userinfo"}
	externalProtos         = []string{"http", "grpc"}
)

type FilterCapability struct{}

func NewFilters() *resource.Set[snapshot.FilterSpec] {
	return resource.NewSet[snapshot.FilterSpec](FilterCapability{})
}

func (FilterCapability) Kind() snapshot.Kind { return snapshot.KindFilter }

func (FilterCapability) Fields(spec snapshot.FilterSpec) []resource.Field {
	oauth := spec.OAuth2
	if oauth == nil {
		oauth = &snapshot.OAuth2Filter{}
	}
	external := spec.External
	if external == nil {
		external = &snapshot.ExternalFilter{}
	}
	jwt := spec.JWT
	if jwt == nil {
		jwt = &snapshot.JWTFilter{}
	}
	plugin := spec.Plugin
	if plugin == nil {
		plugin = &snapshot.PluginFilter{}
	}
	filterType := spec.Type()
	if filterType == "" {
		filterType = snapshot.FilterTypeOAuth2
	}
	timeout := ""
	if external.TimeoutMS != 0 {
		timeout = strconv.Itoa(external.TimeoutMS)
	}
	var errorHeaders []snapshot.HeaderTemplate
	errorBody := ""
	if jwt.ErrorResponse != nil {
		errorHeaders = jwt.ErrorResponse.Headers
		errorBody = jwt.ErrorResponse.BodyTemplate
	}

	return []resource.Field{
		{Name: FilterFieldType, Label: "type (" + strings.Join(filterTypes[:4], ", ") + ")", Value: filterType},

		{Name: filterOAuth2AuthorizationURL, Label: "authorization url", Value: oauth.AuthorizationURL},
		{Name: filterOAuth2GrantType, Label: "grant type", Value: orDefault(oauth.GrantType, oauth2GrantTypes[0])},
		{Name: filterOAuth2TokenValidation, Label: "access token validation", Value: orDefault(oauth.AccessTokenValidation, oauth2TokenValidations[0])},
		{Name: filterOAuth2ClientURL, Label: "client url", Value: oauth.ClientURL},
		{Name: filterOAuth2ClientID, Label: "client id", Value: oauth.ClientID},
		{Name: filterOAuth2StateTTL, Label: "state ttl", Value: oauth.StateTTL},
		{Name: filterOAuth2Secret, Label: "client secret", Value: oauth.Secret},
		{Name: filterOAuth2SecretName, Label: "secret name", Value: oauth.SecretName},
		{Name: filterOAuth2SecretNamespace, Label: "secret namespace", Value: oauth.SecretNamespace},
		{Name: filterOAuth2InsecureTLS, Label: "insecure tls", Value: formatOptionalBool(oauth.InsecureTLS), Kind: resource.FieldBool},
		{Name: filterOAuth2RenegotiateTLS, Label: "renegotiate tls", Value: oauth.RenegotiateTLS},
		{Name: filterOAuth2MaxStale, Label: "max stale", Value: oauth.MaxStale},

		{Name: filterExternalAuthService, Label: "auth service", Value: external.AuthService},
		{Name: filterExternalPathPrefix, Label: "path prefix", Value: external.PathPrefix},
		{Name: filterExternalTLS, Label: "tls", Value: formatOptionalBool(external.TLS), Kind: resource.FieldBool},
		{Name: filterExternalProto, Label: "protocol", Value: orDefault(external.Proto, externalProtos[0])},
		{Name: filterExternalAllowBody, Label: "allow request body", Value: formatOptionalBool(external.AllowRequestBody), Kind: resource.FieldBool},
		{Name: filterExternalTimeout, Label: "timeout ms", Value: timeout},
		{Name: filterExternalRequestHeaders, Label: "allowed request headers", Value: strings.Join(external.AllowedRequestHeaders, ", ")},
		{Name: filterExternalAuthHeaders, Label: "allowed authorization headers", Value: strings.Join(external.AllowedAuthorizationHeaders, ", ")},

		{Name: filterJWTAlgorithms, Label: "valid algorithms", Value: strings.Join(jwt.ValidAlgorithms, ", ")},
		{Name: filterJWTJWKSURI, Label: "jwks uri", Value: jwt.JWKSURI},
		{Name: filterJWTAudience, Label: "audience", Value: jwt.Audience},
		{Name: filterJWTRequireAudience, Label: "require audience", Value: formatOptionalBool(jwt.RequireAudience), Kind: resource.FieldBool},
		{Name: filterJWTIssuer, Label: "issuer", Value: jwt.Issuer},
		{Name: filterJWTRequireIssuer, Label: "require issuer", Value: formatOptionalBool(jwt.RequireIssuer), Kind: resource.FieldBool},
		{Name: filterJWTRequireIssuedAt, Label: "require issued at", Value: formatOptionalBool(jwt.RequireIssuedAt), Kind: resource.FieldBool},
		{Name: filterJWTRequireExpiresAt, Label: "require expires at", Value: formatOptionalBool(jwt.RequireExpiresAt), Kind: resource.FieldBool},
		{Name: filterJWTRequireNotBefore, Label: "require not before", Value: formatOptionalBool(jwt.RequireNotBefore), Kind: resource.FieldBool},
		{Name: FilterFieldInjectHeaders, Label: "inject request headers", Value: FormatHeaderTemplates(jwt.InjectRequestHeaders), Multiline: true},
		{Name: filterJWTInsecureTLS, Label: "insecure tls", Value: formatOptionalBool(jwt.InsecureTLS), Kind: resource.FieldBool},
		{Name: filterJWTRenegotiateTLS, Label: "renegotiate tls", Value: jwt.RenegotiateTLS},
		{Name: filterJWTErrorHeaders, Label: "error response headers", Value: FormatHeaderTemplates(errorHeaders), Multiline: true},
		{Name: filterJWTErrorBody, Label: "error response body template", Value: errorBody},

		{Name: filterPluginName, Label: "plugin name", Value: plugin.Name},
	}
}

func (FilterCapability) Extract(in resource.Values) (snapshot.FilterSpec, error) {
	var spec snapshot.FilterSpec
	switch filterType := strings.TrimSpace(in.Get(FilterFieldType)); filterType {
	case snapshot.FilterTypeOAuth2:
		spec.OAuth2 = &snapshot.OAuth2Filter{
			AuthorizationURL:      trimmed(in, filterOAuth2AuthorizationURL),
			GrantType:             trimmed(in, filterOAuth2GrantType),
			AccessTokenValidation: trimmed(in, filterOAuth2TokenValidation),
			ClientURL:             trimmed(in, filterOAuth2ClientURL),
			ClientID:              trimmed(in, filterOAuth2ClientID),
			StateTTL:              trimmed(in, filterOAuth2StateTTL),
			Secret:                in.Get(filterOAuth2Secret),
			SecretName:            trimmed(in, filterOAuth2SecretName),
			SecretNamespace:       trimmed(in, filterOAuth2SecretNamespace),
			InsecureTLS:           optionalBool(in, filterOAuth2InsecureTLS),
			RenegotiateTLS:        trimmed(in, filterOAuth2RenegotiateTLS),
			MaxStale:              trimmed(in, filterOAuth2MaxStale),
		}
	case snapshot.FilterTypeExternal:
		external := &snapshot.ExternalFilter{
			AuthService:                 trimmed(in, filterExternalAuthService),
			PathPrefix:                  trimmed(in, filterExternalPathPrefix),
			TLS:                         optionalBool(in, filterExternalTLS),
			Proto:                       trimmed(in, filterExternalProto),
			AllowRequestBody:            optionalBool(in, filterExternalAllowBody),
			AllowedRequestHeaders:       splitList(in.Get(filterExternalRequestHeaders)),
			AllowedAuthorizationHeaders: splitList(in.Get(filterExternalAuthHeaders)),
		}
		if timeout, ok := in.Int(filterExternalTimeout); ok {
			external.TimeoutMS = timeout
		}
		spec.External = external
	case snapshot.FilterTypeJWT:
		inject, err := ParseHeaderTemplates(in.Get(FilterFieldInjectHeaders))
		if err != nil {
			return snapshot.FilterSpec{}, fmt.Errorf("inject request headers: %w", err)
		}
		errorHeaders, err := ParseHeaderTemplates(in.Get(filterJWTErrorHeaders))
		if err != nil {
			return snapshot.FilterSpec{}, fmt.Errorf("error response headers: %w", err)
		}
		jwt := &snapshot.JWTFilter{
			ValidAlgorithms:      splitList(in.Get(filterJWTAlgorithms)),
			JWKSURI:              trimmed(in, filterJWTJWKSURI),
			Audience:             trimmed(in, filterJWTAudience),
			RequireAudience:      optionalBool(in, filterJWTRequireAudience),
			Issuer:               trimmed(in, filterJWTIssuer),
			RequireIssuer:        optionalBool(in, filterJWTRequireIssuer),
			RequireIssuedAt:      optionalBool(in, filterJWTRequireIssuedAt),
			RequireExpiresAt:     optionalBool(in, filterJWTRequireExpiresAt),
			RequireNotBefore:     optionalBool(in, filterJWTRequireNotBefore),
			InjectRequestHeaders: inject,
			InsecureTLS:          optionalBool(in, filterJWTInsecureTLS),
			RenegotiateTLS:       trimmed(in, filterJWTRenegotiateTLS),
		}
		if body := in.Get(filterJWTErrorBody); body != "" || len(errorHeaders) > 0 {
			jwt.ErrorResponse = &snapshot.ErrorResponse{Headers: errorHeaders, BodyTemplate: body}
		}
		spec.JWT = jwt
	case snapshot.FilterTypePlugin:
		spec.Plugin = &snapshot.PluginFilter{Name: trimmed(in, filterPluginName)}
	case snapshot.FilterTypeInternal:
		spec.Internal = map[string]any{}
	default:
		return snapshot.FilterSpec{}, fmt.Errorf("unknown filter type %q", filterType)
	}
	return spec, nil
}

func (FilterCapability) Validate(draft resource.Draft[snapshot.FilterSpec]) []string {
	in := draft.Inputs
	var messages []string
	filterType := strings.TrimSpace(in.Get(FilterFieldType))
	switch filterType {
	case snapshot.FilterTypeOAuth2:
		if trimmed(in, filterOAuth2AuthorizationURL) == "" {
			messages = append(messages, "Authorization URL must not be empty")
		}
		if !oneOf(trimmed(in, filterOAuth2GrantType), oauth2GrantTypes) {
			messages = append(messages, "Grant type must be one of "+strings.Join(oauth2GrantTypes, ", "))
		}
		if !oneOf(trimmed(in, filterOAuth2TokenValidation), oauth2TokenValidations) {
			messages = append(messages, "Access token validation must be one of "+strings.Join(oauth2TokenValidations, ", "))
		}
	case snapshot.FilterTypeExternal:
		if trimmed(in, filterExternalAuthService) == "" {
			messages = append(messages, "Auth service must not be empty")
		}
		if !oneOf(trimmed(in, filterExternalProto), externalProtos) {
			messages = append(messages, "Protocol must be one of "+strings.Join(externalProtos, ", "))
		}
		if raw := trimmed(in, filterExternalTimeout); raw != "" {
			if timeout, ok := in.Int(filterExternalTimeout); !ok || timeout < 0 {
				messages = append(messages, "Timeout must be a non-negative number of milliseconds")
			}
		}
	case snapshot.FilterTypeJWT:
		if _, err := ParseHeaderTemplates(in.Get(FilterFieldInjectHeaders)); err != nil {
			messages = append(messages, "Inject request headers: "+err.Error())
		}
		if _, err := ParseHeaderTemplates(in.Get(filterJWTErrorHeaders)); err != nil {
			messages = append(messages, "Error response headers: "+err.Error())
		}
	case snapshot.FilterTypePlugin:
		if trimmed(in, filterPluginName) == "" {
			messages = append(messages, "Plugin name must not be empty")
		}
	case snapshot.FilterTypeInternal:
		if draft.Mode == resource.ModeAdd {
			messages = append(messages, "Internal filters are created by the gateway, not the console")
		}
	default:
		messages = append(messages, "Type must be one of "+strings.Join(filterTypes[:4], ", "))
	}
	return messages
}

// DraftMergeStrategy keeps unknown keys under an unchanged filter type and
// drops the old type's block when the type changes.
func (FilterCapability) DraftMergeStrategy(draft resource.Draft[snapshot.FilterSpec], path string) resource.Strategy {
	confirmed := draft.Confirmed.Type()
	if confirmed == "" || path != "spec."+confirmed {
		return ""
	}
	if strings.TrimSpace(draft.Inputs.Get(FilterFieldType)) == confirmed {
		return resource.StrategyMerge
	}
	return resource.StrategyReplace
}

func (FilterCapability) Summary(obj snapshot.Object[snapshot.FilterSpec]) []string {
	lines := []string{"type: " + orDefault(obj.Spec.Type(), "unknown")}
	switch {
	case obj.Spec.OAuth2 != nil:
		lines = append(lines, "authorization url: "+obj.Spec.OAuth2.AuthorizationURL)
		if obj.Spec.OAuth2.ClientID != "" {
			lines = append(lines, "client id: "+obj.Spec.OAuth2.ClientID)
		}
	case obj.Spec.External != nil:
		lines = append(lines, "auth service: "+obj.Spec.External.AuthService)
	case obj.Spec.JWT != nil:
		if obj.Spec.JWT.JWKSURI != "" {
			lines = append(lines, "jwks uri: "+obj.Spec.JWT.JWKSURI)
		}
	case obj.Spec.Plugin != nil:
		lines = append(lines, "plugin: "+obj.Spec.Plugin.Name)
	}
	return lines
}

func (FilterCapability) Seed() (string, snapshot.FilterSpec) {
	return "", snapshot.FilterSpec{OAuth2: &snapshot.OAuth2Filter{}}
}

func (FilterCapability) SortFields() []resource.SortField {
	return []resource.SortField{
		{Value: "name", Label: "Name"},
		{Value: "namespace", Label: "Namespace"},
	}
}

func (FilterCapability) SortKey(field string, obj snapshot.Object[snapshot.FilterSpec]) string {
	if field == "namespace" {
		return obj.Resource.Namespace()
	}
	return obj.Resource.Name()
}

// FilterFieldShown reports whether a filter field applies to the selected
// type.
func FilterFieldShown(inputs resource.Values, name string) bool {
	filterType, _, scoped := strings.Cut(name, ".")
	return !scoped || filterType == strings.TrimSpace(inputs.Get(FilterFieldType))
}

// FormatHeaderTemplates renders headers one per line as "name=template".
func FormatHeaderTemplates(headers []snapshot.HeaderTemplate) string {
	lines := make([]string, 0, len(headers))
	for _, header := range headers {
		lines = append(lines, quoteToken(header.Name)+"="+quoteToken(header.Value))
	}
	return strings.Join(lines, "\n")
}

// ParseHeaderTemplates reads FormatHeaderTemplates text back. Blank lines
// are skipped.
func ParseHeaderTemplates(text string) ([]snapshot.HeaderTemplate, error) {
	lines, numbers := nonEmptyLines(text)
	var headers []snapshot.HeaderTemplate
	for i, line := range lines {
		name, rest, err := readToken(line, "=")
		if err == nil && (name == "" || !strings.HasPrefix(strings.TrimLeft(rest, " \t"), "=")) {
			err = errors.New("headers must be name=value")
		}
		if err != nil {
			return nil, fmt.Errorf("line %d %w", numbers[i], err)
		}
		rest = strings.TrimLeft(rest, " \t")[1:]
		value, tail, err := readToken(strings.TrimLeft(rest, " \t"), "")
		if err == nil && strings.TrimSpace(tail) != "" {
			err = errors.New("unexpected text after the header value")
		}
		if err != nil {
			return nil, fmt.Errorf("line %d %w", numbers[i], err)
		}
		headers = append(headers, snapshot.HeaderTemplate{Name: name, Value: value})
	}
	return headers, nil
}

func trimmed(in resource.Values, name string) string {
	return strings.TrimSpace(in.Get(name))
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func oneOf(value string, allowed []string) bool {
	for _, candidate := range allowed {
		if value == candidate {
			return true
		}
	}
	return false
}

// formatOptionalBool renders an unset flag as "" so saving the form leaves
// it unset.
func formatOptionalBool(value *bool) string {
	if value == nil {
		return ""
	}
	return strconv.FormatBool(*value)
}

func optionalBool(in resource.Values, name string) *bool {
	if trimmed(in, name) == "" {
		return nil
	}
	value := in.Bool(name)
	return &value
}

func splitList(text string) []string {
	var out []string
	for _, item := range strings.Split(text, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
