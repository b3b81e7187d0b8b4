package panels

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"

	"github.com/dwizi/edge-console/internal/resource"
	"github.com/dwizi/edge-console/internal/snapshot"
)

const oauthFilterSnapshot = `{"Filter": [{"metadata": {"namespace": "default", "name": "login"}, "spec": {"OAuth2": {
  "authorizationURL": "https://idp.example.com",
  "clientID": "console",
  "extraAuthorizationParameters": {"prompt": "consent"}
}}}]}`

func mergedSpec(t *testing.T, editor *resource.Editor[snapshot.FilterSpec]) map[string]any {
	t.Helper()
	out, _, err := editor.MergedYAML()
	require.NoError(t, err)
	var doc struct {
		Spec map[string]any `json:"spec"`
	}
	require.NoError(t, yaml.Unmarshal(out, &doc))
	return doc.Spec
}

func TestFilterKeepsUnknownKeysUnderSameType(t *testing.T) {
	filters := NewFilters()
	filters.Reconcile(parse(t, oauthFilterSnapshot))
	editor := filters.Editors()[0]
	editor.Edit()
	require.Equal(t, snapshot.FilterTypeOAuth2, editor.Input(FilterFieldType))
	require.True(t, FilterFieldShown(editor.Inputs(), filterOAuth2ClientID))
	require.False(t, FilterFieldShown(editor.Inputs(), filterJWTJWKSURI))

	editor.SetInput(filterOAuth2ClientID, "console-v2")
	require.Empty(t, editor.Validate())
	spec := mergedSpec(t, editor)
	oauth := spec["OAuth2"].(map[string]any)
	require.Equal(t, "console-v2", oauth["clientID"])
	require.Equal(t, map[string]any{"prompt": "consent"}, oauth["extraAuthorizationParameters"])
	require.NotContains(t, oauth, "insecureTLS", "an unset flag stays unset")
}

func TestFilterTypeChangeDropsOldBlock(t *testing.T) {
	filters := NewFilters()
	filters.Reconcile(parse(t, oauthFilterSnapshot))
	editor := filters.Editors()[0]
	editor.Edit()
	editor.SetInput(FilterFieldType, snapshot.FilterTypeJWT)
	editor.SetInput(filterJWTJWKSURI, "https://idp.example.com/jwks")
	editor.SetInput(FilterFieldInjectHeaders, `X-User={{ .token.Claims.sub }}`)
	editor.SetInput(filterJWTRequireAudience, "false")
	require.Empty(t, editor.Validate())

	spec := mergedSpec(t, editor)
	require.NotContains(t, spec, "OAuth2")
	jwt := spec["JWT"].(map[string]any)
	require.Equal(t, "https://idp.example.com/jwks", jwt["jwksURI"])
	require.Equal(t, false, jwt["requireAudience"])
	require.Equal(t, []any{map[string]any{"name": "X-User", "value": "{{ .token.Claims.sub }}"}}, jwt["injectRequestHeaders"])

	mutator := &recordingMutator{}
	require.NoError(t, editor.Save(context.Background(), mutator))
	require.Len(t, mutator.applied, 1)
}

func TestFilterValidation(t *testing.T) {
	validate := func(in resource.Values) []string {
		return FilterCapability{}.Validate(resource.Draft[snapshot.FilterSpec]{Mode: resource.ModeEdit, Inputs: in})
	}
	require.Equal(t, []string{"Type must be one of OAuth2, External, JWT, Plugin"}, validate(resource.Values{FilterFieldType: "Basic"}))
	require.Equal(t, []string{
		"Authorization URL must not be empty",
		"Grant type must be one of AuthorizationCode, ClientCredentials",
		"Access token validation must be one of auto, jwt, userinfo",
	}, validate(resource.Values{FilterFieldType: snapshot.FilterTypeOAuth2, filterOAuth2GrantType: "Password"}))
	require.Equal(t, []string{
		"Auth service must not be empty",
		"Protocol must be one of http, grpc",
		"Timeout must be a non-negative number of milliseconds",
	}, validate(resource.Values{FilterFieldType: snapshot.FilterTypeExternal, filterExternalTimeout: "-5"}))
	require.Equal(t, []string{"Plugin name must not be empty"}, validate(resource.Values{FilterFieldType: snapshot.FilterTypePlugin}))
	require.Len(t, validate(resource.Values{FilterFieldType: snapshot.FilterTypeJWT, FilterFieldInjectHeaders: "X-User"}), 1)
}

func TestFilterAddSeedsOAuth2(t *testing.T) {
	filters := NewFilters()
	filters.Reconcile(parse(t, `{"Filter": []}`))
	add := filters.AddEditor()
	add.Add()
	require.Equal(t, snapshot.FilterTypeOAuth2, add.Input(FilterFieldType))
	require.Equal(t, "AuthorizationCode", add.Input(filterOAuth2GrantType))
	require.Equal(t, "", add.Input(filterOAuth2InsecureTLS))
}

func TestHeaderTemplatesQuoteAndReadBack(t *testing.T) {
	headers := []snapshot.HeaderTemplate{
		{Name: "X-User", Value: "{{ .token.Claims.sub }}"},
		{Name: "X-Scopes", Value: `{{ join "," .token.Claims.scope }}`},
	}
	text := FormatHeaderTemplates(headers)
	require.Equal(t, "X-User=\"{{ .token.Claims.sub }}\"\nX-Scopes=\"{{ join \\\",\\\" .token.Claims.scope }}\"", text)
	parsed, err := ParseHeaderTemplates(SplitLine(JoinLines(text)))
	require.NoError(t, err)
	require.Equal(t, headers, parsed)

	_, err = ParseHeaderTemplates("\nX-User")
	require.EqualError(t, err, "line 2 headers must be name=value")
}

func TestFilterPolicyUnchangedEditSaves(t *testing.T) {
	policies := NewFilterPolicies()
	policies.Reconcile(parse(t, `{"FilterPolicy": [{"metadata": {"namespace": "default", "name": "edge"}, "spec": {"rules": [
	  {"host": "*", "path": "/api/*", "filters": [
	    {"name": "login", "namespace": "default", "arguments": {"scopes": ["openid", "profile"]}},
	    {"name": "jwt"}
	  ]},
	  {"host": "docs.example.com", "path": "/public path/*", "filters": []}
	]}}]}`))
	editor := policies.Editors()[0]
	editor.Edit()
	require.Equal(t,
		"* /api/* default/login=\"{\\\"scopes\\\":[\\\"openid\\\",\\\"profile\\\"]}\",jwt\ndocs.example.com \"/public path/*\" -",
		editor.Input(FilterPolicyFieldRules))

	editor.SetInput(FilterPolicyFieldRules, SplitLine(JoinLines(editor.Input(FilterPolicyFieldRules))))
	require.Empty(t, editor.Validate())
	mutator := &recordingMutator{}
	require.NoError(t, editor.Save(context.Background(), mutator))
	require.Len(t, mutator.applied, 1)

	var saved struct {
		Spec snapshot.FilterPolicySpec `json:"spec"`
	}
	require.NoError(t, yaml.Unmarshal(mutator.applied[0], &saved))
	require.Len(t, saved.Spec.Rules, 2)
	first := saved.Spec.Rules[0]
	require.Equal(t, "/api/*", first.Path)
	require.Len(t, first.Filters, 2)
	require.Equal(t, "default", first.Filters[0].Namespace)
	require.JSONEq(t, `{"scopes": ["openid", "profile"]}`, string(first.Filters[0].Arguments))
	require.Equal(t, snapshot.FilterRef{Name: "jwt"}, first.Filters[1])
	require.Equal(t, snapshot.FilterRule{Host: "docs.example.com", Path: "/public path/*", Filters: []snapshot.FilterRef{}}, saved.Spec.Rules[1])
}

func TestFilterPolicyRuleErrors(t *testing.T) {
	_, err := ParseRules("*")
	require.EqualError(t, err, "Rule 1 needs a host and a path")
	_, err = ParseRules("* /a login=notjson")
	require.EqualError(t, err, `Rule 1 arguments of login are not JSON: "notjson"`)
	_, err = ParseRules("* /a login jwt")
	require.EqualError(t, err, "Rule 1 filter references must be separated by commas")

	rules, err := ParseRules("\n* /a default/login, jwt\n")
	require.NoError(t, err)
	require.Equal(t, []snapshot.FilterRule{{Host: "*", Path: "/a", Filters: []snapshot.FilterRef{
		{Name: "login", Namespace: "default"},
		{Name: "jwt"},
	}}}, rules)

	seedName, seed := FilterPolicyCapability{}.Seed()
	require.Empty(t, seedName)
	require.NotNil(t, seed.Rules)
}
