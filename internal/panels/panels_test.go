package panels

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"

	"github.com/dwizi/edge-console/internal/adminclient"
	"github.com/dwizi/edge-console/internal/lookup"
	"github.com/dwizi/edge-console/internal/resource"
	"github.com/dwizi/edge-console/internal/snapshot"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parse(t *testing.T, doc string) *snapshot.Snapshot {
	t.Helper()
	snap, err := snapshot.Parse([]byte(doc))
	require.NoError(t, err)
	return snap
}

type recordingMutator struct {
	mu      sync.Mutex
	applied [][]byte
}

func (m *recordingMutator) Apply(_ context.Context, manifest []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied = append(m.applied, manifest)
	return "ok", nil
}

func (m *recordingMutator) Delete(context.Context, string, []string) error { return nil }

func TestMappingsRenderOneRowPlusAdd(t *testing.T) {
	mappings := NewMappings()
	mappings.Reconcile(parse(t, `{"Mapping": [{"metadata":{"namespace":"default","name":"foo"},"spec":{"prefix":"/foo/","service":"foo:80"}}]}`))

	views := mappings.Views()
	require.Len(t, views, 1)
	require.Equal(t, resource.ModeList, views[0].Mode())
	require.Equal(t, []string{"/foo/ -> foo:80"}, views[0].Summary())
	fields := views[0].Fields()
	require.Equal(t, "/foo/", fields[0].Value)
	require.Equal(t, "foo:80", fields[1].Value)

	add := mappings.AddView()
	require.NotNil(t, add)
	require.True(t, add.Synthetic())
}

func TestMappingValidation(t *testing.T) {
	messages := MappingCapability{}.Validate(resource.Draft[snapshot.MappingSpec]{
		Inputs: resource.Values{MappingFieldPrefix: "foo", MappingFieldWeight: "x"},
	})
	require.Equal(t, []string{
		"Prefix must start with /",
		"Target service must not be empty",
		"Weight must be a number between 0 and 100",
	}, messages)
}

func TestHostAddSubmitsOneCreate(t *testing.T) {
	hosts := NewHosts("console.local", nil, nil)
	hosts.Set.Reconcile(parse(t, `{"Host": []}`))
	add := hosts.Set.AddEditor()
	require.Equal(t, resource.ModeAdd, add.Mode(), "an empty host list opens the add view")
	require.Equal(t, "console.local", add.Input(HostFieldHostname))
	require.Equal(t, DefaultACMEAuthority, add.Input(HostFieldProvider))

	add.SetInput(resource.InputName, "example-com")
	add.SetInput(HostFieldHostname, "example.com")
	add.SetInput(HostFieldUseACME, "true")
	add.SetInput(HostFieldProvider, "https://acme.example/directory")
	add.SetInput(HostFieldEmail, "a@b.com")

	mutator := &recordingMutator{}
	err := add.Save(context.Background(), mutator)
	var validationErr *resource.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, []string{"You must agree to terms of service"}, validationErr.Messages)

	add.SetInput(HostFieldTOSAgree, "true")
	require.NoError(t, add.Save(context.Background(), mutator))
	require.Len(t, mutator.applied, 1)
	require.Zero(t, hosts.Set.Len())

	var doc struct {
		Kind string            `json:"kind"`
		Spec snapshot.HostSpec `json:"spec"`
	}
	require.NoError(t, yaml.Unmarshal(mutator.applied[0], &doc))
	require.Equal(t, "Host", doc.Kind)
	require.Equal(t, snapshot.HostSpec{
		Hostname:     "example.com",
		AcmeProvider: &snapshot.ACMEProvider{Authority: "https://acme.example/directory", Email: "a@b.com"},
	}, doc.Spec)
}

func TestHostValidationEmail(t *testing.T) {
	capability := HostCapability{}
	draft := resource.Draft[snapshot.HostSpec]{
		Mode:   resource.ModeEdit,
		Inputs: resource.Values{HostFieldUseACME: "true", HostFieldEmail: "nope"},
	}
	require.Equal(t, []string{"That doesn't look like a valid email address"}, capability.Validate(draft))

	draft.Inputs[HostFieldShowTOS] = "true"
	require.Len(t, capability.Validate(draft), 2)

	draft.Inputs[HostFieldUseACME] = "false"
	require.Empty(t, capability.Validate(draft))
}

func TestHostExtractWithoutACME(t *testing.T) {
	spec, err := HostCapability{}.Extract(resource.Values{HostFieldHostname: "h", HostFieldUseACME: "false", HostFieldEmail: "x@y.io"})
	require.NoError(t, err)
	require.Equal(t, snapshot.HostSpec{Hostname: "h", AcmeProvider: &snapshot.ACMEProvider{Authority: "none"}}, spec)
}

func TestHostState(t *testing.T) {
	snap := parse(t, `{"Host": [
	  {"metadata": {"name": "a"}, "spec": {}, "status": {"state": "Error", "reason": "rate limited"}},
	  {"metadata": {"name": "b"}, "spec": {}, "status": {"state": "Ready"}},
	  {"metadata": {"name": "c"}, "spec": {}}
	]}`)
	hosts := snap.Resources(snapshot.KindHost)
	require.Equal(t, "Error (rate limited)", HostState(hosts[0]))
	require.Equal(t, "Ready", HostState(hosts[1]))
	require.Equal(t, "<none>", HostState(hosts[2]))
}

type blockingLookups struct {
	started chan string
	release chan struct{}
	qualify bool
}

func (l *blockingLookups) TermsOfServiceURL(ctx context.Context, caURL string) (string, error) {
	l.started <- caURL
	if caURL == "https://first.example/directory" {
		<-ctx.Done()
		return "", ctx.Err()
	}
	<-l.release
	return "https://second.example/tos.pdf", nil
}

func (l *blockingLookups) HostQualifies(context.Context, string) (bool, error) {
	return l.qualify, nil
}

func TestProviderChangeKeepsOnlyNewestTOS(t *testing.T) {
	lookups := &blockingLookups{started: make(chan string, 2), release: make(chan struct{})}
	hosts := NewHosts("console.local", lookups, lookup.NewTracker())
	add := hosts.Set.AddView()
	add.Add()

	type result struct {
		tos TermsOfService
		err error
	}
	first := make(chan result, 1)
	go func() {
		tos, err := hosts.ProviderChanged(context.Background(), add, "https://first.example/directory")
		first <- result{tos, err}
	}()
	require.Equal(t, "https://first.example/directory", <-lookups.started)

	second := make(chan result, 1)
	go func() {
		tos, err := hosts.ProviderChanged(context.Background(), add, "https://second.example/directory")
		second <- result{tos, err}
	}()
	require.Equal(t, "https://second.example/directory", <-lookups.started)

	stale := <-first
	require.ErrorIs(t, stale.err, lookup.ErrSuperseded)

	close(lookups.release)
	fresh := <-second
	require.NoError(t, fresh.err)
	require.Equal(t, TermsOfService{URL: "https://second.example/tos.pdf", Domain: "second.example"}, fresh.tos)
	require.Equal(t, "true", add.Input(HostFieldShowTOS))
}

func TestHostnameChangedRespectsExplicitOptOut(t *testing.T) {
	lookups := &blockingLookups{qualify: true}
	hosts := NewHosts("console.local", lookups, nil)
	hosts.Set.Reconcile(parse(t, `{"Host": [
	  {"metadata": {"name": "manual"}, "spec": {"hostname": "m.example", "acmeProvider": {"authority": "none"}}},
	  {"metadata": {"name": "auto"}, "spec": {"hostname": "a.example", "acmeProvider": {"authority": "https://acme/dir"}}}
	]}`))
	views := hosts.Set.Views()
	require.Len(t, views, 2)
	auto, manual := views[0], views[1]

	auto.Edit()
	auto.SetInput(HostFieldUseACME, "false")
	qualifies, err := hosts.HostnameChanged(context.Background(), auto, "b.example")
	require.NoError(t, err)
	require.True(t, qualifies)
	require.Equal(t, "true", auto.Input(HostFieldUseACME))

	manual.Edit()
	_, err = hosts.HostnameChanged(context.Background(), manual, "n.example")
	require.NoError(t, err)
	require.Equal(t, "false", manual.Input(HostFieldUseACME))
}

func TestTOSDomain(t *testing.T) {
	require.Equal(t, "letsencrypt.org", TOSDomain("https://letsencrypt.org/documents/LE-SA-v1.2.pdf"))
	require.Equal(t, "opaque", TOSDomain("opaque"))
}

func TestRateLimitLimits(t *testing.T) {
	limits, err := ParseLimits("generic_key=backend,remote_address=* 10/second\n\n  path=/x 5\n")
	require.NoError(t, err)
	require.Equal(t, []snapshot.Limit{
		{Pattern: []map[string]string{{"generic_key": "backend"}, {"remote_address": "*"}}, Rate: 10, Unit: "second"},
		{Pattern: []map[string]string{{"path": "/x"}}, Rate: 5, Unit: "minute"},
	}, limits)
	require.Equal(t, "generic_key=backend,remote_address=* 10/second", FormatLimit(limits[0]))

	_, err = ParseLimits("a=b 10/fortnight")
	require.EqualError(t, err, "Limit 1 unit must be one of second, minute, hour, day")
	_, err = ParseLimits("just-one-token")
	require.Error(t, err)
}

func TestRateLimitUnchangedEditSaves(t *testing.T) {
	limits := NewRateLimits()
	limits.Reconcile(parse(t, `{"RateLimit": [{"metadata": {"namespace": "default", "name": "backend"}, "spec": {"domain": "ambassador", "limits": [
	  {"pattern": [{"generic_key": "slow path"}], "rate": 5, "unit": "minute"},
	  {"pattern": [{"user-agent": "Mozilla/5.0 (X11, Linux)"}, {"remote_address": "*"}], "rate": 10, "unit": "second"},
	  {"pattern": [{"generic_key": "a;b", "x-tenant": "=quoted\""}], "rate": 1, "unit": "hour"},
	  {"pattern": [], "rate": 100, "unit": "day"}
	]}}]}`))
	editors := limits.Editors()
	require.Len(t, editors, 1)
	editor := editors[0]

	editor.Edit()
	// The form edits the limits on one line and writes them back.
	line := JoinLines(editor.Input(RateLimitFieldLimits))
	editor.SetInput(RateLimitFieldLimits, SplitLine(line))
	require.Empty(t, editor.Validate())

	mutator := &recordingMutator{}
	require.NoError(t, editor.Save(context.Background(), mutator))
	require.Len(t, mutator.applied, 1)

	var saved struct {
		Spec snapshot.RateLimitSpec `json:"spec"`
	}
	require.NoError(t, yaml.Unmarshal(mutator.applied[0], &saved))
	require.Equal(t, []snapshot.Limit{
		{Pattern: []map[string]string{{"generic_key": "slow path"}}, Rate: 5, Unit: "minute"},
		{Pattern: []map[string]string{{"user-agent": "Mozilla/5.0 (X11, Linux)"}, {"remote_address": "*"}}, Rate: 10, Unit: "second"},
		{Pattern: []map[string]string{{"generic_key": "a;b", "x-tenant": "=quoted\""}}, Rate: 1, Unit: "hour"},
		{Rate: 100, Unit: "day"},
	}, saved.Spec.Limits)
}

func TestFormatLimitQuotesAndReadsBack(t *testing.T) {
	limit := snapshot.Limit{Pattern: []map[string]string{{"generic_key": "slow path"}, {"path": ""}}, Rate: 3, Unit: "second"}
	text := FormatLimit(limit)
	require.Equal(t, `generic_key="slow path",path="" 3/second`, text)
	require.Equal(t, "- 7/minute", FormatLimit(snapshot.Limit{Rate: 7}))

	parsed, err := ParseLimits(text + "\n- 7/minute")
	require.NoError(t, err)
	require.Equal(t, []snapshot.Limit{limit, {Pattern: []map[string]string{}, Rate: 7, Unit: "minute"}}, parsed)

	_, err = ParseLimits(`generic_key="open 1/minute`)
	require.Error(t, err)
}

const twoHopDiag = `{
  "ambassador_resolvers": [
    {"_source": "endpoint-resolver.yaml.1", "kind": "KubernetesEndpointResolver", "name": "endpoint"},
    {"_source": "endpoint-resolver.yaml.2", "kind": "KubernetesEndpointResolver", "name": "endpoint"},
    {"_source": "orphan.1", "kind": "ConsulResolver", "name": "consul-dc1"}
  ],
  "source_map": {
    "endpoint.default": {"endpoint-resolver.yaml": true},
    "endpoint-resolver.yaml": {"endpoint-resolver.yaml.1": true, "endpoint-resolver.yaml.2": true}
  }
}`

func TestResolverJoinTwoHopsSingleRow(t *testing.T) {
	snap := parse(t, `{"KubernetesEndpointResolver": [{"metadata": {"name": "endpoint", "namespace": "default"}, "spec": {}}]}`)
	diag, err := snapshot.ParseDiagnostics([]byte(twoHopDiag))
	require.NoError(t, err)

	rows := NewJoiner(quietLogger()).Resolvers(snap, diag)
	require.Len(t, rows, 2)
	require.Equal(t, ResolverRow{
		Kind:         snapshot.KindKubernetesEndpointResolver,
		Name:         "endpoint",
		Namespace:    "default",
		Declared:     true,
		Active:       true,
		RuntimeNames: []string{"endpoint"},
	}, rows[0])
	require.False(t, rows[1].Declared)
	require.Equal(t, "consul-dc1", rows[1].Name)
}

func TestResolveCyclesAndAmbiguity(t *testing.T) {
	parents := map[string][]string{
		"leaf":      {"mid"},
		"mid":       {"b.default", "a.default", "leaf"},
		"a.default": {"mid"},
	}
	declared := func(key string) bool { return key == "a.default" || key == "b.default" }
	match, ok := NewJoiner(quietLogger()).Resolve("leaf", parents, declared)
	require.True(t, ok)
	require.Equal(t, "a.default", match)

	_, ok = NewJoiner(quietLogger()).Resolve("unknown", parents, declared)
	require.False(t, ok)
}

func TestResolvePrefersNearestDeclaredAncestor(t *testing.T) {
	parents := map[string][]string{
		"svc.1":         {"zed.default"},
		"zed.default":   {"alpha.default"},
		"alpha.default": {},
	}
	declared := func(key string) bool { return key == "zed.default" || key == "alpha.default" }

	var logs bytes.Buffer
	joiner := NewJoiner(slog.New(slog.NewTextHandler(&logs, nil)))
	match, ok := joiner.Resolve("svc.1", parents, declared)
	require.True(t, ok)
	require.Equal(t, "zed.default", match)
	require.Empty(t, logs.String(), "a single nearest match is not ambiguous")

	match, ok = joiner.Resolve("zed.default", parents, declared)
	require.True(t, ok)
	require.Equal(t, "zed.default", match, "a declared source resolves to itself")
}

func TestServicesJoinMapping(t *testing.T) {
	snap := parse(t, `{"Mapping": [{"metadata": {"name": "quote", "namespace": "default"}, "spec": {"prefix": "/backend/", "service": "quote"}}]}`)
	diag, err := snapshot.ParseDiagnostics([]byte(`{
	  "ambassador_services": [{"_source": "quote.default.1", "name": "quote", "cluster": "cluster_quote", "type": "Mapping", "_service_weight": 100}],
	  "cluster_stats": {"cluster_quote": {"valid": true, "health": "100% healthy", "healthy_percent": 100}},
	  "source_map": {"quote.default": {"quote.default.1": true}}
	}`))
	require.NoError(t, err)

	rows := NewJoiner(quietLogger()).Services(snap, diag)
	require.Len(t, rows, 1)
	require.Equal(t, "Mapping:default:quote", rows[0].Mapping)
	require.Equal(t, "/backend/", rows[0].Prefix)
	require.Equal(t, "100% healthy", rows[0].Health)
	require.Nil(t, NewJoiner(nil).Services(snap, nil))
}

func TestRoutes(t *testing.T) {
	diag, err := snapshot.ParseDiagnostics([]byte(`{"route_info": [
	  {"key": "/ambassador/v0/check_ready", "diag_class": "private", "precedence": 0, "headers": [], "clusters": [{"service": "127.0.0.1:8877", "weight": 100}]},
	  {"key": "/backend/", "precedence": 1, "headers": [{"name": "x-env", "value": "prod"}], "clusters": [{"service": "quote", "type_label": "http", "weight": 33.333}]}
	]}`))
	require.NoError(t, err)

	rows := Routes(diag)
	require.Len(t, rows, 2)
	require.True(t, rows[0].Internal)
	require.Equal(t, []RouteTarget{{Service: "http:quote", Weight: "33.33%"}}, rows[1].Targets)
	require.Equal(t, []string{"x-env: prod"}, rows[1].Headers)
	require.Equal(t, 1, rows[1].Precedence)
}

type levelRecorder struct{ level string }

func (r *levelRecorder) SetLogLevel(_ context.Context, level string) error {
	r.level = level
	return nil
}

func TestDebugging(t *testing.T) {
	diag, err := snapshot.ParseDiagnostics([]byte(`{
	  "system": {"version": "1.4.0", "env_good": true},
	  "envoy_status": {"ready": true, "since_update": "3 seconds ago"},
	  "loginfo": {"all": "info"},
	  "errors": [["mapping.default", "bad prefix"]]
	}`))
	require.NoError(t, err)
	info := Debugging(&snapshot.Snapshot{RedisInUse: true}, diag)
	require.True(t, info.Available)
	require.Equal(t, "ready (last status report 3 seconds ago)", info.Envoy)
	require.Equal(t, "info", info.LogLevel)
	require.Len(t, info.Errors, 1)
	require.False(t, Debugging(nil, nil).Available)

	recorder := &levelRecorder{}
	require.NoError(t, SetLogLevel(context.Background(), recorder, " DEBUG "))
	require.Equal(t, "debug", recorder.level)
	require.Error(t, SetLogLevel(context.Background(), recorder, "trace"))
}

type docSource struct{ err error }

func (d docSource) OpenAPIServices(context.Context) ([]adminclient.OpenAPIService, error) {
	if d.err != nil {
		return nil, d.err
	}
	return []adminclient.OpenAPIService{
		{ServiceName: "quote", ServiceNamespace: "prod", RoutingPrefix: "/backend/", HasDoc: true},
		{ServiceName: "auth", ServiceNamespace: "prod"},
	}, nil
}

func (docSource) OpenAPIDocument(context.Context, string, string) (json.RawMessage, error) {
	return nil, nil
}

func TestAPIDocs(t *testing.T) {
	docs, err := APIDocs(context.Background(), docSource{})
	require.NoError(t, err)
	require.Equal(t, "auth", docs[0].Name)
	require.True(t, docs[1].HasDoc)

	_, err = APIDocs(context.Background(), docSource{err: errors.New("503")})
	require.ErrorContains(t, err, "503")

	summary := SummarizeAPIDoc(json.RawMessage(`{"info": {"title": "Quote", "version": "2"}, "paths": {"/quote": {"get": {}, "post": {}}}}`))
	require.Equal(t, "Quote", summary.Title)
	require.Equal(t, []string{"GET    /quote", "POST   /quote"}, summary.Operations)
}
