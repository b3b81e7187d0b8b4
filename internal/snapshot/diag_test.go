package snapshot

import "testing"

const diagDoc = `{
  "system": {
    "version": "1.4.0", "hostname": "edge-0", "cluster_id": "c-1", "env_good": false,
    "env_status": {
      "Mappings": {"status": true, "specifics": [[true, "3 Mappings are active"]]},
      "Error check": {"status": false, "specifics": [[false, "1 error"]]}
    }
  },
  "route_info": [
    {"key": "/foo/", "diag_class": "public", "precedence": 0, "headers": [],
     "clusters": [{"service": "foo:80", "weight": 100.0, "_hcolor": "green", "type_label": ""}]},
    {"key": "/ambassador/v0/check_ready", "diag_class": "private", "precedence": 1000000,
     "headers": [{"name": ":authority", "value": "*"}],
     "clusters": [{"service": "127.0.0.1:8877", "weight": 100.0}]}
  ],
  "source_map": {
    "myresolver.default": {"myresolver.default.1": true},
    "myresolver.default.1": {"myresolver.default.1": true}
  },
  "ambassador_resolvers": [{"_source": "myresolver.default.1", "kind": "KubernetesEndpointResolver"}],
  "ambassador_services": [{"_source": "foo.default.1", "name": "foo:80", "cluster": "cluster_foo_80", "_service_weight": 100, "type": "Mapping"}],
  "envoy_status": {"ready": true, "alive": true, "since_update": "2 seconds ago", "uptime": "1 hour"},
  "cluster_stats": {"cluster_foo_80": {"valid": true, "health": "100% healthy", "hcolor": "green", "healthy_percent": 100}},
  "loginfo": {"all": "debug"},
  "errors": [["foo.default.1", "service foo missing"]]
}`

func TestParseDiagnostics(t *testing.T) {
	diag, err := ParseDiagnostics([]byte(diagDoc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diag.System.ClusterID != "c-1" || diag.System.EnvGood {
		t.Fatalf("unexpected system: %+v", diag.System)
	}
	if len(diag.System.EnvStatus) != 2 || diag.System.EnvStatus[0].Name != "Error check" {
		t.Fatalf("expected sorted env checks, got %+v", diag.System.EnvStatus)
	}
	if len(diag.Routes) != 2 || !diag.Routes[1].Private || diag.Routes[1].Headers[0].Name != ":authority" {
		t.Fatalf("unexpected routes: %+v", diag.Routes)
	}
	if diag.Routes[0].Clusters[0].Weight != 100 {
		t.Fatalf("unexpected weight: %v", diag.Routes[0].Clusters[0].Weight)
	}
	if len(diag.Resolvers) != 1 || diag.Resolvers[0].Kind != KindKubernetesEndpointResolver {
		t.Fatalf("unexpected resolvers: %+v", diag.Resolvers)
	}
	if len(diag.Services) != 1 || diag.Services[0].Cluster != "cluster_foo_80" {
		t.Fatalf("unexpected services: %+v", diag.Services)
	}
	if !diag.Envoy.Ready || diag.Envoy.SinceUpdate != "2 seconds ago" {
		t.Fatalf("unexpected envoy status: %+v", diag.Envoy)
	}
	if diag.ClusterStats["cluster_foo_80"].Health != "100% healthy" {
		t.Fatalf("unexpected cluster stats: %+v", diag.ClusterStats)
	}
	if diag.LogLevel != "debug" {
		t.Fatalf("unexpected log level %q", diag.LogLevel)
	}
	if len(diag.Errors) != 1 || diag.Errors[0].Message != "service foo missing" {
		t.Fatalf("unexpected errors: %+v", diag.Errors)
	}
}

func TestParentsSkipsSelfReferences(t *testing.T) {
	diag, err := ParseDiagnostics([]byte(diagDoc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	parents := diag.Parents()
	got := parents["myresolver.default.1"]
	if len(got) != 1 || got[0] != "myresolver.default" {
		t.Fatalf("unexpected parents: %v", got)
	}
}

func TestParseErrorsObjectShape(t *testing.T) {
	diag, err := ParseDiagnostics([]byte(`{"errors": {"b.default": [{"error": "second"}], "a.default": [{"error": "first"}]}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(diag.Errors) != 2 || diag.Errors[0].Target != "a.default" || diag.Errors[1].Message != "second" {
		t.Fatalf("unexpected errors: %+v", diag.Errors)
	}
}
