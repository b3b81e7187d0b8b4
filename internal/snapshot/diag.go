package snapshot

import (
	"fmt"
	"sort"
	"time"

	"github.com/tidwall/gjson"
)

// Diagnostics is the runtime view of the gateway: what it actually routes and
// which configuration sources produced each element. The feed is loosely
// typed, so fields are read with gjson paths and missing members are left at
// their zero value.
type Diagnostics struct {
	System       SystemInfo
	Routes       []RouteInfo
	Resolvers    []DiagResolver
	Services     []DiagService
	Envoy        EnvoyStatus
	ClusterStats map[string]ClusterStat
	LogLevel     string
	Errors       []DiagError

	// SourceMap maps a source key to the keys of the elements it produced.
	SourceMap map[string][]string

	FetchedAt time.Time
}

type SystemInfo struct {
	Version         string
	Hostname        string
	ClusterID       string
	AmbassadorID    string
	AmbassadorNS    string
	SingleNamespace bool
	KnativeEnabled  bool
	StatsdEnabled   bool
	EnvGood         bool
	EnvStatus       []EnvCheck
	BootTime        string
	Uptime          string
}

type EnvCheck struct {
	Name      string
	OK        bool
	Specifics []EnvSpecific
}

type EnvSpecific struct {
	OK   bool
	Text string
}

type RouteInfo struct {
	Key        string
	Private    bool
	Headers    []RouteHeader
	Precedence int
	Clusters   []RouteCluster
}

type RouteHeader struct {
	Name  string
	Value string
}

type RouteCluster struct {
	Service   string
	TypeLabel string
	Weight    float64
	HColor    string
}

type DiagResolver struct {
	Source string
	Kind   Kind
	Name   string
}

type DiagService struct {
	Source  string
	Name    string
	Cluster string
	Type    string
	Weight  float64
}

type EnvoyStatus struct {
	Ready       bool
	Alive       bool
	SinceUpdate string
	Uptime      string
}

type ClusterStat struct {
	Valid   bool
	Reason  string
	Health  string
	HColor  string
	Percent float64
}

type DiagError struct {
	Target  string
	Message string
}

func ParseDiagnostics(data []byte) (*Diagnostics, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("parse diagnostics: invalid json")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("parse diagnostics: expected object, got %s", root.Type)
	}

	diag := &Diagnostics{
		System:       parseSystem(root.Get("system")),
		ClusterStats: map[string]ClusterStat{},
		SourceMap:    map[string][]string{},
		LogLevel:     root.Get("loginfo.all").String(),
		FetchedAt:    time.Now().UTC(),
		Envoy: EnvoyStatus{
			Ready:       root.Get("envoy_status.ready").Bool(),
			Alive:       root.Get("envoy_status.alive").Bool(),
			SinceUpdate: root.Get("envoy_status.since_update").String(),
			Uptime:      root.Get("envoy_status.uptime").String(),
		},
	}

	root.Get("route_info").ForEach(func(_, route gjson.Result) bool {
		info := RouteInfo{
			Key:        route.Get("key").String(),
			Private:    route.Get("diag_class").String() == "private",
			Precedence: int(route.Get("precedence").Int()),
		}
		route.Get("headers").ForEach(func(_, header gjson.Result) bool {
			info.Headers = append(info.Headers, RouteHeader{
				Name:  header.Get("name").String(),
				Value: header.Get("value").String(),
			})
			return true
		})
		route.Get("clusters").ForEach(func(_, cluster gjson.Result) bool {
			info.Clusters = append(info.Clusters, RouteCluster{
				Service:   cluster.Get("service").String(),
				TypeLabel: cluster.Get("type_label").String(),
				Weight:    cluster.Get("weight").Float(),
				HColor:    cluster.Get("_hcolor").String(),
			})
			return true
		})
		diag.Routes = append(diag.Routes, info)
		return true
	})

	root.Get("ambassador_resolvers").ForEach(func(_, resolver gjson.Result) bool {
		diag.Resolvers = append(diag.Resolvers, DiagResolver{
			Source: resolver.Get("_source").String(),
			Kind:   Kind(resolver.Get("kind").String()),
			Name:   resolver.Get("name").String(),
		})
		return true
	})

	root.Get("ambassador_services").ForEach(func(_, service gjson.Result) bool {
		diag.Services = append(diag.Services, DiagService{
			Source:  service.Get("_source").String(),
			Name:    service.Get("name").String(),
			Cluster: service.Get("cluster").String(),
			Type:    service.Get("type").String(),
			Weight:  service.Get("_service_weight").Float(),
		})
		return true
	})

	root.Get("cluster_stats").ForEach(func(name, stat gjson.Result) bool {
		diag.ClusterStats[name.String()] = ClusterStat{
			Valid:   stat.Get("valid").Bool(),
			Reason:  stat.Get("reason").String(),
			Health:  stat.Get("health").String(),
			HColor:  stat.Get("hcolor").String(),
			Percent: stat.Get("healthy_percent").Float(),
		}
		return true
	})

	root.Get("source_map").ForEach(func(parent, children gjson.Result) bool {
		keys := make([]string, 0)
		children.ForEach(func(child, _ gjson.Result) bool {
			keys = append(keys, child.String())
			return true
		})
		sort.Strings(keys)
		diag.SourceMap[parent.String()] = keys
		return true
	})

	diag.Errors = parseErrors(root.Get("errors"))
	return diag, nil
}

func parseSystem(system gjson.Result) SystemInfo {
	info := SystemInfo{
		Version:         system.Get("version").String(),
		Hostname:        system.Get("hostname").String(),
		ClusterID:       system.Get("cluster_id").String(),
		AmbassadorID:    system.Get("ambassador_id").String(),
		AmbassadorNS:    system.Get("ambassador_namespace").String(),
		SingleNamespace: system.Get("single_namespace").Bool(),
		KnativeEnabled:  system.Get("knative_enabled").Bool(),
		StatsdEnabled:   system.Get("statsd_enabled").Bool(),
		EnvGood:         system.Get("env_good").Bool(),
		BootTime:        system.Get("boot_time").String(),
		Uptime:          system.Get("hr_uptime").String(),
	}
	system.Get("env_status").ForEach(func(name, status gjson.Result) bool {
		check := EnvCheck{
			Name: name.String(),
			OK:   status.Get("status").Bool(),
		}
		status.Get("specifics").ForEach(func(_, specific gjson.Result) bool {
			pair := specific.Array()
			if len(pair) < 2 {
				return true
			}
			check.Specifics = append(check.Specifics, EnvSpecific{OK: pair[0].Bool(), Text: pair[1].String()})
			return true
		})
		info.EnvStatus = append(info.EnvStatus, check)
		return true
	})
	sort.Slice(info.EnvStatus, func(i, j int) bool { return info.EnvStatus[i].Name < info.EnvStatus[j].Name })
	return info
}

// parseErrors accepts both shapes diagd emits: a list of [target, message]
// pairs, and an object of target -> [{"error": message}].
func parseErrors(errs gjson.Result) []DiagError {
	var out []DiagError
	switch {
	case errs.IsArray():
		errs.ForEach(func(_, pair gjson.Result) bool {
			items := pair.Array()
			if len(items) < 2 {
				return true
			}
			out = append(out, DiagError{Target: items[0].String(), Message: items[1].String()})
			return true
		})
	case errs.IsObject():
		errs.ForEach(func(target, list gjson.Result) bool {
			list.ForEach(func(_, entry gjson.Result) bool {
				message := entry.Get("error").String()
				if message == "" {
					message = entry.String()
				}
				out = append(out, DiagError{Target: target.String(), Message: message})
				return true
			})
			return true
		})
		sort.SliceStable(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	}
	return out
}

// Parents inverts the source map: for each produced key, the source keys
// that claim it. Lists are sorted.
func (d *Diagnostics) Parents() map[string][]string {
	parents := map[string][]string{}
	if d == nil {
		return parents
	}
	for parent, children := range d.SourceMap {
		for _, child := range children {
			if child == parent {
				continue
			}
			parents[child] = append(parents[child], parent)
		}
	}
	for child := range parents {
		sort.Strings(parents[child])
	}
	return parents
}
