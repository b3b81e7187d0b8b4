package panels

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dwizi/edge-console/internal/snapshot"
)

// Joiner assembles the read-only panels that combine the configuration
// snapshot with the diagnostics feed. Either input may be nil while its
// poller has not delivered yet.
type Joiner struct {
	Logger *slog.Logger
}

func NewJoiner(logger *slog.Logger) *Joiner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Joiner{Logger: logger}
}

// Resolve walks from a diagnostic source key up the inverted source map,
// one generation at a time, and stops at the nearest generation holding a
// declared resource. A branch ends at its first declared key. When several
// declared keys share that generation the smallest wins and the ambiguity
// is logged.
func (j *Joiner) Resolve(source string, parents map[string][]string, declared func(string) bool) (string, bool) {
	if source == "" {
		return "", false
	}
	visited := map[string]struct{}{source: {}}
	generation := []string{source}
	for len(generation) > 0 {
		var candidates, next []string
		for _, key := range generation {
			if declared(key) {
				candidates = append(candidates, key)
				continue
			}
			for _, parent := range parents[key] {
				if _, seen := visited[parent]; seen {
					continue
				}
				visited[parent] = struct{}{}
				next = append(next, parent)
			}
		}
		switch len(candidates) {
		case 0:
			generation = next
			continue
		case 1:
			return candidates[0], true
		}
		sort.Strings(candidates)
		j.Logger.Warn("diagnostic source resolves to several resources",
			"source", source,
			"candidates", strings.Join(candidates, ","),
			"chosen", candidates[0],
		)
		return candidates[0], true
	}
	return "", false
}

type ResolverRow struct {
	Kind      snapshot.Kind
	Name      string
	Namespace string
	// Declared is false for resolvers only the diagnostics feed knows of.
	Declared  bool
	Active    bool
	SourceURI string
	// RuntimeNames are the names diagnostics reports for this resolver.
	RuntimeNames []string
}

func (r ResolverRow) Key() string {
	return snapshot.Key(r.Kind, r.Namespace, r.Name)
}

// Resolvers lists every declared resolver, marking those the gateway
// reports as active, plus runtime resolvers with no declaration.
func (j *Joiner) Resolvers(snap *snapshot.Snapshot, diag *snapshot.Diagnostics) []ResolverRow {
	rows := map[string]*ResolverRow{}
	bySource := map[string]string{}
	for _, kind := range snapshot.ResolverKinds() {
		for _, res := range snap.Resources(kind) {
			row := &ResolverRow{
				Kind:      kind,
				Name:      res.Name(),
				Namespace: res.Namespace(),
				Declared:  true,
				SourceURI: res.SourceURI(),
			}
			rows[row.Key()] = row
			bySource[res.SourceKey()] = row.Key()
		}
	}

	if diag != nil {
		parents := diag.Parents()
		declared := func(key string) bool { _, ok := bySource[key]; return ok }
		for _, entry := range diag.Resolvers {
			if match, ok := j.Resolve(entry.Source, parents, declared); ok {
				row := rows[bySource[match]]
				row.Active = true
				row.RuntimeNames = appendUnique(row.RuntimeNames, entry.Name)
				continue
			}
			row := &ResolverRow{Kind: entry.Kind, Name: entry.Name, Active: true, RuntimeNames: []string{entry.Name}}
			if existing, ok := rows["runtime:"+row.Key()]; ok {
				existing.RuntimeNames = appendUnique(existing.RuntimeNames, entry.Name)
				continue
			}
			rows["runtime:"+row.Key()] = row
		}
	}

	out := make([]ResolverRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].Declared != out[k].Declared {
			return out[i].Declared
		}
		return out[i].Key() < out[k].Key()
	})
	return out
}

type ServiceRow struct {
	Name    string
	Cluster string
	Type    string
	Weight  float64
	Health  string
	Healthy float64
	// Mapping is the key of the Mapping that routes to the service, when the
	// source map leads back to one.
	Mapping string
	Prefix  string
}

var mappingKinds = []snapshot.Kind{snapshot.KindMapping, snapshot.KindTCPMapping}

// Services lists the upstream services the gateway reports, joined to the
// Mapping that declares each.
func (j *Joiner) Services(snap *snapshot.Snapshot, diag *snapshot.Diagnostics) []ServiceRow {
	if diag == nil {
		return nil
	}
	mappings := map[string]snapshot.Resource{}
	for _, kind := range mappingKinds {
		for _, res := range snap.Resources(kind) {
			mappings[res.SourceKey()] = res
		}
	}
	declared := func(key string) bool { _, ok := mappings[key]; return ok }
	parents := diag.Parents()

	out := make([]ServiceRow, 0, len(diag.Services))
	for _, service := range diag.Services {
		row := ServiceRow{
			Name:    service.Name,
			Cluster: service.Cluster,
			Type:    service.Type,
			Weight:  service.Weight,
			Health:  "unknown",
		}
		if stat, ok := diag.ClusterStats[service.Cluster]; ok {
			row.Health = stat.Health
			row.Healthy = stat.Percent
			if !stat.Valid && stat.Reason != "" {
				row.Health = stat.Reason
			}
		}
		if match, ok := j.Resolve(service.Source, parents, declared); ok {
			res := mappings[match]
			row.Mapping = res.Key()
			if obj, err := snapshot.Decode[snapshot.MappingSpec](res); err == nil {
				row.Prefix = obj.Spec.Prefix
			}
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

type RouteRow struct {
	URL      string
	Internal bool
	Headers  []string
	// Precedence is shown only when it is non-zero.
	Precedence int
	Targets    []RouteTarget
}

type RouteTarget struct {
	Service string
	Weight  string
	Color   string
}

// Routes renders the gateway's route table in the order diagnostics
// reports it.
func Routes(diag *snapshot.Diagnostics) []RouteRow {
	if diag == nil {
		return nil
	}
	out := make([]RouteRow, 0, len(diag.Routes))
	for _, route := range diag.Routes {
		row := RouteRow{URL: route.Key, Internal: route.Private, Precedence: route.Precedence}
		for _, header := range route.Headers {
			row.Headers = append(row.Headers, header.Name+": "+header.Value)
		}
		for _, cluster := range route.Clusters {
			service := cluster.Service
			if cluster.TypeLabel != "" {
				service = cluster.TypeLabel + ":" + service
			}
			row.Targets = append(row.Targets, RouteTarget{
				Service: service,
				Weight:  fmt.Sprintf("%.2f%%", cluster.Weight),
				Color:   cluster.HColor,
			})
		}
		out = append(out, row)
	}
	return out
}

func appendUnique(list []string, value string) []string {
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	return append(list, value)
}
