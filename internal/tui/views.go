package tui

import "github.com/dwizi/edge-console/internal/snapshot"

type viewID string

const (
	viewHosts      viewID = "hosts"
	viewMappings   viewID = "mappings"
	viewRateLimits viewID = "ratelimits"
	viewFilters    viewID = "filters"
	viewPolicies   viewID = "filterpolicies"
	viewResolvers  viewID = "resolvers"
	viewServices   viewID = "services"
	viewRoutes     viewID = "routes"
	viewDebugging  viewID = "debugging"
	viewAPIDocs    viewID = "apidocs"
	viewActivity   viewID = "activity"
	viewHelp       viewID = "help"
)

func allViews() []viewID {
	return []viewID{
		viewHosts,
		viewMappings,
		viewRateLimits,
		viewFilters,
		viewPolicies,
		viewResolvers,
		viewServices,
		viewRoutes,
		viewDebugging,
		viewAPIDocs,
		viewActivity,
		viewHelp,
	}
}

func viewLabel(view viewID) string {
	switch view {
	case viewHosts:
		return "Hosts"
	case viewMappings:
		return "Mappings"
	case viewRateLimits:
		return "Rate Limits"
	case viewFilters:
		return "Filters"
	case viewPolicies:
		return "Filter Policies"
	case viewResolvers:
		return "Resolvers"
	case viewServices:
		return "Services"
	case viewRoutes:
		return "Route Table"
	case viewDebugging:
		return "Debugging"
	case viewAPIDocs:
		return "API Docs"
	case viewActivity:
		return "Activity"
	default:
		return "Help"
	}
}

func viewSubtitle(view viewID) string {
	switch view {
	case viewHosts:
		return "hostnames and TLS"
	case viewMappings:
		return "prefix routing"
	case viewRateLimits:
		return "request limits"
	case viewFilters:
		return "auth and request filters"
	case viewPolicies:
		return "filters per host and path"
	case viewResolvers:
		return "service discovery"
	case viewServices:
		return "upstream health"
	case viewRoutes:
		return "gateway routes"
	case viewDebugging:
		return "gateway diagnostics"
	case viewAPIDocs:
		return "openapi services"
	case viewActivity:
		return "console audit trail"
	default:
		return "keys and support"
	}
}

// viewKind is the resource kind an editable view manages.
func viewKind(view viewID) (snapshot.Kind, bool) {
	switch view {
	case viewHosts:
		return snapshot.KindHost, true
	case viewMappings:
		return snapshot.KindMapping, true
	case viewRateLimits:
		return snapshot.KindRateLimit, true
	case viewFilters:
		return snapshot.KindFilter, true
	case viewPolicies:
		return snapshot.KindFilterPolicy, true
	default:
		return "", false
	}
}

func (v viewID) editable() bool {
	_, ok := viewKind(v)
	return ok
}

// protected views need an authorized session.
func (v viewID) protected() bool {
	return v != viewHelp
}

func (v viewID) tabular() bool {
	return v != viewDebugging && v != viewHelp
}

func viewIndex(view viewID) int {
	for i, candidate := range allViews() {
		if candidate == view {
			return i
		}
	}
	return 0
}

func viewAt(index int) viewID {
	views := allViews()
	index %= len(views)
	if index < 0 {
		index += len(views)
	}
	return views[index]
}
