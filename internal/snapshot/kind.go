package snapshot

import "sort"

// Kind tags a configuration resource. The set is closed: kinds the backend
// reports that are not listed here are still decoded and kept, but no panel
// binds to them.
type Kind string

const (
	KindHost                       Kind = "Host"
	KindMapping                    Kind = "Mapping"
	KindTCPMapping                 Kind = "TCPMapping"
	KindRateLimit                  Kind = "RateLimit"
	KindRateLimitService           Kind = "RateLimitService"
	KindKubernetesServiceResolver  Kind = "KubernetesServiceResolver"
	KindKubernetesEndpointResolver Kind = "KubernetesEndpointResolver"
	KindConsulResolver             Kind = "ConsulResolver"
	KindFilter                     Kind = "Filter"
	KindFilterPolicy               Kind = "FilterPolicy"
	KindModule                     Kind = "Module"
	KindAuthService                Kind = "AuthService"
	KindTracingService             Kind = "TracingService"
	KindLogService                 Kind = "LogService"
	KindDevPortal                  Kind = "DevPortal"
	KindService                    Kind = "service"
)

var knownKinds = map[Kind]struct{}{
	KindHost:                       {},
	KindMapping:                    {},
	KindTCPMapping:                 {},
	KindRateLimit:                  {},
	KindRateLimitService:           {},
	KindKubernetesServiceResolver:  {},
	KindKubernetesEndpointResolver: {},
	KindConsulResolver:             {},
	KindFilter:                     {},
	KindFilterPolicy:               {},
	KindModule:                     {},
	KindAuthService:                {},
	KindTracingService:             {},
	KindLogService:                 {},
	KindDevPortal:                  {},
	KindService:                    {},
}

var resolverKinds = []Kind{
	KindKubernetesServiceResolver,
	KindKubernetesEndpointResolver,
	KindConsulResolver,
}

func (k Kind) Known() bool {
	_, ok := knownKinds[k]
	return ok
}

// Editable reports whether the console can create and update this kind.
func (k Kind) Editable() bool {
	switch k {
	case KindHost, KindMapping, KindRateLimit, KindFilter, KindFilterPolicy:
		return true
	default:
		return false
	}
}

func (k Kind) IsResolver() bool {
	for _, kind := range resolverKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// APIVersion is the group/version the backend expects when the console
// applies a resource of this kind.
func (k Kind) APIVersion() string {
	if k == KindService {
		return "v1"
	}
	return "getambassador.io/v2"
}

// ResolverKinds returns the resolver kinds in a stable order.
func ResolverKinds() []Kind {
	out := append([]Kind(nil), resolverKinds...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
