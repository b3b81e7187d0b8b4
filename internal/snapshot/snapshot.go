package snapshot

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	// Bus keys the pollers publish under.
	BusKey            = "snapshot"
	DiagnosticsBusKey = "diagnostics"

	AnnotationEditable       = "getambassador.io/editable"
	AnnotationResourceSource = "getambassador.io/resource-source"
	AnnotationChanged        = "getambassador.io/resource-changed"

	DefaultNamespace = "default"
)

// Snapshot is one decoded poll of the backend configuration snapshot. A
// snapshot is immutable once published; every poll produces a new value.
type Snapshot struct {
	Kubernetes map[Kind][]Resource
	Diag       *Diagnostics
	License    License
	RedisInUse bool
	FetchedAt  time.Time
}

type License struct {
	Claims            json.RawMessage `json:"Claims,omitempty"`
	HardLimit         bool            `json:"HardLimit"`
	FeaturesOverLimit []string        `json:"FeaturesOverLimit"`
}

// Resource is one configuration object as the backend reports it. Spec and
// Status stay raw until a panel decodes them with Decode.
type Resource struct {
	APIVersion string            `json:"apiVersion,omitempty"`
	Kind       Kind              `json:"kind,omitempty"`
	Metadata   metav1.ObjectMeta `json:"metadata"`
	Spec       json.RawMessage   `json:"spec,omitempty"`
	Status     json.RawMessage   `json:"status,omitempty"`

	// Raw is the complete object as received, used as the merge base when
	// the console writes the resource back.
	Raw json.RawMessage `json:"-"`
}

// Object is a Resource with its spec decoded into the kind's typed form.
type Object[S any] struct {
	Resource Resource
	Spec     S
}

// Parse decodes a snapshot document. It accepts the backend's envelope
// ({"Watt": {"Kubernetes": {...}}, "Diag": ..., "License": ...}) and a bare
// kind map ({"Mapping": [...]}).
func Parse(data []byte) (*Snapshot, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("parse snapshot: invalid json")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("parse snapshot: expected object, got %s", root.Type)
	}

	snap := &Snapshot{
		Kubernetes: map[Kind][]Resource{},
		FetchedAt:  time.Now().UTC(),
	}
	kinds := root
	if watt := root.Get("Watt"); watt.Exists() {
		kinds = watt.Get("Kubernetes")
		if diag := root.Get("Diag"); diag.IsObject() {
			parsed, err := ParseDiagnostics([]byte(diag.Raw))
			if err != nil {
				return nil, fmt.Errorf("parse snapshot diag: %w", err)
			}
			snap.Diag = parsed
		}
		if license := root.Get("License"); license.IsObject() {
			if err := json.Unmarshal([]byte(license.Raw), &snap.License); err != nil {
				return nil, fmt.Errorf("parse snapshot license: %w", err)
			}
		}
		snap.RedisInUse = root.Get("RedisInUse").Bool()
	}

	var decodeErr error
	kinds.ForEach(func(key, value gjson.Result) bool {
		if !value.IsArray() {
			return true
		}
		kind := Kind(key.String())
		items := value.Array()
		resources := make([]Resource, 0, len(items))
		for _, item := range items {
			if !item.IsObject() {
				continue
			}
			resource, err := decodeResource(kind, []byte(item.Raw))
			if err != nil {
				decodeErr = fmt.Errorf("parse snapshot %s: %w", kind, err)
				return false
			}
			resources = append(resources, resource)
		}
		snap.Kubernetes[kind] = resources
		return true
	})
	if decodeErr != nil {
		return nil, decodeErr
	}
	return snap, nil
}

func decodeResource(kind Kind, raw []byte) (Resource, error) {
	var resource Resource
	if err := json.Unmarshal(raw, &resource); err != nil {
		return Resource{}, err
	}
	if resource.Kind == "" {
		resource.Kind = kind
	}
	resource.Raw = append(json.RawMessage(nil), raw...)
	return resource, nil
}

// Resources returns the resources of a kind sorted by Key.
func (s *Snapshot) Resources(kind Kind) []Resource {
	if s == nil {
		return nil
	}
	items := append([]Resource(nil), s.Kubernetes[kind]...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Key() < items[j].Key() })
	return items
}

// Kinds returns every kind present in the snapshot, sorted.
func (s *Snapshot) Kinds() []Kind {
	if s == nil {
		return nil
	}
	out := make([]Kind, 0, len(s.Kubernetes))
	for kind := range s.Kubernetes {
		out = append(out, kind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Lookup finds a resource by its declared source key ("name.namespace").
func (s *Snapshot) Lookup(kind Kind, sourceKey string) (Resource, bool) {
	if s == nil {
		return Resource{}, false
	}
	for _, resource := range s.Kubernetes[kind] {
		if resource.SourceKey() == sourceKey {
			return resource, true
		}
	}
	return Resource{}, false
}

func (s *Snapshot) Count() int {
	if s == nil {
		return 0
	}
	total := 0
	for _, items := range s.Kubernetes {
		total += len(items)
	}
	return total
}

func (r Resource) Name() string {
	return r.Metadata.Name
}

func (r Resource) Namespace() string {
	if strings.TrimSpace(r.Metadata.Namespace) == "" {
		return DefaultNamespace
	}
	return r.Metadata.Namespace
}

// Key is the identity of the resource and its sort key.
func (r Resource) Key() string {
	return Key(r.Kind, r.Namespace(), r.Name())
}

// SourceKey is the name the diagnostics feed uses for the resource.
func (r Resource) SourceKey() string {
	return r.Name() + "." + r.Namespace()
}

// Ref is the Kind/name form the delete endpoint expects.
func (r Resource) Ref() string {
	return string(r.Kind) + "/" + r.Name()
}

// ReadOnly reports whether the resource opted out of console edits.
func (r Resource) ReadOnly() bool {
	return strings.EqualFold(strings.TrimSpace(r.Metadata.Annotations[AnnotationEditable]), "false")
}

// SourceURI is where a read-only resource is managed, when the backend says.
func (r Resource) SourceURI() string {
	return strings.TrimSpace(r.Metadata.Annotations[AnnotationResourceSource])
}

// StatusField reads one top level status member, or "" when absent.
func (r Resource) StatusField(path string) string {
	if len(r.Status) == 0 {
		return ""
	}
	return gjson.GetBytes(r.Status, path).String()
}

func Key(kind Kind, namespace, name string) string {
	if strings.TrimSpace(namespace) == "" {
		namespace = DefaultNamespace
	}
	return string(kind) + ":" + namespace + ":" + name
}

// Decode converts a Resource into its typed form.
func Decode[S any](r Resource) (Object[S], error) {
	var spec S
	if len(r.Spec) > 0 && string(r.Spec) != "null" {
		if err := json.Unmarshal(r.Spec, &spec); err != nil {
			return Object[S]{}, fmt.Errorf("decode %s %s spec: %w", r.Kind, r.SourceKey(), err)
		}
	}
	return Object[S]{Resource: r, Spec: spec}, nil
}
