package panels

import (
	"strconv"
	"strings"

	"github.com/dwizi/edge-console/internal/resource"
	"github.com/dwizi/edge-console/internal/snapshot"
)

const (
	MappingFieldPrefix  = "prefix"
	MappingFieldService = "service"
	MappingFieldHost    = "host"
	MappingFieldRewrite = "rewrite"
	MappingFieldWeight  = "weight"
	// MappingFieldLabels holds one request label per line in
	// FormatRequestLabels form.
	MappingFieldLabels = "labels"
	// MappingFieldHasLabels records that the confirmed mapping carries
	// request labels, so clearing every line still writes an empty list.
	MappingFieldHasLabels = "has_labels"
)

type MappingCapability struct{}

func NewMappings() *resource.Set[snapshot.MappingSpec] {
	return resource.NewSet[snapshot.MappingSpec](MappingCapability{})
}

func (MappingCapability) Kind() snapshot.Kind { return snapshot.KindMapping }

func (MappingCapability) Fields(spec snapshot.MappingSpec) []resource.Field {
	rewrite := ""
	if spec.Rewrite != nil {
		rewrite = *spec.Rewrite
	}
	weight := ""
	if spec.Weight != 0 {
		weight = strconv.Itoa(spec.Weight)
	}
	return []resource.Field{
		{Name: MappingFieldPrefix, Label: "prefix", Value: spec.Prefix},
		{Name: MappingFieldService, Label: "target", Value: spec.Service},
		{Name: MappingFieldHost, Label: "host", Value: spec.Host},
		{Name: MappingFieldRewrite, Label: "rewrite", Value: rewrite},
		{Name: MappingFieldWeight, Label: "weight", Value: weight},
		{Name: MappingFieldLabels, Label: "request labels", Value: FormatRequestLabels(spec.Labels), Multiline: true},
		{Name: MappingFieldHasLabels, Value: strconv.FormatBool(spec.Labels[RequestLabelDomain] != nil), Kind: resource.FieldBool, Hidden: true},
	}
}

func (MappingCapability) Extract(in resource.Values) (snapshot.MappingSpec, error) {
	spec := snapshot.MappingSpec{
		Prefix:  strings.TrimSpace(in.Get(MappingFieldPrefix)),
		Service: strings.TrimSpace(in.Get(MappingFieldService)),
		Host:    strings.TrimSpace(in.Get(MappingFieldHost)),
	}
	if rewrite := in.Get(MappingFieldRewrite); rewrite != "" {
		spec.Rewrite = &rewrite
	}
	if weight, ok := in.Int(MappingFieldWeight); ok {
		spec.Weight = weight
	}
	labels, err := ParseRequestLabels(in.Get(MappingFieldLabels))
	if err != nil {
		return snapshot.MappingSpec{}, err
	}
	if len(labels) > 0 || in.Bool(MappingFieldHasLabels) {
		spec.Labels = map[string]any{RequestLabelDomain: labels}
	}
	return spec, nil
}

func (MappingCapability) Validate(draft resource.Draft[snapshot.MappingSpec]) []string {
	var messages []string
	if !strings.HasPrefix(strings.TrimSpace(draft.Inputs.Get(MappingFieldPrefix)), "/") {
		messages = append(messages, "Prefix must start with /")
	}
	if strings.TrimSpace(draft.Inputs.Get(MappingFieldService)) == "" {
		messages = append(messages, "Target service must not be empty")
	}
	if raw := strings.TrimSpace(draft.Inputs.Get(MappingFieldWeight)); raw != "" {
		if weight, ok := draft.Inputs.Int(MappingFieldWeight); !ok || weight < 0 || weight > 100 {
			messages = append(messages, "Weight must be a number between 0 and 100")
		}
	}
	if _, err := ParseRequestLabels(draft.Inputs.Get(MappingFieldLabels)); err != nil {
		messages = append(messages, err.Error())
	}
	return messages
}

func (MappingCapability) Summary(obj snapshot.Object[snapshot.MappingSpec]) []string {
	lines := []string{obj.Spec.Prefix + " -> " + obj.Spec.Service}
	if obj.Spec.Host != "" {
		lines = append(lines, "host: "+obj.Spec.Host)
	}
	if obj.Spec.Weight != 0 {
		lines = append(lines, "weight: "+strconv.Itoa(obj.Spec.Weight))
	}
	if labels := FormatRequestLabels(obj.Spec.Labels); labels != "" {
		for _, label := range strings.Split(labels, "\n") {
			lines = append(lines, "label: "+label)
		}
	}
	return lines
}

func (MappingCapability) Seed() (string, snapshot.MappingSpec) {
	return "", snapshot.MappingSpec{}
}

func (MappingCapability) SortFields() []resource.SortField {
	return []resource.SortField{
		{Value: "name", Label: "Name"},
		{Value: "namespace", Label: "Namespace"},
		{Value: "prefix", Label: "Prefix"},
	}
}

func (MappingCapability) SortKey(field string, obj snapshot.Object[snapshot.MappingSpec]) string {
	switch field {
	case "namespace":
		return obj.Resource.Namespace()
	case "prefix":
		return obj.Spec.Prefix
	default:
		return obj.Resource.Name()
	}
}
