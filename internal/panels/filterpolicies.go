package panels

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dwizi/edge-console/internal/resource"
	"github.com/dwizi/edge-console/internal/snapshot"
)

// FilterPolicyFieldRules holds one rule per line in FormatRule form.
const FilterPolicyFieldRules = "rules"

type FilterPolicyCapability struct{}

func NewFilterPolicies() *resource.Set[snapshot.FilterPolicySpec] {
	return resource.NewSet[snapshot.FilterPolicySpec](FilterPolicyCapability{})
}

func (FilterPolicyCapability) Kind() snapshot.Kind { return snapshot.KindFilterPolicy }

func (FilterPolicyCapability) Fields(spec snapshot.FilterPolicySpec) []resource.Field {
	lines := make([]string, 0, len(spec.Rules))
	for _, rule := range spec.Rules {
		lines = append(lines, FormatRule(rule))
	}
	return []resource.Field{
		{Name: FilterPolicyFieldRules, Label: "rules (host path filters)", Value: strings.Join(lines, "\n"), Multiline: true},
	}
}

func (FilterPolicyCapability) Extract(in resource.Values) (snapshot.FilterPolicySpec, error) {
	rules, err := ParseRules(in.Get(FilterPolicyFieldRules))
	if err != nil {
		return snapshot.FilterPolicySpec{}, err
	}
	return snapshot.FilterPolicySpec{Rules: rules}, nil
}

func (FilterPolicyCapability) Validate(draft resource.Draft[snapshot.FilterPolicySpec]) []string {
	if _, err := ParseRules(draft.Inputs.Get(FilterPolicyFieldRules)); err != nil {
		return []string{err.Error()}
	}
	return nil
}

func (FilterPolicyCapability) Summary(obj snapshot.Object[snapshot.FilterPolicySpec]) []string {
	if len(obj.Spec.Rules) == 0 {
		return []string{"rules: (none)"}
	}
	lines := make([]string, 0, len(obj.Spec.Rules))
	for _, rule := range obj.Spec.Rules {
		lines = append(lines, "rule: "+FormatRule(rule))
	}
	return lines
}

func (FilterPolicyCapability) Seed() (string, snapshot.FilterPolicySpec) {
	return "", snapshot.FilterPolicySpec{Rules: []snapshot.FilterRule{}}
}

func (FilterPolicyCapability) SortFields() []resource.SortField {
	return []resource.SortField{
		{Value: "name", Label: "Name"},
		{Value: "namespace", Label: "Namespace"},
	}
}

func (FilterPolicyCapability) SortKey(field string, obj snapshot.Object[snapshot.FilterPolicySpec]) string {
	if field == "namespace" {
		return obj.Resource.Namespace()
	}
	return obj.Resource.Name()
}

// FormatRule renders a rule as "host path filters". Filters are
// comma-separated "namespace/name" references, the namespace optional, each
// followed by "=arguments" as JSON when it has arguments. A rule without
// filters renders "-".
func FormatRule(rule snapshot.FilterRule) string {
	refs := make([]string, 0, len(rule.Filters))
	for _, ref := range rule.Filters {
		text := ref.Name
		if ref.Namespace != "" {
			text = ref.Namespace + "/" + ref.Name
		}
		if args := compactArguments(ref.Arguments); args != "" {
			text += "=" + quoteToken(args)
		}
		refs = append(refs, text)
	}
	filters := strings.Join(refs, ",")
	if filters == "" {
		filters = emptyPattern
	}
	return quoteToken(rule.Host) + " " + quoteToken(rule.Path) + " " + filters
}

func compactArguments(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var out bytes.Buffer
	if err := json.Compact(&out, raw); err != nil {
		return string(raw)
	}
	return out.String()
}

// ParseRules reads the form's rules text, one rule per line. Blank lines are
// skipped. The result is never nil so an empty policy still carries rules.
func ParseRules(text string) ([]snapshot.FilterRule, error) {
	lines, numbers := nonEmptyLines(text)
	rules := []snapshot.FilterRule{}
	for i, line := range lines {
		rule, err := parseRule(line)
		if err != nil {
			return nil, fmt.Errorf("Rule %d %w", numbers[i], err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func parseRule(line string) (snapshot.FilterRule, error) {
	host, rest, err := readToken(line, " \t")
	if err != nil {
		return snapshot.FilterRule{}, err
	}
	path, rest, err := readToken(strings.TrimLeft(rest, " \t"), " \t")
	if err != nil {
		return snapshot.FilterRule{}, err
	}
	if host == "" || path == "" {
		return snapshot.FilterRule{}, errors.New("needs a host and a path")
	}
	filters, err := parseFilterRefs(strings.TrimSpace(rest))
	if err != nil {
		return snapshot.FilterRule{}, err
	}
	return snapshot.FilterRule{Host: host, Path: path, Filters: filters}, nil
}

func parseFilterRefs(text string) ([]snapshot.FilterRef, error) {
	refs := []snapshot.FilterRef{}
	if text == "" || text == emptyPattern {
		return refs, nil
	}
	rest := text
	for {
		first, after, err := readToken(rest, "/,= \t")
		if err != nil {
			return nil, err
		}
		after = strings.TrimLeft(after, " \t")
		ref := snapshot.FilterRef{Name: first}
		if strings.HasPrefix(after, "/") {
			ref.Namespace = first
			if ref.Name, after, err = readToken(after[1:], ",= \t"); err != nil {
				return nil, err
			}
			after = strings.TrimLeft(after, " \t")
		}
		if ref.Name == "" {
			return nil, errors.New("filter references need a name")
		}
		if strings.HasPrefix(after, "=") {
			var args string
			if args, after, err = readToken(strings.TrimLeft(after[1:], " \t"), ","); err != nil {
				return nil, err
			}
			if !json.Valid([]byte(args)) {
				return nil, fmt.Errorf("arguments of %s are not JSON: %s", ref.Name, strconv.Quote(args))
			}
			ref.Arguments = json.RawMessage(args)
		}
		refs = append(refs, ref)
		rest = strings.TrimLeft(after, " \t")
		switch {
		case rest == "":
			return refs, nil
		case rest[0] == ',':
			rest = strings.TrimLeft(rest[1:], " \t")
		default:
			return nil, errors.New("filter references must be separated by commas")
		}
	}
}
