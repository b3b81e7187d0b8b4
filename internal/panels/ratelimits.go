package panels

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dwizi/edge-console/internal/resource"
	"github.com/dwizi/edge-console/internal/snapshot"
)

const (
	RateLimitFieldDomain = "domain"
	// RateLimitFieldLimits holds one limit per line in FormatLimit form.
	RateLimitFieldLimits = "limits"
)

var rateLimitUnits = map[string]struct{}{
	"second": {},
	"minute": {},
	"hour":   {},
	"day":    {},
}

type RateLimitCapability struct{}

func NewRateLimits() *resource.Set[snapshot.RateLimitSpec] {
	return resource.NewSet[snapshot.RateLimitSpec](RateLimitCapability{})
}

func (RateLimitCapability) Kind() snapshot.Kind { return snapshot.KindRateLimit }

func (RateLimitCapability) Fields(spec snapshot.RateLimitSpec) []resource.Field {
	lines := make([]string, 0, len(spec.Limits))
	for _, limit := range spec.Limits {
		lines = append(lines, FormatLimit(limit))
	}
	return []resource.Field{
		{Name: RateLimitFieldDomain, Label: "domain", Value: spec.Domain},
		{Name: RateLimitFieldLimits, Label: "limits", Value: strings.Join(lines, "\n"), Multiline: true},
	}
}

func (RateLimitCapability) Extract(in resource.Values) (snapshot.RateLimitSpec, error) {
	spec := snapshot.RateLimitSpec{Domain: strings.TrimSpace(in.Get(RateLimitFieldDomain))}
	limits, err := ParseLimits(in.Get(RateLimitFieldLimits))
	if err != nil {
		return snapshot.RateLimitSpec{}, err
	}
	spec.Limits = limits
	return spec, nil
}

func (RateLimitCapability) Validate(draft resource.Draft[snapshot.RateLimitSpec]) []string {
	var messages []string
	if strings.TrimSpace(draft.Inputs.Get(RateLimitFieldDomain)) == "" {
		messages = append(messages, "Domain must not be empty")
	}
	if _, err := ParseLimits(draft.Inputs.Get(RateLimitFieldLimits)); err != nil {
		messages = append(messages, err.Error())
	}
	return messages
}

func (RateLimitCapability) Summary(obj snapshot.Object[snapshot.RateLimitSpec]) []string {
	lines := []string{"domain: " + obj.Spec.Domain}
	if len(obj.Spec.Limits) == 0 {
		return append(lines, "limits: (none)")
	}
	for _, limit := range obj.Spec.Limits {
		lines = append(lines, "limit: "+FormatLimit(limit))
	}
	return lines
}

func (RateLimitCapability) Seed() (string, snapshot.RateLimitSpec) {
	return "", snapshot.RateLimitSpec{}
}

func (RateLimitCapability) SortFields() []resource.SortField {
	return []resource.SortField{
		{Value: "name", Label: "Name"},
		{Value: "namespace", Label: "Namespace"},
		{Value: "domain", Label: "Domain"},
	}
}

func (RateLimitCapability) SortKey(field string, obj snapshot.Object[snapshot.RateLimitSpec]) string {
	switch field {
	case "namespace":
		return obj.Resource.Namespace()
	case "domain":
		return obj.Spec.Domain
	default:
		return obj.Resource.Name()
	}
}

// FormatLimit renders a limit as "key=value,key2=value2 rate/unit". Keys of
// one pattern entry are joined with "&"; a limit without a pattern renders
// as "-". Keys and values that would not read back bare are quoted.
func FormatLimit(limit snapshot.Limit) string {
	entries := make([]string, 0, len(limit.Pattern))
	for _, entry := range limit.Pattern {
		keys := make([]string, 0, len(entry))
		for key := range entry {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, key := range keys {
			pairs = append(pairs, quoteToken(key)+"="+quoteToken(entry[key]))
		}
		entries = append(entries, strings.Join(pairs, "&"))
	}
	pattern := strings.Join(entries, ",")
	if pattern == "" {
		pattern = emptyPattern
	}
	unit := limit.Unit
	if unit == "" {
		unit = "minute"
	}
	return fmt.Sprintf("%s %d/%s", pattern, limit.Rate, unit)
}

const emptyPattern = "-"

// ParseLimits reads the form's limits text, one limit per line. Blank lines
// are skipped.
func ParseLimits(text string) ([]snapshot.Limit, error) {
	var limits []snapshot.Limit
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		limit, err := parseLimit(line)
		if err != nil {
			return nil, fmt.Errorf("Limit %d %w", i+1, err)
		}
		limits = append(limits, limit)
	}
	return limits, nil
}

func parseLimit(line string) (snapshot.Limit, error) {
	patternText, rateText := "", line
	if cut := strings.LastIndexAny(line, " \t"); cut >= 0 {
		patternText, rateText = strings.TrimSpace(line[:cut]), line[cut+1:]
	}
	rateUnit := strings.SplitN(rateText, "/", 2)
	rate, err := strconv.Atoi(rateUnit[0])
	if err != nil || rate < 0 {
		return snapshot.Limit{}, errors.New("rate must be a non-negative number")
	}
	unit := "minute"
	if len(rateUnit) == 2 {
		unit = rateUnit[1]
	}
	if _, ok := rateLimitUnits[unit]; !ok {
		return snapshot.Limit{}, errors.New("unit must be one of second, minute, hour, day")
	}
	pattern, err := parsePattern(patternText)
	if err != nil {
		return snapshot.Limit{}, err
	}
	return snapshot.Limit{Pattern: pattern, Rate: rate, Unit: unit}, nil
}

func parsePattern(text string) ([]map[string]string, error) {
	pattern := []map[string]string{}
	if text == "" || text == emptyPattern {
		return pattern, nil
	}
	entry := map[string]string{}
	rest := text
	for {
		key, after, err := readToken(rest, "=")
		if err != nil {
			return nil, err
		}
		after = strings.TrimLeft(after, " \t")
		if key == "" || !strings.HasPrefix(after, "=") {
			return nil, errors.New("pattern entries must be key=value")
		}
		value, after, err := readToken(strings.TrimLeft(after[1:], " \t"), ",&")
		if err != nil {
			return nil, err
		}
		entry[key] = value
		rest = strings.TrimLeft(after, " \t")
		switch {
		case rest == "":
			return append(pattern, entry), nil
		case rest[0] == '&':
		case rest[0] == ',':
			pattern = append(pattern, entry)
			entry = map[string]string{}
		default:
			return nil, errors.New("pattern entries must be separated by commas")
		}
		rest = strings.TrimLeft(rest[1:], " \t")
	}
}
