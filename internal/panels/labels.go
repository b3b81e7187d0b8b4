package panels

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// RequestLabelDomain is the only rate limit domain mappings label requests
// under.
const RequestLabelDomain = "ambassador"

// FormatRequestLabels renders a mapping's request labels one per line as
// "name: element, element". An element is a literal string such as
// "remote_address", or "key=header" to take the value of a request header.
// Elements of any other shape are kept as JSON.
func FormatRequestLabels(labels map[string]any) string {
	list, _ := labels[RequestLabelDomain].([]any)
	lines := make([]string, 0, len(list))
	for _, item := range list {
		label, ok := item.(map[string]any)
		if !ok {
			continue
		}
		names := make([]string, 0, len(label))
		for name := range label {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			elements, _ := label[name].([]any)
			parts := make([]string, 0, len(elements))
			for _, element := range elements {
				parts = append(parts, formatLabelElement(element))
			}
			lines = append(lines, quoteToken(name)+": "+strings.Join(parts, ", "))
		}
	}
	return strings.Join(lines, "\n")
}

func formatLabelElement(element any) string {
	switch typed := element.(type) {
	case string:
		return quoteToken(typed)
	case map[string]any:
		if len(typed) == 1 {
			for key, value := range typed {
				if source, ok := value.(map[string]any); ok && len(source) == 1 {
					if header, ok := source["header"].(string); ok {
						return quoteToken(key) + "=" + quoteToken(header)
					}
				}
			}
		}
	}
	raw, err := json.Marshal(element)
	if err != nil {
		return quoteToken(fmt.Sprint(element))
	}
	return quoteToken(string(raw))
}

// ParseRequestLabels reads FormatRequestLabels text back into the list kept
// under the ambassador domain. Blank lines are skipped.
func ParseRequestLabels(text string) ([]any, error) {
	lines, numbers := nonEmptyLines(text)
	labels := []any{}
	for i, line := range lines {
		name, elements, err := parseRequestLabel(line)
		if err != nil {
			return nil, fmt.Errorf("Label %d %w", numbers[i], err)
		}
		labels = append(labels, map[string]any{name: elements})
	}
	return labels, nil
}

func parseRequestLabel(line string) (string, []any, error) {
	name, rest, err := readToken(line, ":")
	if err != nil {
		return "", nil, err
	}
	rest = strings.TrimLeft(rest, " \t")
	if name == "" || !strings.HasPrefix(rest, ":") {
		return "", nil, errors.New("labels must be name: elements")
	}
	rest = strings.TrimLeft(rest[1:], " \t")
	elements := []any{}
	for rest != "" {
		first, after, err := readToken(rest, ",=")
		if err != nil {
			return "", nil, err
		}
		after = strings.TrimLeft(after, " \t")
		var element any = first
		if strings.HasPrefix(after, "=") {
			var header string
			if header, after, err = readToken(strings.TrimLeft(after[1:], " \t"), ","); err != nil {
				return "", nil, err
			}
			if first == "" || header == "" {
				return "", nil, errors.New("header elements must be key=header")
			}
			element = map[string]any{first: map[string]any{"header": header}}
			after = strings.TrimLeft(after, " \t")
		} else if strings.HasPrefix(first, "{") {
			var object map[string]any
			if err := json.Unmarshal([]byte(first), &object); err == nil {
				element = object
			}
		}
		if element == "" {
			return "", nil, errors.New("label elements must not be empty")
		}
		elements = append(elements, element)
		switch {
		case after == "":
			rest = ""
		case after[0] == ',':
			rest = strings.TrimLeft(after[1:], " \t")
		default:
			return "", nil, errors.New("label elements must be separated by commas")
		}
	}
	if len(elements) == 0 {
		return "", nil, errors.New("labels need at least one element")
	}
	return name, elements, nil
}
