package airflow

import (
	"encoding/json"
	"strings"
)

const (
	// DomainUntagged is the bucket for workflows with no domain tag.
	DomainUntagged = "untagged"

	domainTagPrefix = "domain:"
)

// tag tolerates the shapes the Airflow API returns for DAG tags: a plain
// string in older payloads, a {"name": "..."} record in newer ones.
type tag struct {
	Name string
}

func (t *tag) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.Name = s
		return nil
	}
	var rec struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	t.Name = rec.Name
	return nil
}

func tagNames(tags []tag) []string {
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	return names
}

// DomainOf derives the domain key for a workflow: the suffix of the first
// tag carrying the "domain:" prefix, trimmed. A workflow with no such tag
// belongs to DomainUntagged regardless of any other tags it carries.
func DomainOf(tags []string) string {
	for _, t := range tags {
		if strings.HasPrefix(t, domainTagPrefix) {
			return strings.TrimSpace(strings.TrimPrefix(t, domainTagPrefix))
		}
	}
	return DomainUntagged
}
