package graph

import (
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// needsList accepts both `needs: build` and `needs: [build, test]`
type needsList []string

func (n *needsList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Value != "" {
			*n = []string{value.Value}
		}
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return nil
		}
		*n = items
	}
	return nil
}

// jobSpec is the part of a workflow job definition the graph needs
type jobSpec struct {
	Name  string    `yaml:"name"`
	Needs needsList `yaml:"needs"`
}

type workflowDefinition struct {
	Jobs map[string]jobSpec `yaml:"jobs"`
}

// definition indexes the job specs of a workflow file
type definition struct {
	specs map[string]jobSpec
	keys  []string
}

// parseDefinition reads job specs from workflow YAML.
// Unparseable input yields an empty definition.
func parseDefinition(data []byte) definition {
	var wf workflowDefinition
	if len(data) == 0 || yaml.Unmarshal(data, &wf) != nil || wf.Jobs == nil {
		return definition{specs: map[string]jobSpec{}}
	}

	keys := make([]string, 0, len(wf.Jobs))
	for k := range wf.Jobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return definition{specs: wf.Jobs, keys: keys}
}

// keyFor finds the job key an executed job was created from.
// Matrix and reusable-workflow jobs run as "<name> (<params>)" and "<name> / <inner>".
func (d definition) keyFor(jobName string) (string, bool) {
	if _, ok := d.specs[jobName]; ok {
		return jobName, true
	}
	for _, k := range d.keys {
		if d.specs[k].Name == jobName {
			return k, true
		}
	}
	for _, k := range d.keys {
		for _, label := range d.labels(k) {
			if strings.HasPrefix(jobName, label+" (") || strings.HasPrefix(jobName, label+" / ") {
				return k, true
			}
		}
	}
	for _, k := range d.keys {
		name := d.specs[k].Name
		if i := strings.Index(name, "${{"); i > 0 {
			if prefix := strings.TrimSpace(name[:i]); prefix != "" && strings.HasPrefix(jobName, prefix) {
				return k, true
			}
		}
	}
	return "", false
}

func (d definition) labels(key string) []string {
	labels := []string{key}
	if name := d.specs[key].Name; name != "" && name != key && !strings.Contains(name, "${{") {
		labels = append(labels, name)
	}
	return labels
}
