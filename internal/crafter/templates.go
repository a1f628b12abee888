package crafter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// templateFile is the on-disk shape of a template definition.
type templateFile struct {
	Templates []Template `yaml:"templates"`
}

// LoadDir registers every template found in dir (*.yaml and *.yml files).
// Each file holds a "templates" list so related strategy variants can live
// together. Returns the number of templates registered. A missing dir is
// not an error; operators often run with the built-in set only.
func (c *Crafter) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading template dir: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return loaded, fmt.Errorf("reading template file %s: %w", entry.Name(), err)
		}
		var tf templateFile
		if err := yaml.Unmarshal(data, &tf); err != nil {
			return loaded, fmt.Errorf("parsing template file %s: %w", entry.Name(), err)
		}
		for _, t := range tf.Templates {
			if t.Name == "" {
				return loaded, fmt.Errorf("template file %s: template missing name", entry.Name())
			}
			c.Register(t)
			loaded++
		}
	}
	return loaded, nil
}

// RegisterDefaults installs one built-in template per strategy arm so the
// pipeline can run before any operator-authored templates exist. The
// footer carries the sender's physical address and unsubscribe link and is
// appended verbatim to every body.
func (c *Crafter) RegisterDefaults(footer string) {
	defaults := []Template{
		{
			Name:     "direct_ask",
			Strategy: "direct_ask",
			Subject:  "Quick question about {{ company }}",
			Body: "Hi {{ first_name | default: \"there\" }},\n\n" +
				"I work with sales teams like {{ company | possessive }} and had a specific idea " +
				"for your outbound motion. Worth a 15-minute call this week?\n",
		},
		{
			Name:     "value_first",
			Strategy: "value_first",
			Subject:  "An idea for {{ company }}",
			Body: "Hi {{ first_name | default: \"there\" }},\n\n" +
				"Teams in {{ industry | default: \"your space\" }} usually lose pipeline to slow " +
				"follow-up. We put together a short playbook on fixing that; happy to send it " +
				"over, no strings attached.\n",
		},
		{
			Name:     "social_proof",
			Strategy: "social_proof",
			Subject:  "How teams like {{ company }} book more meetings",
			Body: "Hi {{ first_name | default: \"there\" }},\n\n" +
				"We recently helped a {{ industry | default: \"B2B\" }} company at a similar size " +
				"lift reply rates by a third. If useful, I can share exactly what they changed.\n",
		},
		{
			Name:     "nurture_drip",
			Strategy: "nurture_drip",
			Subject:  "Resource for {{ company }}",
			Body: "Hi {{ first_name | default: \"there\" }},\n\n" +
				"No ask here. We publish a short monthly note on outbound benchmarks for " +
				"{{ industry | default: \"B2B\" }} teams and I thought {{ company }} might find " +
				"it useful.\n",
		},
		{
			Name:     "case_study",
			Strategy: "case_study",
			Subject:  "{{ company }} + a case study worth 2 minutes",
			Body: "Hi {{ first_name | default: \"there\" }},\n\n" +
				"A company in {{ industry | default: \"your industry\" }} used our pipeline " +
				"automation to cut manual prospecting to near zero. The two-page writeup is a " +
				"quick read; want me to send it?\n",
		},
	}
	for _, t := range defaults {
		if footer != "" {
			t.Body += "\n" + footer
		}
		c.Register(t)
	}
}

// Footer builds the compliance footer appended to built-in templates.
func Footer(physicalAddress, unsubscribeURL string) string {
	var b strings.Builder
	if physicalAddress != "" {
		b.WriteString(physicalAddress)
		b.WriteString("\n")
	}
	if unsubscribeURL != "" {
		b.WriteString("Unsubscribe: ")
		b.WriteString(unsubscribeURL)
		b.WriteString("\n")
	}
	return b.String()
}
