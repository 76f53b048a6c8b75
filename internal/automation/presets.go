package automation

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mohammad-safakhou/enroller/internal/ledger"
)

type presetFile struct {
	Presets []struct {
		Name  string `yaml:"name"`
		Chain string `yaml:"chain"`
	} `yaml:"presets"`
}

// LoadPresetsYAML reads chain presets in the form
//
//	presets:
//	  - name: intake
//	    chain: Patient Intake Review
func LoadPresetsYAML(r io.Reader) ([]ledger.ChainPreset, error) {
	var f presetFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode presets: %w", err)
	}
	seen := make(map[string]bool, len(f.Presets))
	out := make([]ledger.ChainPreset, 0, len(f.Presets))
	for i, p := range f.Presets {
		name, chain := strings.TrimSpace(p.Name), strings.TrimSpace(p.Chain)
		if name == "" || chain == "" {
			return nil, fmt.Errorf("preset %d: name and chain are required", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("preset %q defined twice", name)
		}
		seen[name] = true
		out = append(out, ledger.ChainPreset{Name: name, ChainName: chain})
	}
	return out, nil
}
