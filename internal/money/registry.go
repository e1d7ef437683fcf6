// Package money detects currency mentions in free text and converts amounts
// between currencies. Detection is registry-driven: an embedded YAML file
// defines the recognizers and their priority order, so the patterns can be
// reviewed and extended without touching code.
package money

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fintalk-io/fintalk/patterns"
)

// registryFile is the top-level YAML structure of the currency registry.
type registryFile struct {
	Recognizers []recognizerConfig `yaml:"recognizers"`
	Symbols     map[string]string  `yaml:"symbols"`
	Words       map[string]string  `yaml:"words"`
}

// recognizerConfig is one regex recognizer in the registry.
type recognizerConfig struct {
	Name        string `yaml:"name"`
	Priority    int    `yaml:"priority"`
	Regex       string `yaml:"regex"`
	AmountGroup int    `yaml:"amount_group"`
	UnitGroup   int    `yaml:"unit_group"`
	UnitKind    string `yaml:"unit_kind"` // symbol, code, word
}

// recognizer is a compiled registry entry.
type recognizer struct {
	name        string
	priority    int
	pattern     *regexp.Regexp
	amountGroup int
	unitGroup   int
	unitKind    string
}

// Detector matches currency mentions against the compiled registry.
type Detector struct {
	recognizers []recognizer
	symbols     map[string]string
	words       map[string]string
}

// NewDetector compiles the embedded currency registry.
func NewDetector() (*Detector, error) {
	return newDetectorFromYAML(patterns.CurrencyYAML())
}

func newDetectorFromYAML(data []byte) (*Detector, error) {
	var rf registryFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing currency registry YAML: %w", err)
	}

	d := &Detector{
		symbols: rf.Symbols,
		words:   make(map[string]string, len(rf.Words)),
	}
	for w, code := range rf.Words {
		d.words[strings.ToLower(w)] = code
	}

	for _, rc := range rf.Recognizers {
		compiled, err := regexp.Compile(rc.Regex)
		if err != nil {
			return nil, fmt.Errorf("compiling recognizer %q: %w", rc.Name, err)
		}
		if rc.AmountGroup <= 0 || rc.UnitGroup <= 0 {
			return nil, fmt.Errorf("recognizer %q: amount_group and unit_group are required", rc.Name)
		}
		d.recognizers = append(d.recognizers, recognizer{
			name:        rc.Name,
			priority:    rc.Priority,
			pattern:     compiled,
			amountGroup: rc.AmountGroup,
			unitGroup:   rc.UnitGroup,
			unitKind:    rc.UnitKind,
		})
	}
	sort.SliceStable(d.recognizers, func(i, j int) bool {
		return d.recognizers[i].priority < d.recognizers[j].priority
	})
	return d, nil
}

// normalizeUnit maps a matched unit string to an ISO 4217 code, or "" when
// the unit is not in the registry tables.
func (d *Detector) normalizeUnit(kind, unit string) string {
	switch kind {
	case "symbol":
		return d.symbols[unit]
	case "code":
		return strings.ToUpper(unit)
	case "word":
		return d.words[strings.ToLower(unit)]
	default:
		return ""
	}
}
