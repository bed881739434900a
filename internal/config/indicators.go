package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"monitoring-service/internal/models"
)

// Indicators maps a normalized indicator name to its limits. A nil value means
// the indicator is recognized but only deviation rules apply to it.
type Indicators map[string]*models.IndicatorLimits

// Lookup reports whether name is recognized and returns its limits.
func (i Indicators) Lookup(name string) (*models.IndicatorLimits, bool) {
	limits, ok := i[NormalizeIndicator(name)]
	return limits, ok
}

// Names returns the recognized indicator keys in sorted order.
func (i Indicators) Names() []string {
	names := make([]string, 0, len(i))
	for name := range i {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func NormalizeIndicator(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// DefaultIndicators is used when no INDICATORS_FILE is configured.
func DefaultIndicators() Indicators {
	return Indicators{
		"pulse":            {Min: 60, Max: 100},
		"temperature":      {Min: 36.0, Max: 37.5},
		"systolicpressure": {Min: 90, Max: 140},
		"respiratoryrate":  {Min: 12, Max: 20},
		"oxygensaturation": {Min: 95, Max: 100},
		"weight":           nil,
	}
}

type indicatorFile struct {
	Indicator []struct {
		Name string   `toml:"name"`
		Min  *float64 `toml:"min"`
		Max  *float64 `toml:"max"`
	} `toml:"indicator"`
}

// LoadIndicators parses a TOML file of [[indicator]] tables.
func LoadIndicators(path string) (Indicators, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read indicators file: %w", err)
	}
	return ParseIndicators(raw)
}

func ParseIndicators(raw []byte) (Indicators, error) {
	var file indicatorFile
	if err := toml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode indicators: %w", err)
	}

	out := make(Indicators, len(file.Indicator))
	for _, entry := range file.Indicator {
		name := NormalizeIndicator(entry.Name)
		if name == "" {
			return nil, fmt.Errorf("indicator without a name")
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("indicator %q declared twice", entry.Name)
		}
		switch {
		case entry.Min == nil && entry.Max == nil:
			out[name] = nil
		case entry.Min == nil || entry.Max == nil:
			return nil, fmt.Errorf("indicator %q must set both min and max", entry.Name)
		case *entry.Min > *entry.Max:
			return nil, fmt.Errorf("indicator %q has min above max", entry.Name)
		default:
			out[name] = &models.IndicatorLimits{Min: *entry.Min, Max: *entry.Max}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("indicators file declares no indicators")
	}
	return out, nil
}
