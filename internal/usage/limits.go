package usage

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/recruit-cli/internal/model"
)

// Limit is the budget of one provider. Zero Monthly means unmetered;
// zero PerSecond means no local throttle.
type Limit struct {
	Monthly     int64   `yaml:"monthly"`
	PerSecond   float64 `yaml:"per_second"`
	Burst       int     `yaml:"burst"`
	CostPerCall float64 `yaml:"cost_per_call"`
}

// Limits maps provider name to its budget.
type Limits map[string]Limit

// DefaultLimits returns the built-in provider budgets.
func DefaultLimits() Limits {
	return Limits{
		model.ProviderHunter:    {Monthly: 500, PerSecond: 10, Burst: 10, CostPerCall: 0.098},
		model.ProviderProxycurl: {Monthly: 1000, PerSecond: 5, Burst: 5, CostPerCall: 0.01},
		model.ProviderAnthropic: {Monthly: 10000, PerSecond: 5, Burst: 5},
		model.ProviderSMTP:      {Monthly: 10000, PerSecond: 10, Burst: 10},
	}
}

// LoadLimits reads provider budgets from a YAML file and layers them over
// the defaults. An empty path returns the defaults.
//
//	limits:
//	  hunter:
//	    monthly: 2000
//	    per_second: 15
func LoadLimits(path string) (Limits, error) {
	limits := DefaultLimits()
	if path == "" {
		return limits, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "usage: read limits %s", path)
	}

	var wrapper struct {
		Limits Limits `yaml:"limits"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "usage: parse limits")
	}

	for provider, l := range wrapper.Limits {
		if l.Burst == 0 {
			l.Burst = max(1, int(l.PerSecond))
		}
		limits[provider] = l
	}
	return limits, nil
}
