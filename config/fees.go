package config

import (
	"fmt"
	"sort"
	"strings"
)

// FeeTier is one row of the venue fee schedule.
type FeeTier struct {
	Maker float64 `yaml:"maker" json:"maker"`
	Taker float64 `yaml:"taker" json:"taker"`
}

type FeesConfig struct {
	DefaultTier string             `yaml:"default_tier"`
	Tiers       map[string]FeeTier `yaml:"tiers"`
}

func (f FeesConfig) validate() error {
	if len(f.Tiers) == 0 {
		return fmt.Errorf("fees.tiers must define at least one tier")
	}
	for name, tier := range f.Tiers {
		if tier.Maker < 0 || tier.Maker > 1 || tier.Taker < 0 || tier.Taker > 1 {
			return fmt.Errorf("fees.tiers.%s rates must be within [0,1]", name)
		}
	}
	if f.DefaultTier != "" {
		if _, err := f.Lookup(f.DefaultTier); err != nil {
			return fmt.Errorf("fees.default_tier: %w", err)
		}
	}
	return nil
}

// Lookup finds a tier by name, case-insensitively.
func (f FeesConfig) Lookup(name string) (FeeTier, error) {
	if tier, ok := f.Tiers[name]; ok {
		return tier, nil
	}
	for k, tier := range f.Tiers {
		if strings.EqualFold(k, name) {
			return tier, nil
		}
	}
	return FeeTier{}, fmt.Errorf("unknown fee tier '%s'", name)
}

// TakerRate resolves the taker rate for a tier, falling back to the default
// tier when name is empty. Market orders always pay the taker rate.
func (f FeesConfig) TakerRate(name string) (float64, error) {
	if name == "" {
		name = f.DefaultTier
	}
	tier, err := f.Lookup(name)
	if err != nil {
		return 0, err
	}
	return tier.Taker, nil
}

// Names returns the tier names in sorted order.
func (f FeesConfig) Names() []string {
	names := make([]string, 0, len(f.Tiers))
	for name := range f.Tiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
