package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"churchledger/internal/core"
)

// LoadCatalog reads a YAML catalog. An empty path returns the built-in
// catalog; sections missing from the file fall back to it as well.
func LoadCatalog(path string) (core.Catalog, error) {
	if path == "" {
		return core.DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Catalog{}, fmt.Errorf("read catalog %s: %w", path, err)
	}
	cat, err := ParseCatalog(data)
	if err != nil {
		return core.Catalog{}, fmt.Errorf("catalog %s: %w", path, err)
	}
	return cat, nil
}

// ParseCatalog decodes and validates catalog YAML:
//
//	currency: "₦"
//	denominations:
//	  - {value: 1000, label: "1 000"}
//	funds:
//	  - {name: offering, label: Offering}
func ParseCatalog(data []byte) (core.Catalog, error) {
	var cat core.Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return core.Catalog{}, fmt.Errorf("decode yaml: %w", err)
	}
	def := core.DefaultCatalog()
	if cat.Currency == "" {
		cat.Currency = def.Currency
	}
	if len(cat.Denominations) == 0 {
		cat.Denominations = def.Denominations
	}
	if len(cat.Funds) == 0 {
		cat.Funds = def.Funds
	}
	if err := cat.Validate(); err != nil {
		return core.Catalog{}, err
	}
	return cat, nil
}
