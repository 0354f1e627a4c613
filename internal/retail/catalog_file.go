package retail

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CatalogFile is the YAML layout of a static shop catalog.
type CatalogFile struct {
	Products []Product `yaml:"products"`
	Rewards  []Reward  `yaml:"rewards"`
}

func ParseCatalogFile(data []byte) (Catalog, Rewards, error) {
	var f CatalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Catalog{}, Rewards{}, fmt.Errorf("parse catalog: %w", err)
	}
	cat, err := NewCatalog(f.Products)
	if err != nil {
		return Catalog{}, Rewards{}, err
	}
	list := f.Rewards
	if len(list) == 0 {
		list = DefaultRewards
	}
	rw, err := NewRewards(list)
	if err != nil {
		return Catalog{}, Rewards{}, err
	}
	return cat, rw, nil
}

func LoadCatalogFile(path string) (Catalog, Rewards, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, Rewards{}, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalogFile(data)
}
