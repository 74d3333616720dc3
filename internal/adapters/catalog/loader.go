package catalog

import (
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"trendwatch/internal/domain/trends"
	"trendwatch/pkg/errors"
)

var validate = validator.New()

// Load reads and validates the category catalog from a YAML file. Category
// and term order in the file is scan order.
func Load(path string) (*trends.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read catalog %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates catalog YAML
func Parse(data []byte) (*trends.Catalog, error) {
	var cat trends.Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, errors.Wrap(err, "decode catalog yaml")
	}

	if err := validate.Struct(&cat); err != nil {
		return nil, errors.Wrap(errors.ErrCatalogInvalid, err.Error())
	}

	seen := make(map[string]struct{}, len(cat.Categories))
	for _, c := range cat.Categories {
		if _, dup := seen[c.Name]; dup {
			return nil, errors.Wrapf(errors.ErrCatalogInvalid, "duplicate category %q", c.Name)
		}
		seen[c.Name] = struct{}{}
	}

	return &cat, nil
}
