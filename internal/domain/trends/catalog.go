package trends

// RelatedSymbol annotates a category with a tradable ticker. Symbols are
// attached to alerts for context only, they play no part in detection.
type RelatedSymbol struct {
	Ticker      string `yaml:"ticker" validate:"required"`
	Description string `yaml:"description" validate:"required"`
}

// Category is a named, ordered set of search terms plus the related symbols
// scoped to the category. Term order in the catalog is scan order.
type Category struct {
	Name    string          `yaml:"name" validate:"required"`
	Terms   []string        `yaml:"terms" validate:"required,min=1,dive,required"`
	Symbols []RelatedSymbol `yaml:"symbols" validate:"dive"`
}

// Catalog is the full set of categories to scan, in declared order.
type Catalog struct {
	Categories []Category `yaml:"categories" validate:"required,min=1,dive"`
}

// TermCount returns the total number of search terms across all categories.
func (c *Catalog) TermCount() int {
	n := 0
	for _, cat := range c.Categories {
		n += len(cat.Terms)
	}
	return n
}
