package model

// CatalogEntry is a normalized specification record for one component model.
//
// nolint:govet // fieldalignment struct is easier to read in the current format
type CatalogEntry struct {
	ComponentType ComponentType `json:"component_type" yaml:"component_type"`

	// Identifier is unique within a catalog, when the raw catalog lacks one
	// it is derived from the brand and model and DerivedIdentifier is set.
	Identifier        string `json:"identifier" yaml:"identifier"`
	DerivedIdentifier bool   `json:"derived_identifier,omitempty" yaml:"derived_identifier,omitempty"`

	Brand  string `json:"brand" yaml:"brand"`
	Model  string `json:"model" yaml:"model"`
	Series string `json:"series,omitempty" yaml:"series,omitempty"`

	Attributes Attributes `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// Attribute returns the entry attribute value for the key.
func (e *CatalogEntry) Attribute(key string) string {
	return e.Attributes.Get(key)
}
