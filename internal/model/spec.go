package model

// MatchedBy indicates how a physical unit was joined to a specification.
type MatchedBy string

const (
	// MatchedDirect is set when the unit catalog identifier was found in the catalog.
	MatchedDirect MatchedBy = "direct"

	// MatchedSmart is set when the unit was matched heuristically from its free text fields.
	MatchedSmart MatchedBy = "smart_matching"

	// MatchedFallback is set when no catalog entry could be matched,
	// the spec then only carries the structured fields present on the unit.
	MatchedFallback MatchedBy = "database_fallback"
)

const (
	// ConfidenceDirect is the match confidence of direct matches, and direct matches only.
	ConfidenceDirect = 1.0

	// ConfidenceFallback is the match confidence of database fallback specs.
	ConfidenceFallback = 0.0
)

// ResolvedSpec is the join of an inventory item to a catalog entry.
//
// nolint:govet // fieldalignment struct is easier to read in the current format
type ResolvedSpec struct {
	UnitID        string        `json:"unit_id,omitempty"`
	ComponentType ComponentType `json:"component_type"`
	Identifier    string        `json:"identifier,omitempty"`
	Brand         string        `json:"brand,omitempty"`
	Model         string        `json:"model,omitempty"`
	Series        string        `json:"series,omitempty"`
	Attributes    Attributes    `json:"attributes,omitempty"`

	MatchConfidence float64   `json:"match_confidence"`
	MatchedBy       MatchedBy `json:"matched_by"`
}

// Resolved returns true when the spec was joined to a catalog entry.
func (r *ResolvedSpec) Resolved() bool {
	return r.MatchedBy == MatchedDirect || r.MatchedBy == MatchedSmart
}

// Attribute returns the spec attribute value for the key.
func (r *ResolvedSpec) Attribute(key string) string {
	return r.Attributes.Get(key)
}

// SpecFromEntry returns a ResolvedSpec for the unit from the catalog entry.
func SpecFromEntry(unitID string, entry *CatalogEntry, confidence float64, matchedBy MatchedBy) ResolvedSpec {
	return ResolvedSpec{
		UnitID:          unitID,
		ComponentType:   entry.ComponentType,
		Identifier:      entry.Identifier,
		Brand:           entry.Brand,
		Model:           entry.Model,
		Series:          entry.Series,
		Attributes:      entry.Attributes.Copy(),
		MatchConfidence: confidence,
		MatchedBy:       matchedBy,
	}
}
