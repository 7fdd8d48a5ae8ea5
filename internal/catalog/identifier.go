package catalog

import (
	"encoding/hex"
	"strconv"

	"github.com/metal-toolbox/placer/internal/model"
	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
)

// identifierKey is the BLAKE3 key for derived catalog identifiers,
// changing it changes every derived identifier.
var identifierKey = [32]byte{
	'p', 'l', 'a', 'c', 'e', 'r', '.', 'c', 'a', 't', 'a', 'l', 'o', 'g', '.',
	'i', 'd', 'e', 'n', 't', 'i', 'f', 'i', 'e', 'r', 0, 0, 0, 0, 0, 0, 0,
}

// derived identifiers carry 8 bytes of the digest
const derivedIDBytes = 8

// DeriveIdentifier returns the identifier of a catalog entry lacking one,
// it depends only on the component type and the normalized brand and model.
func DeriveIdentifier(componentType model.ComponentType, brand, modelName string) string {
	hasher, err := blake3.NewKeyed(identifierKey[:])
	if err != nil {
		panic("catalog: BLAKE3 keyed hash initialization failed: " + err.Error())
	}

	_, _ = hasher.Write([]byte(model.NormalizeBrand(brand)))
	_, _ = hasher.Write([]byte{0})
	_, _ = hasher.Write([]byte(model.NormalizeModel(modelName)))

	sum := hasher.Sum(nil)

	return string(componentType) + "-" + hex.EncodeToString(sum[:derivedIDBytes])
}

// assignIdentifiers returns the catalog entries for the raw entries in the same order.
//
// Entries without an identifier get a derived one, entries sharing a brand and model
// get a -2, -3.. suffix in catalog order. Duplicate explicit identifiers are malformed.
func assignIdentifiers(componentType model.ComponentType, raw []RawEntry) ([]model.CatalogEntry, error) {
	entries := make([]model.CatalogEntry, 0, len(raw))
	explicit := make(map[string]bool, len(raw))
	derivedCount := map[string]int{}

	for _, r := range raw {
		if r.ID == "" {
			continue
		}

		if explicit[r.ID] {
			return nil, errors.Wrap(ErrCatalogMalformed, "duplicate identifier: "+r.ID)
		}

		explicit[r.ID] = true
	}

	for _, r := range raw {
		entry := model.CatalogEntry{
			ComponentType: componentType,
			Identifier:    r.ID,
			Brand:         r.Brand,
			Model:         r.Model,
			Series:        r.Series,
			Attributes:    r.Attributes,
		}

		if entry.Identifier == "" {
			base := DeriveIdentifier(componentType, r.Brand, r.Model)
			derivedCount[base]++

			id := base
			if n := derivedCount[base]; n > 1 {
				id = base + "-" + strconv.Itoa(n)
			}

			if explicit[id] {
				return nil, errors.Wrap(ErrCatalogMalformed, "derived identifier collides with explicit identifier: "+id)
			}

			entry.Identifier = id
			entry.DerivedIdentifier = true
		}

		entries = append(entries, entry)
	}

	return entries, nil
}
