package catalog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jeremywohl/flatten"
	"github.com/metal-toolbox/placer/internal/model"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// ShapeName names a raw catalog document structure.
type ShapeName string

const (
	// ShapeBrandList is a flat brand to model list
	//
	//  {"brands": [{"brand": "Samsung", "models": ["M393A4K40DB3-CWE", {...}]}]}
	ShapeBrandList ShapeName = "brand_list"

	// ShapeSeriesTree is a manufacturer to series to model tree
	//
	//  {"manufacturers": [{"name": "Intel", "series": [{"name": "Xeon Gold", "models": [...]}]}]}
	ShapeSeriesTree ShapeName = "series_tree"

	// ShapeRecordArray is a top level array of records
	//
	//  [{"id": "...", "brand": "...", "model": "...", "speed": "10G"}]
	ShapeRecordArray ShapeName = "record_array"
)

// RawEntry is a catalog record as read from a document, before identifiers are assigned.
type RawEntry struct {
	ID         string
	Brand      string
	Model      string
	Series     string
	Attributes model.Attributes
}

// Shape is a raw catalog document structure.
type Shape interface {
	Name() ShapeName

	// Matches returns true when the decoded document has this structure.
	Matches(doc any) bool

	// Iterate returns the records of the document in document order.
	Iterate(componentType model.ComponentType, doc any) ([]RawEntry, error)
}

var shapes = []Shape{recordArray{}, seriesTree{}, brandList{}}

// ShapeByName returns the Shape with the given name.
func ShapeByName(name ShapeName) (Shape, error) {
	for _, s := range shapes {
		if s.Name() == name {
			return s, nil
		}
	}

	return nil, errors.Wrap(ErrCatalogMalformed, "unknown catalog shape: "+string(name))
}

// DetectShape returns the Shape matching the decoded document.
func DetectShape(doc any) (Shape, error) {
	for _, s := range shapes {
		if s.Matches(doc) {
			return s, nil
		}
	}

	return nil, errors.Wrap(ErrCatalogMalformed, "document matches no known catalog shape")
}

type recordArray struct{}

func (recordArray) Name() ShapeName { return ShapeRecordArray }

func (recordArray) Matches(doc any) bool {
	_, ok := doc.([]any)
	return ok
}

func (recordArray) Iterate(componentType model.ComponentType, doc any) ([]RawEntry, error) {
	records, ok := doc.([]any)
	if !ok {
		return nil, errors.Wrap(ErrCatalogMalformed, "expected a top level array")
	}

	entries := make([]RawEntry, 0, len(records))

	for i, r := range records {
		entry, err := parseRecord(componentType, r, RawEntry{})
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("record %d", i))
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

type brandList struct{}

func (brandList) Name() ShapeName { return ShapeBrandList }

func (brandList) Matches(doc any) bool {
	m, ok := doc.(map[string]any)
	if !ok {
		return false
	}

	_, ok = m["brands"]

	return ok
}

func (brandList) Iterate(componentType model.ComponentType, doc any) ([]RawEntry, error) {
	brands, err := childList(doc, "brands")
	if err != nil {
		return nil, err
	}

	entries := []RawEntry{}

	for i, b := range brands {
		group, ok := b.(map[string]any)
		if !ok {
			return nil, errors.Wrap(ErrCatalogMalformed, fmt.Sprintf("brands[%d]: expected an object", i))
		}

		brand := firstString(group, "brand", "name", "manufacturer", "vendor")
		if brand == "" {
			return nil, errors.Wrap(ErrCatalogMalformed, fmt.Sprintf("brands[%d]: missing brand", i))
		}

		models, err := childList(group, "models")
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("brands[%d]", i))
		}

		for j, m := range models {
			entry, err := parseRecord(componentType, m, RawEntry{Brand: brand})
			if err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("brands[%d].models[%d]", i, j))
			}

			entries = append(entries, entry)
		}
	}

	return entries, nil
}

type seriesTree struct{}

func (seriesTree) Name() ShapeName { return ShapeSeriesTree }

func (seriesTree) Matches(doc any) bool {
	m, ok := doc.(map[string]any)
	if !ok {
		return false
	}

	_, ok = m["manufacturers"]

	return ok
}

func (seriesTree) Iterate(componentType model.ComponentType, doc any) ([]RawEntry, error) {
	manufacturers, err := childList(doc, "manufacturers")
	if err != nil {
		return nil, err
	}

	entries := []RawEntry{}

	for i, mf := range manufacturers {
		manufacturer, ok := mf.(map[string]any)
		if !ok {
			return nil, errors.Wrap(ErrCatalogMalformed, fmt.Sprintf("manufacturers[%d]: expected an object", i))
		}

		brand := firstString(manufacturer, "name", "manufacturer", "brand")
		if brand == "" {
			return nil, errors.Wrap(ErrCatalogMalformed, fmt.Sprintf("manufacturers[%d]: missing name", i))
		}

		series, err := childList(manufacturer, "series")
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("manufacturers[%d]", i))
		}

		for j, s := range series {
			group, ok := s.(map[string]any)
			if !ok {
				return nil, errors.Wrap(ErrCatalogMalformed, fmt.Sprintf("manufacturers[%d].series[%d]: expected an object", i, j))
			}

			seriesName := firstString(group, "name", "series", "family")

			models, err := childList(group, "models")
			if err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("manufacturers[%d].series[%d]", i, j))
			}

			for k, m := range models {
				entry, err := parseRecord(componentType, m, RawEntry{Brand: brand, Series: seriesName})
				if err != nil {
					return nil, errors.Wrap(err, fmt.Sprintf("manufacturers[%d].series[%d].models[%d]", i, j, k))
				}

				entries = append(entries, entry)
			}
		}
	}

	return entries, nil
}

func childList(doc any, key string) ([]any, error) {
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, errors.Wrap(ErrCatalogMalformed, "expected an object holding "+key)
	}

	v, exists := m[key]
	if !exists {
		return nil, errors.Wrap(ErrCatalogMalformed, "missing key: "+key)
	}

	list, ok := v.([]any)
	if !ok {
		return nil, errors.Wrap(ErrCatalogMalformed, "expected a list: "+key)
	}

	return list, nil
}

// record keys with a fixed meaning, all other keys are attributes.
var (
	idKeys     = []string{"id", "identifier"}
	brandKeys  = []string{"brand", "manufacturer", "vendor"}
	modelKeys  = []string{"model", "name"}
	seriesKeys = []string{"series", "family"}
)

func reservedKey(key string) bool {
	for _, keys := range [][]string{idKeys, brandKeys, modelKeys, seriesKeys} {
		for _, k := range keys {
			if k == key {
				return true
			}
		}
	}

	return false
}

// parseRecord returns the RawEntry for a model record, the record is either a bare model name
// or an object. Fields missing from the record are taken from the parent.
func parseRecord(componentType model.ComponentType, record any, parent RawEntry) (RawEntry, error) {
	entry := parent
	entry.Attributes = model.Attributes{}

	switch r := record.(type) {
	case string:
		entry.Model = strings.TrimSpace(r)
	case map[string]any:
		if v := firstString(r, idKeys...); v != "" {
			entry.ID = v
		}

		if v := firstString(r, brandKeys...); v != "" {
			entry.Brand = v
		}

		if v := firstString(r, modelKeys...); v != "" {
			entry.Model = v
		}

		if v := firstString(r, seriesKeys...); v != "" {
			entry.Series = v
		}

		attrs, err := attributes(componentType, r)
		if err != nil {
			return RawEntry{}, err
		}

		entry.Attributes = attrs
	default:
		return RawEntry{}, errors.Wrap(ErrCatalogMalformed, fmt.Sprintf("unexpected record type %T", record))
	}

	if entry.Model == "" {
		return RawEntry{}, errors.Wrap(ErrCatalogMalformed, "record without model")
	}

	return entry, nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, exists := m[k]; exists && v != nil {
			if s := strings.TrimSpace(stringify(v)); s != "" {
				return s
			}
		}
	}

	return ""
}

// attributeAliases maps catalog attribute keys to the attribute names of the component type.
var attributeAliases = map[model.ComponentType]map[string]string{
	model.ComponentTransceiver: {
		"type":        model.AttrTransceiverType,
		"form_factor": model.AttrTransceiverType,
		"speed_class": model.AttrSpeed,
		"data_rate":   model.AttrSpeed,
		"distance":    model.AttrReach,
	},
	model.ComponentMemory: {
		"type":       model.AttrMemoryType,
		"generation": model.AttrMemoryType,
		"size":       model.AttrCapacity,
	},
	model.ComponentStorage: {
		"bus":  model.AttrInterface,
		"size": model.AttrCapacity,
	},
	model.ComponentNIC: {
		"ports":    model.AttrPortCount,
		"bus":      model.AttrInterface,
		"max_rate": model.AttrSpeed,
	},
	model.ComponentCPU: {
		"cpu_socket": model.AttrSocket,
		"core_count": model.AttrCores,
	},
}

func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(key)
}

// attributes returns the flattened, stringified attribute bag of a record.
func attributes(componentType model.ComponentType, record map[string]any) (model.Attributes, error) {
	nested := make(map[string]any, len(record))

	for k, v := range record {
		if reservedKey(k) || v == nil {
			continue
		}

		// lists of scalars are kept as a single comma joined value
		if list, ok := v.([]any); ok && scalars(list) {
			parts := make([]string, 0, len(list))
			for _, item := range list {
				parts = append(parts, stringify(item))
			}

			v = strings.Join(parts, ",")
		}

		nested[k] = v
	}

	flat, err := flatten.Flatten(nested, "", flatten.UnderscoreStyle)
	if err != nil {
		return nil, errors.Wrap(ErrCatalogMalformed, err.Error())
	}

	keys := maps.Keys(flat)
	slices.Sort(keys)

	attrs := make(model.Attributes, len(flat))
	aliased := map[string]string{}

	for _, k := range keys {
		key := normalizeKey(k)
		value := strings.TrimSpace(stringify(flat[k]))

		if alias, exists := attributeAliases[componentType][key]; exists {
			if _, seen := aliased[alias]; !seen {
				aliased[alias] = value
			}

			continue
		}

		attrs[key] = value
	}

	// an attribute present under its own name wins over an alias
	for key, value := range aliased {
		if _, exists := attrs[key]; !exists {
			attrs[key] = value
		}
	}

	return attrs, nil
}

func scalars(list []any) bool {
	for _, item := range list {
		switch item.(type) {
		case map[string]any, []any:
			return false
		}
	}

	return true
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
