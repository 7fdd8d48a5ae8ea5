package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// zstd decoders are safe for concurrent use and reused across loads.
var zstdDecoder *zstd.Decoder

func init() {
	var err error

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("catalog: zstd decoder initialization failed: " + err.Error())
	}
}

// decode returns the generic value tree of a catalog document,
// objects decode to map[string]any and arrays to []any.
func decode(doc *Document) (any, error) {
	data := doc.Data

	switch doc.Format {
	case FormatJSON:
	case FormatJSONC:
		data = jsonc.ToJSON(data)
	case FormatJSONZstd:
		plain, err := zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, errors.Wrap(ErrCatalogMalformed, "zstd decompress: "+err.Error())
		}

		// compressed documents may carry comments too
		data = jsonc.ToJSON(plain)
	case FormatYAML:
		return decodeYAML(data)
	default:
		return nil, errors.Wrap(ErrCatalogMalformed, "unsupported format: "+string(doc.Format))
	}

	var tree any

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := dec.Decode(&tree); err != nil {
		return nil, errors.Wrap(ErrCatalogMalformed, err.Error())
	}

	return tree, nil
}

func decodeYAML(data []byte) (any, error) {
	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, errors.Wrap(ErrCatalogMalformed, err.Error())
	}

	return normalizeYAML(tree), nil
}

// normalizeYAML converts the map[any]any values yaml produces for non string keys
// to the map[string]any form the shapes expect.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}

		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalizeYAML(val)
		}

		return m
	case []any:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}

		return t
	default:
		return v
	}
}
