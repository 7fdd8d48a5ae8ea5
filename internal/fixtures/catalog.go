package fixtures

import (
	"os"
	"path/filepath"
)

var (
	// TransceiverCatalog is a record array catalog of optical modules.
	TransceiverCatalog = []byte(`[
  {"id": "sfp-10g-sr", "brand": "Cisco", "model": "SFP-10G-SR", "type": "SFP+", "speed": "10G", "connector": "LC", "reach": "300m", "wavelength": "850nm"},
  {"id": "sfp-25g-sr", "brand": "Cisco", "model": "SFP-25G-SR-S", "type": "SFP28", "speed": "25G", "connector": "LC", "reach": "100m", "wavelength": "850nm"},
  {"id": "qsfp-100g-sr4", "brand": "Arista", "model": "QSFP-100G-SR4", "type": "QSFP28", "speed": "100G", "connector": "MPO", "reach": "100m", "wavelength": "850nm"},
  {"brand": "Finisar", "model": "FTLX8574D3BCL", "type": "SFP+", "speed": "10Gbps", "connector": "LC", "specs": {"temperature": "commercial", "ddm": true}}
]`)

	// MemoryCatalog is a brand list catalog of memory modules, without identifiers.
	MemoryCatalog = []byte(`{
  // DIMMs qualified for the compute fleet
  "brands": [
    {
      "brand": "Samsung",
      "models": [
        {"model": "M393A4K40DB3-CWE DDR4-3200 32GB", "memory_type": "DDR4", "speed": "3200", "capacity": "32GB", "form_factor": "RDIMM"},
        {"model": "M393A2K43DB3-CWE DDR4-3200 16GB", "memory_type": "DDR4", "speed": "3200", "capacity": "16GB", "form_factor": "RDIMM"},
      ],
    },
    {
      "brand": "Micron Technology",
      "models": [
        {"model": "MTC20F2085S1RC48BA1 DDR5-4800 32GB", "type": "DDR5", "speed": 4800, "capacity": "32GB"},
        "MTA36ASF4G72PZ-3G2",
      ],
    },
  ],
}`)

	// CPUCatalog is a manufacturer, series, model tree catalog of processors.
	CPUCatalog = []byte(`manufacturers:
  - name: Intel
    series:
      - name: Xeon Gold
        models:
          - model: Gold 6338
            socket: LGA4189
            cores: 32
          - model: Gold 6430
            socket: LGA4677
            cores: 32
  - name: AMD
    series:
      - name: EPYC
        models:
          - {model: EPYC 7443P, socket: SP3, cores: 24}
`)
)

// catalog file names in a catalog directory
const (
	TransceiverCatalogFile = "transceiver.json"
	MemoryCatalogFile      = "memory.jsonc"
	CPUCatalogFile         = "cpu.yaml"
)

// WriteCatalogs writes the fixture catalogs to the directory.
func WriteCatalogs(dir string) error {
	files := map[string][]byte{
		TransceiverCatalogFile: TransceiverCatalog,
		MemoryCatalogFile:      MemoryCatalog,
		CPUCatalogFile:         CPUCatalog,
	}

	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
			return err
		}
	}

	return nil
}
