package identity

import (
	"regexp"
	"strings"

	"github.com/metal-toolbox/placer/internal/model"
)

// Family names a group of patterns extracting identifying tokens from free text.
type Family string

const (
	FamilyModelCode       Family = "model_code"
	FamilyCPUModel        Family = "cpu_model"
	FamilyMemorySpeed     Family = "memory_speed"
	FamilySocket          Family = "socket"
	FamilyCapacity        Family = "capacity"
	FamilyTransceiverForm Family = "transceiver_form"
	FamilyLinkSpeed       Family = "link_speed"

	// tokens shorter than this carry no identifying information
	minTokenLength = 2
)

// patterns are applied to upper cased text.
var patterns = map[Family][]*regexp.Regexp{
	// SFP-10G-SR, M393A4K40DB3-CWE, FTLX8574D3BCL, MCX512A-ACAT
	FamilyModelCode: {
		regexp.MustCompile(`\b[A-Z]{1,6}-?\d{2,}[A-Z0-9-]*`),
	},
	// Gold 6338, EPYC 7443P
	FamilyCPUModel: {
		regexp.MustCompile(`\b(?:PLATINUM|GOLD|SILVER|BRONZE|EPYC|XEON|E[357]-)\s?[A-Z]?\d{3,5}[A-Z]{0,2}`),
	},
	// DDR4-3200, DDR5 4800, PC4-25600R
	FamilyMemorySpeed: {
		regexp.MustCompile(`\bDDR[2-5][- ]?\d{3,4}`),
		regexp.MustCompile(`\bPC[2-5]-\d{4,5}[A-Z]?`),
	},
	// LGA4189, FCLGA4677, AM4, SP3, TR4
	FamilySocket: {
		regexp.MustCompile(`\b(?:FC)?LGA-?\d{3,4}`),
		regexp.MustCompile(`\b(?:AM[2-5]\+?|SP[3-6]|STRX4|SWRX8|TR4)\b`),
	},
	// 32GB, 1.92 TB
	FamilyCapacity: {
		regexp.MustCompile(`\b\d+(?:\.\d+)?\s?[GT]B\b`),
	},
	// SFP+, SFP28, QSFP28, QSFP-DD, OSFP
	FamilyTransceiverForm: {
		regexp.MustCompile(`\b(?:QSFP-DD|QSFP56|QSFP28|QSFP\+|OSFP|SFP56|SFP28|SFP\+|CFP[24]?)`),
	},
	// 10G, 25GBASE-SR, 100G
	FamilyLinkSpeed: {
		regexp.MustCompile(`\b\d{1,3}G(?:BASE-[A-Z0-9]+)?\b`),
	},
}

// families lists the pattern families applied per component type, in order.
var families = map[model.ComponentType][]Family{
	model.ComponentTransceiver: {FamilyModelCode, FamilyTransceiverForm, FamilyLinkSpeed},
	model.ComponentMemory:      {FamilyMemorySpeed, FamilyCapacity, FamilyModelCode},
	model.ComponentStorage:     {FamilyModelCode, FamilyCapacity},
	model.ComponentNIC:         {FamilyModelCode, FamilyLinkSpeed},
	model.ComponentCPU:         {FamilyCPUModel, FamilySocket, FamilyModelCode},
	model.ComponentChassis:     {FamilyModelCode},
}

// Families returns the pattern families applied for the component type.
func Families(componentType model.ComponentType) []Family {
	if f, exists := families[componentType]; exists {
		return f
	}

	return []Family{FamilyModelCode}
}

// ExtractTokens returns the identifying tokens found in the texts for the component type.
//
// Tokens are upper cased with whitespace removed, duplicates are dropped
// and the order is the order in which families and texts are applied.
func ExtractTokens(componentType model.ComponentType, texts ...string) []string {
	seen := map[string]bool{}
	tokens := []string{}

	for _, family := range Families(componentType) {
		for _, text := range texts {
			text = strings.ToUpper(text)

			for _, re := range patterns[family] {
				for _, match := range re.FindAllString(text, -1) {
					token := strings.Join(strings.Fields(match), "")
					token = strings.Trim(token, "-")

					if len(token) < minTokenLength || seen[token] {
						continue
					}

					seen[token] = true
					tokens = append(tokens, token)
				}
			}
		}
	}

	return tokens
}
