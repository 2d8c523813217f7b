package verify

import "strings"

// chainAliases maps network names and hex chain IDs onto the canonical
// keys the providers accept. Unknown identifiers pass through unchanged.
var chainAliases = map[string]string{
	"eth":     "eth",
	"mainnet": "eth",
	"0x1":     "eth",
	"bsc":     "bsc",
	"binance": "bsc",
	"0x38":    "bsc",
	"polygon": "polygon",
	"matic":   "polygon",
	"0x89":    "polygon",
}

// CanonicalChain resolves a chain identifier to its canonical key.
func CanonicalChain(chainID string) string {
	if canonical, ok := chainAliases[strings.ToLower(chainID)]; ok {
		return canonical
	}
	return chainID
}
