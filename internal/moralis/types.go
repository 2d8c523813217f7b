package moralis

// TokenBalance is one entry of the wallet ERC-20 balances response.
// Balance is raw token units as a decimal string.
type TokenBalance struct {
	TokenAddress string `json:"token_address"`
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	Decimals     int    `json:"decimals"`
	Balance      string `json:"balance"`
}

// TokenMetadata is one entry of the ERC-20 metadata response. Moralis
// reports decimals as a string here.
type TokenMetadata struct {
	Address  string `json:"address"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals string `json:"decimals"`
}
