package balance

import "github.com/ethereum/go-ethereum/common"

var nativeSymbols = map[int64]string{
	1:        "ETH",
	56:       "BNB",
	137:      "POL",
	80002:    "POL",
	11155111: "ETH",
}

// NativeSymbol returns the gas token symbol of chainID.
func NativeSymbol(chainID int64) string {
	if sym, ok := nativeSymbols[chainID]; ok {
		return sym
	}
	return "ETH"
}

// DefaultTokens is the built-in per-chain ERC-20 table.
func DefaultTokens() map[int64][]Token {
	return map[int64][]Token{
		1: {
			{ChainID: 1, Symbol: "USDT", Address: common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")},
			{ChainID: 1, Symbol: "USDC", Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")},
			{ChainID: 1, Symbol: "WETH", Address: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")},
		},
		56: {
			{ChainID: 56, Symbol: "USDT", Address: common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")},
			{ChainID: 56, Symbol: "USDC", Address: common.HexToAddress("0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d")},
		},
		137: {
			{ChainID: 137, Symbol: "USDT", Address: common.HexToAddress("0xc2132D05D31c914a87C6611C10748AEb04B58e8F")},
			{ChainID: 137, Symbol: "USDC", Address: common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359")},
			{ChainID: 137, Symbol: "WETH", Address: common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619")},
		},
	}
}
