package config

import "fmt"

// chainNames maps chain IDs to their names
var chainNames = map[uint64]string{
	1:     "ETHEREUM",
	10:    "OPTIMISM",
	137:   "POLYGON",
	42161: "ARBITRUM",
	43114: "AVALANCHE",
	56:    "BSC",
	7000:  "ZETACHAIN",
	8453:  "BASE",
}

// GetChainName returns the name of the chain for a given chain ID, or
// CHAIN_<id> for chains without a name
func GetChainName(chainID uint64) string {
	name, exists := chainNames[chainID]
	if !exists {
		return fmt.Sprintf("CHAIN_%d", chainID)
	}
	return name
}
