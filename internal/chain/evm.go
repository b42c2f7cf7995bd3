package chain

func init() {
	Register(&Params{
		ID:           ETH,
		Name:         "Ethereum",
		Family:       FamilyEVM,
		Decimals:     18,
		CoinType:     60,
		ChainID:      1,
		GasLimitSend: 21000,
		Explorer:     "etherscan",
	})

	Register(&Params{
		ID:           BNB,
		Name:         "BNB Smart Chain",
		Family:       FamilyEVM,
		Decimals:     18,
		CoinType:     60,
		ChainID:      56,
		GasLimitSend: 21000,
		Explorer:     "bscscan",
	})

	Register(&Params{
		ID:           MATIC,
		Name:         "Polygon",
		Family:       FamilyEVM,
		Decimals:     18,
		CoinType:     60,
		ChainID:      137,
		GasLimitSend: 21000,
		Explorer:     "polygonscan",
	})

	// Arbitrum meters L1 calldata through gas, so plain transfers need a
	// far larger limit than 21000. Unused gas is refunded.
	Register(&Params{
		ID:           ARBETH,
		Name:         "Arbitrum",
		Family:       FamilyEVM,
		Decimals:     18,
		CoinType:     60,
		ChainID:      42161,
		GasLimitSend: 1000000,
		Explorer:     "arbiscan",
	})
}
