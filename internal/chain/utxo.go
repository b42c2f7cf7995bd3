package chain

func init() {
	Register(&Params{
		ID:               GHOST,
		Name:             "Ghost",
		Family:           FamilyUTXO,
		Decimals:         8,
		CoinType:         531,
		PubKeyHashAddrID: 0x26,
		ScriptHashAddrID: 0x61,
		WIF:              0xa6,
		HDPrivateKeyID:   [4]byte{0x04, 0x88, 0xad, 0xe4},
		HDPublicKeyID:    [4]byte{0x04, 0x88, 0xb2, 0x1e},
		Explorer:         "ghostscan",
	})

	Register(&Params{
		ID:               NEXT,
		Name:             "NEXT.coin",
		Family:           FamilyUTXO,
		Decimals:         8,
		CoinType:         707,
		PubKeyHashAddrID: 0x4b,
		ScriptHashAddrID: 0x05,
		WIF:              0xcb,
		HDPrivateKeyID:   [4]byte{0x04, 0x88, 0xad, 0xe4},
		HDPublicKeyID:    [4]byte{0x04, 0x88, 0xb2, 0x1e},
		Explorer:         "nextexplorer",
	})
}
