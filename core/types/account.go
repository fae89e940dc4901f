package types

// Account is the per-address record kept by the node: the replay counter for
// signed transactions and the stable asset balance.
type Account struct {
	Nonce   uint64 `json:"nonce"`
	Balance uint64 `json:"balance"`
}
