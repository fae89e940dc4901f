package state

// Record labels. Each record lives at RecordKey(label, keys...).
const (
	labelGlobalState = "global_state"
	labelUserState   = "user_state"
	labelLoan        = "loan"
	labelAccount     = "account"
	labelVault       = "vault"
	labelGenesis     = "genesis"
)
