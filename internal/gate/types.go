package gate

// GroupConfig is the token requirement for one gated group. It is created
// and edited through the interactive bot; everything else reads it.
type GroupConfig struct {
	ChainID    string  `json:"chain_id"`
	Token      string  `json:"token"`
	MinBalance float64 `json:"min_balance"`
	Verifier   string  `json:"verifier,omitempty"`
}

// UserRecord is one (group, member) membership record. The interactive
// process flips Verified to true on a successful proof; the reverification
// pass only ever flips it back to false.
type UserRecord struct {
	Address        string `json:"address"`
	Verified       bool   `json:"verified"`
	LastVerified   int64  `json:"last_verified,omitempty"`
	VerificationTx bool   `json:"verification_tx,omitempty"`
}

// PendingGroup is a whitelist request awaiting the owner's decision.
type PendingGroup struct {
	GroupName string `json:"group_name"`
	AdminID   int64  `json:"admin_id"`
	AdminName string `json:"admin_name"`
	Timestamp int64  `json:"timestamp"`
}
