package types

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// TradeResult is the outcome of one executed command. Ignored results
// were not credited and left the ledger untouched.
type TradeResult struct {
	Side      Side    `json:"side"`
	AgentID   string  `json:"agent_id"`
	Wallet    string  `json:"wallet"`
	Token     string  `json:"token"`
	RequestID string  `json:"request_id"`
	AmountBNB float64 `json:"amount_bnb,omitempty"`
	Before    float64 `json:"before"`
	After     float64 `json:"after"`
	Delta     float64 `json:"delta"`
	Ignored   bool    `json:"ignored"`
	Reason    string  `json:"reason,omitempty"`
	// Settled is set on sells whose realized PnL was booked.
	Settled bool `json:"settled,omitempty"`
}
