package config

import (
	"errors"
	"fmt"
	"strings"

	"memearena/internal/pkg/evmaddr"
)

// ErrInvalidWallet is returned when an agent's wallet is not an EVM address.
var ErrInvalidWallet = errors.New("invalid wallet address")

// WalletEntry binds one agent to the wallet the relay trades from.
type WalletEntry struct {
	AgentID string
	Wallet  string
}

// WalletBook is the immutable agent→wallet table. It is built once at
// startup and safe for concurrent reads.
type WalletBook struct {
	byAgent map[string]string
	order   []string
}

// NewWalletBook validates every entry. An empty agent id, a duplicate agent
// or a malformed address fails the whole book.
func NewWalletBook(entries ...WalletEntry) (*WalletBook, error) {
	book := &WalletBook{byAgent: make(map[string]string, len(entries))}
	for _, e := range entries {
		id := strings.TrimSpace(e.AgentID)
		if id == "" {
			return nil, fmt.Errorf("wallet entry without agent id")
		}
		if _, dup := book.byAgent[id]; dup {
			return nil, fmt.Errorf("duplicate wallet entry for agent %s", id)
		}
		wallet := strings.TrimSpace(e.Wallet)
		if !evmaddr.Valid(wallet) {
			return nil, fmt.Errorf("agent %s: %w: %q", id, ErrInvalidWallet, e.Wallet)
		}
		book.byAgent[id] = wallet
		book.order = append(book.order, id)
	}
	return book, nil
}

// Lookup returns the wallet bound to agentID.
func (b *WalletBook) Lookup(agentID string) (string, bool) {
	if b == nil {
		return "", false
	}
	w, ok := b.byAgent[strings.TrimSpace(agentID)]
	return w, ok
}

// Agents lists agent ids in configuration order.
func (b *WalletBook) Agents() []string {
	if b == nil {
		return nil
	}
	return append([]string(nil), b.order...)
}

func (b *WalletBook) Len() int {
	if b == nil {
		return 0
	}
	return len(b.order)
}
