package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortfolioMarshalKeepsOrder(t *testing.T) {
	p := Portfolio{Native: &NativeBalance{Address: "0xeee", Amount: 0.5}}
	p.Add(Holding{Name: "PEPE", Address: "0xaaa", BalanceBNB: 0.1, PnLPct: 12.5})
	p.Add(Holding{Name: "DOGE", Address: "0xbbb", BalanceBNB: 0.2})

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t,
		`{"BNB":{"address":"0xeee","amount":0.5},"PEPE":{"address":"0xaaa","balance":0.1,"PnL":12.5},"DOGE":{"address":"0xbbb","balance":0.2,"PnL":0}}`,
		string(raw))
}

func TestPortfolioAddReplacesSameName(t *testing.T) {
	var p Portfolio
	assert.True(t, p.Empty())
	p.Add(Holding{Name: "X", Address: "0x1"})
	p.Add(Holding{Name: "Y", Address: "0x2"})
	p.Add(Holding{Name: "X", Address: "0x3"})
	require.Len(t, p.Holdings, 2)
	assert.Equal(t, "0x3", p.Holdings[0].Address)
	assert.False(t, p.Empty())
}
