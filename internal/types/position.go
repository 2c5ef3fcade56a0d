package types

import (
	"bytes"
	"encoding/json"
)

// NativeBalance is the wallet's BNB entry. Agents see it but cannot
// reference it by index.
type NativeBalance struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
}

// Holding is one open token position valued in BNB.
type Holding struct {
	Name       string  `json:"-"`
	Address    string  `json:"address"`
	BalanceBNB float64 `json:"balance"`
	PnLPct     float64 `json:"PnL"`
}

// Portfolio is a wallet's native balance plus its valued holdings, in
// registry order.
type Portfolio struct {
	Native   *NativeBalance
	Holdings []Holding
}

// Add appends h. A holding whose name is already present replaces the
// earlier one in place.
func (p *Portfolio) Add(h Holding) {
	for i := range p.Holdings {
		if p.Holdings[i].Name == h.Name {
			p.Holdings[i] = h
			return
		}
	}
	p.Holdings = append(p.Holdings, h)
}

// Empty reports whether there is nothing to show.
func (p Portfolio) Empty() bool {
	return p.Native == nil && len(p.Holdings) == 0
}

// MarshalJSON writes the snapshot layout: an object keyed by "BNB" and
// then each holding's name.
func (p Portfolio) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, v any) error {
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		val, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
		return nil
	}
	if p.Native != nil {
		if err := write("BNB", p.Native); err != nil {
			return nil, err
		}
	}
	for _, h := range p.Holdings {
		if err := write(h.Name, h); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
