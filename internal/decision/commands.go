package decision

import (
	"regexp"
	"strings"

	"memearena/internal/logger"
	"memearena/internal/pkg/convert"
	"memearena/internal/pkg/text"
	"memearena/internal/types"
)

var (
	commandsMarker = regexp.MustCompile(`(?i)commands:`)
	reasonMarker   = regexp.MustCompile(`(?i)reason:`)
	buyPattern     = regexp.MustCompile(`(?i)buy\(\s*([^) ,]+)\s*,\s*([^)]+)\)`)
	sellPattern    = regexp.MustCompile(`(?i)sell\(\s*([^)]+)\s*\)`)
)

// Command is one parsed buy or sell line. RawIndex is unresolved.
// Amount is the leading number of RawAmount, zero when there is none.
type Command struct {
	Kind      types.Side
	RawIndex  string
	RawAmount string
	Amount    float64
	Line      string
}

// ExtractCommands returns the buy/sell lines of the first "commands:"
// section, which ends at the next "reason:" marker or at the end of text.
// Lines that start like a command but do not parse are logged and dropped.
func ExtractCommands(s string) []Command {
	section, ok := commandsSection(s)
	if !ok {
		return nil
	}
	var out []Command
	for _, raw := range strings.Split(section, "\n") {
		line := strings.TrimSpace(raw)
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "buy("):
			m := buyPattern.FindStringSubmatch(line)
			if m == nil {
				logger.Warnf("skipping malformed buy line %q", text.Truncate(line, 120))
				continue
			}
			amount, _ := convert.LeadingFloat(m[2])
			out = append(out, Command{
				Kind:      types.SideBuy,
				RawIndex:  strings.TrimSpace(m[1]),
				RawAmount: strings.TrimSpace(m[2]),
				Amount:    amount,
				Line:      line,
			})
		case strings.HasPrefix(lower, "sell("):
			m := sellPattern.FindStringSubmatch(line)
			if m == nil {
				logger.Warnf("skipping malformed sell line %q", text.Truncate(line, 120))
				continue
			}
			out = append(out, Command{
				Kind:     types.SideSell,
				RawIndex: strings.TrimSpace(m[1]),
				Line:     line,
			})
		}
	}
	return out
}

func commandsSection(s string) (string, bool) {
	loc := commandsMarker.FindStringIndex(s)
	if loc == nil {
		return "", false
	}
	start := loc[0]
	rest := s[loc[1]:]
	if end := reasonMarker.FindStringIndex(rest); end != nil {
		return s[start : loc[1]+end[0]], true
	}
	return s[start:], true
}
