package signal

import (
	"fmt"
	"strings"
)

var rationale = map[State]string{
	EnterLong: "RSI is below 30 (oversold). MACD crossed above its signal line. EMA20 is above EMA50.",
	ExitShort: "RSI is above 70 (overbought). MACD crossed below its signal line. EMA20 is below EMA50.",
	Neutral:   "No strong entry or exit conditions observed. Wait.",
}

// Fact is one labeled line of an explanation.
type Fact struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Explanation is the ordered, pre-formatted breakdown of a classification.
type Explanation struct {
	Rationale string `json:"rationale"`
	Facts     []Fact `json:"facts"`
}

// Lines renders the rationale followed by one "Label: value" line per fact.
// A fact without a label is rendered as its bare value.
func (e Explanation) Lines() []string {
	out := make([]string, 0, len(e.Facts)+1)
	out = append(out, e.Rationale)
	for _, f := range e.Facts {
		if f.Label == "" {
			out = append(out, f.Value)
			continue
		}
		out = append(out, f.Label+": "+f.Value)
	}
	return out
}

func (e Explanation) String() string { return strings.Join(e.Lines(), "\n") }

// explain only formats values already present in r.
func explain(r Result) Explanation {
	p := r.Point
	return Explanation{
		Rationale: rationale[r.State],
		Facts: []Fact{
			{"Price", fmt.Sprintf("%.4f", r.Price)},
			{"Volume", fmt.Sprintf("%.2f", r.Volume)},
			{"SMA20", fmt.Sprintf("%.2f", p.SMA20)},
			{"Liquidity", fmt.Sprintf("%.2f", r.Liquidity)},
			{"Support", fmt.Sprintf("%.2f", r.Band.Support)},
			{"Resistance", fmt.Sprintf("%.2f", r.Band.Resistance)},
			{"", fmt.Sprintf("RSI: %.2f | MACD: %.2f | EMA20: %.2f | EMA50: %.2f", p.RSI, p.MACD, p.EMA20, p.EMA50)},
		},
	}
}
