// Package report renders classifications into the operator-facing texts:
// the periodic full report and the transition alert.
package report

import (
	"strings"

	"signalbot/internal/model"
	"signalbot/internal/signal"
)

const (
	reportHeader = "📊 Full analysis report:"
	newsHeader   = "📰 Key news:"
	ideasHeader  = "💡 Analyst ideas:"
	alertHeader  = "⏰ New signal alert!"
)

// Title names a message about one instrument, e.g. "BTC/USDT (1h)".
func Title(symbol string, res model.Resolution) string {
	return symbol + " (" + string(res) + ")"
}

// ReportTitle names the periodic report message.
func ReportTitle(res model.Resolution) string {
	return Title("Full report", res)
}

// Block renders one classification as "SYMBOL: Label" followed by the
// explanation lines.
func Block(r signal.Result) string {
	return r.Symbol + ": " + r.State.Label() + "\n" + r.Explanation.String()
}

// FailureLine is the placeholder for an instrument that could not be
// evaluated.
func FailureLine(symbol string) string {
	return symbol + ": error retrieving data"
}

// Alert renders a transition notification.
func Alert(r signal.Result) string {
	return alertHeader + "\n" + Title(r.Symbol, r.Resolution) + ": " + r.State.Label() + "\n" + r.Explanation.String()
}

// Builder accumulates per-instrument entries in evaluation order.
type Builder struct {
	entries []string
}

// AddResult appends a successful evaluation.
func (b *Builder) AddResult(r signal.Result) { b.entries = append(b.entries, Block(r)) }

// AddFailure appends the placeholder for symbol.
func (b *Builder) AddFailure(symbol string) { b.entries = append(b.entries, FailureLine(symbol)) }

// Len returns the number of entries added.
func (b *Builder) Len() int { return len(b.entries) }

// String renders the full report with the news and ideas sections.
func (b *Builder) String(news, ideas string) string {
	var sb strings.Builder
	sb.WriteString(reportHeader)
	sb.WriteString("\n\n")
	sb.WriteString(strings.Join(b.entries, "\n\n"))
	sb.WriteString("\n\n")
	sb.WriteString(newsHeader)
	sb.WriteString("\n")
	sb.WriteString(news)
	sb.WriteString("\n\n")
	sb.WriteString(ideasHeader)
	sb.WriteString("\n")
	sb.WriteString(ideas)
	return sb.String()
}
