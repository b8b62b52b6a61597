// Package indicator provides technical indicator calculations over bar data.
//
// Every indicator is a streaming calculator: values are fed one at a time
// with Update and the current value is read with Value. Values are only
// meaningful once Ready reports true; Compute translates not-ready values
// into NaN so that a Series carries "undefined" explicitly.
package indicator

// Indicator is the interface for all streaming technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA_20", "EMA_50").
	Name() string

	// Update feeds the next value (normally a close price) and recalculates.
	Update(v float64)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}

// Standard parametrization used by the signal classifier.
const (
	RSIPeriod   = 14
	MACDFast    = 12
	MACDSlow    = 26
	MACDSignal  = 9
	FastEMA     = 20
	SlowEMA     = 50
	SMAPeriod   = 20
	LevelWindow = 20
)

func name(kind string, period int) string {
	return kind + "_" + itoa(period)
}

// itoa converts int to string without importing strconv.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	buf := [20]byte{}
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
