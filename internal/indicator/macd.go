package indicator

// MACD is EMA(fast) - EMA(slow) with a signal line EMA(signal) of the MACD
// line. The signal EMA starts receiving values once the slow EMA is ready,
// so with 12/26/9 the MACD line is defined from the 26th input and the
// signal line from the 34th.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA
	line   float64
}

// NewMACD creates a MACD with the given fast, slow and signal periods.
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fast:   NewEMA(fast),
		slow:   NewEMA(slow),
		signal: NewEMA(signal),
	}
}

func (m *MACD) Name() string {
	return "MACD_" + itoa(m.fast.period) + "_" + itoa(m.slow.period) + "_" + itoa(m.signal.period)
}

func (m *MACD) Update(price float64) {
	m.fast.Update(price)
	m.slow.Update(price)
	if !m.fast.Ready() || !m.slow.Ready() {
		return
	}
	m.line = m.fast.Value() - m.slow.Value()
	m.signal.Update(m.line)
}

// Value returns the MACD line.
func (m *MACD) Value() float64 { return m.line }

// Ready reports whether the MACD line is defined.
func (m *MACD) Ready() bool { return m.fast.Ready() && m.slow.Ready() }

// Signal returns the signal line value.
func (m *MACD) Signal() float64 { return m.signal.Value() }

// SignalReady reports whether the signal line is defined.
func (m *MACD) SignalReady() bool { return m.signal.Ready() }

// Histogram returns MACD - signal. Only meaningful when SignalReady.
func (m *MACD) Histogram() float64 { return m.line - m.signal.Value() }
