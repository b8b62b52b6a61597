package alert

import (
	"encoding/json"

	"signalbot/internal/model"
	"signalbot/internal/signal"
)

// Notice is the wire form of a transition pushed to subscribers (redis
// pub/sub, WebSocket clients).
type Notice struct {
	Event
	Resolution  model.Resolution `json:"resolution"`
	Label       string           `json:"label"`
	Price       float64          `json:"price"`
	Explanation string           `json:"explanation"`
}

// NewNotice pairs an event with the classification that produced it.
func NewNotice(ev Event, r signal.Result) Notice {
	return Notice{
		Event:       ev,
		Resolution:  r.Resolution,
		Label:       ev.State.Label(),
		Price:       r.Price,
		Explanation: r.Explanation.String(),
	}
}

// JSON returns the JSON-encoded notice (ignoring errors: every field is
// always encodable).
func (n Notice) JSON() []byte {
	out, _ := json.Marshal(n)
	return out
}
