package plugins

import (
	"context"
	"encoding/json"

	"github.com/gofiber/websocket/v2"
	"github.com/linht/radioconf/calc"
	"github.com/linht/radioconf/phy"
)

// TraceMessage is one frame of the calculation trace stream.
type TraceMessage struct {
	Type   string      `json:"type"` // step, result or error
	Step   *calc.Step  `json:"step,omitempty"`
	Result *phy.Result `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
	Status int         `json:"status,omitempty"`
}

// handleTrace serves GET /api/calculator/ws. Every text frame the client
// sends is a run request; the server answers with one frame per
// calculation step followed by the result or an error.
func (p *CalculatorPlugin) handleTrace(c *websocket.Conn) {
	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}

		var req phy.Request
		if err := json.Unmarshal(msg, &req); err != nil {
			if c.WriteJSON(TraceMessage{Type: "error", Error: "Invalid request: " + err.Error(), Status: 400}) != nil {
				return
			}
			continue
		}

		// A failed write ends the stream; the run itself keeps going so the
		// result still lands in the history.
		var writeErr error
		res, err := p.calculate(context.Background(), req, func(s calc.Step) {
			if writeErr == nil {
				writeErr = c.WriteJSON(TraceMessage{Type: "step", Step: &s})
			}
		})
		if writeErr != nil {
			return
		}
		if err != nil {
			writeErr = c.WriteJSON(TraceMessage{Type: "error", Error: err.Error(), Status: calcStatus(err)})
		} else {
			writeErr = c.WriteJSON(TraceMessage{Type: "result", Result: res})
		}
		if writeErr != nil {
			return
		}
	}
}
