package node

import (
	"encoding/json"
	"fmt"

	"github.com/specialistvlad/telemetryhub/internal/telemetry"
)

const (
	msgConnected = "system.connected"
	msgInterval  = "system.interval"
)

// envelope is the part of every report needed to route it.
type envelope struct {
	Msg   string `json:"msg"`
	Chain string `json:"chain"`
}

// report is a decoded producer message. Exactly one of Details or Stats is
// set, matching Msg.
type report struct {
	Msg     string
	Chain   string
	Details *telemetry.NodeDetails
	Stats   *telemetry.NodeStats
}

// decodeReport parses one WebSocket frame. Unknown message kinds decode
// without error and with neither payload set.
func decodeReport(data []byte) (*report, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	r := &report{Msg: env.Msg, Chain: env.Chain}

	switch env.Msg {
	case msgConnected:
		if env.Chain == "" {
			return nil, fmt.Errorf("%s without chain", msgConnected)
		}
		var d telemetry.NodeDetails
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("failed to decode node details: %w", err)
		}
		r.Details = &d
	case msgInterval:
		var s telemetry.NodeStats
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to decode node stats: %w", err)
		}
		r.Stats = &s
	}
	return r, nil
}
