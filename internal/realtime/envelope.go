package realtime

import "encoding/json"

// request is the inbound RPC envelope. An ID of zero marks a notification
// that expects no response.
type request struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data"`
}

// response carries an RPC result back to the caller. Result marshals to
// null when the operation was rejected.
type response struct {
	ID     uint64 `json:"id"`
	Result any    `json:"result"`
}

// event is the outbound broadcast envelope.
type event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}
