// Package hub fans websocket messages out to every connected client. One
// goroutine owns the client set; each client has its own writer.
package hub

// MessageType indicates the websocket message format
type MessageType int

const (
	// JSONMessage is a JSON-encoded text message
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data such as a JPEG capture
	BinaryMessage
)

// Message is one frame queued for broadcast.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps binary data.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}
