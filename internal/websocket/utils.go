package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Encode renders a server frame once so it can be fanned out to many clients.
func Encode(event Event, data any) ([]byte, error) {
	return json.Marshal(ResponseEnvelope{Event: event, Data: data})
}

// MustEncode is Encode for payloads that always marshal.
func MustEncode(event Event, data any) []byte {
	b, err := Encode(event, data)
	if err != nil {
		panic(err)
	}
	return b
}

// EncodeError renders an error frame.
func EncodeError(code, message string, fields map[string]string) []byte {
	return MustEncode(EventError, ErrorData{Code: code, Message: message, Fields: fields})
}

// WriteFrame sends a pre-encoded frame.
func WriteFrame(conn *websocket.Conn, frame []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// WritePing sends a keep-alive ping.
func WritePing(conn *websocket.Conn) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.PingMessage, nil)
}

// WriteClose sends a normal close frame.
func WriteClose(conn *websocket.Conn) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// PingPeriod is how often the write pump pings the peer.
func PingPeriod() time.Duration { return pingPeriod }

// PrepareRead sets the read limit and keeps extending the read deadline on pong.
func PrepareRead(conn *websocket.Conn, maxMessageBytes int64) {
	conn.SetReadLimit(maxMessageBytes)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// ErrMalformedFrame marks a frame that is not a valid envelope. The
// connection remains usable after it.
var ErrMalformedFrame = errors.New("malformed frame")

// ReadEnvelope reads the next client frame. The deadline is refreshed on every message.
func ReadEnvelope(conn *websocket.Conn) (RequestEnvelope, error) {
	var env RequestEnvelope
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return env, err
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	if err := json.Unmarshal(msg, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return env, nil
}

// DecodeData unmarshals an envelope's data into v. Missing data decodes as an empty object.
func DecodeData(env RequestEnvelope, v any) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(env.Data, v)
}
