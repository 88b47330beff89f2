package fleetws

import "fmt"

// MessageType mirrors the websocket opcodes the client cares about.
type MessageType byte

const (
	DataMessage   MessageType = 1
	BinaryMessage MessageType = 2
	CloseMessage  MessageType = 8
	PingMessage   MessageType = 9
	PongMessage   MessageType = 10
)

func (t MessageType) Is(other MessageType) bool {
	return t == other
}

// IsData reports whether t carries an application frame.
func (t MessageType) IsData() bool {
	return t.Is(DataMessage) || t.Is(BinaryMessage)
}

func (t MessageType) IsPing() bool {
	return t.Is(PingMessage)
}

func (t MessageType) IsClose() bool {
	return t.Is(CloseMessage)
}

func (t MessageType) String() string {
	switch t {
	case DataMessage:
		return "DATA"
	case BinaryMessage:
		return "BIN"
	case CloseMessage:
		return "CLOSE"
	case PingMessage:
		return "PING"
	case PongMessage:
		return "PONG"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(t))
	}
}

// Message is one frame travelling over a Connection.
type Message interface {
	Type() MessageType
	Data() []byte
	String() string
}

type message struct {
	MessageType MessageType
	MessageData []byte
}

func (m message) Type() MessageType {
	return m.MessageType
}

func (m message) Data() []byte {
	return m.MessageData
}

func (m message) String() string {
	return fmt.Sprintf("Message{type=%s,data=%s}", m.MessageType, m.MessageData)
}

type closeMessage struct {
	message
	Code int
}

func (m closeMessage) String() string {
	return fmt.Sprintf("Message{type=%s,code=%d,data=%s}",
		m.message.Type(), m.Code, m.message.Data())
}

func NewMessage(mt MessageType, data []byte) Message {
	return message{MessageType: mt, MessageData: data}
}

func NewDataMessage(data []byte) Message {
	return NewMessage(DataMessage, data)
}

func NewBinaryMessage(data []byte) Message {
	return NewMessage(BinaryMessage, data)
}

func NewPingMessage(data []byte) Message {
	return NewMessage(PingMessage, data)
}

func NewPongMessage(data []byte) Message {
	return NewMessage(PongMessage, data)
}

func NewCloseMessage(code int, data []byte) Message {
	return closeMessage{
		message: message{MessageType: CloseMessage, MessageData: data},
		Code:    code,
	}
}
