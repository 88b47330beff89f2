package fleetws

// PassiveKeepAliveHandler answers control frames received on conn.
type PassiveKeepAliveHandler func(conn Connection, m Message)

// KeepAliveHandlerReplyPingWithPong echoes every ping payload back as a pong.
func KeepAliveHandlerReplyPingWithPong(conn Connection, m Message) {
	if m.Type().IsPing() {
		_ = conn.Write(NewPongMessage(m.Data()))
	}
}
