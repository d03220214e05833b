// Package transport defines the contract every transport adapter must
// satisfy to bind a connection into a communicator, plus the pieces shared
// by the concrete adapters: the framework control strings, a frame codec
// for byte-stream transports, and a symmetric in-process pair used by tests.
//
// An adapter supplies four things:
//
//   - a send hook (communicator.Sender) that serializes a record to the
//     transport's payload type and hands it off, synchronously;
//   - an inbound callback wired to ReplyData after decoding, delivering
//     records in receive order (malformed payloads are dropped here, never
//     forwarded);
//   - a close callback that calls Destruct exactly once, passing a
//     transport error for a non-clean close and nil for a clean one;
//   - a readiness delegate — the acceptor's Inspect for state-machine
//     transports, constant ready for the in-process pair.
package transport

// Control messages that are not Invoke records. They travel as raw strings
// (never JSON) so a decoder can recognize them before attempting to parse a
// record. The worker family uses both; adapters intercept them before the
// payload reaches ReplyData.
//
// READY handshake rule: upon receiving READY, echo READY back once. The
// initiator thereby observes that the peer has attached its message handler
// before any Invoke is sent. CLOSE triggers a local close on the receiver.
const (
	ControlReady = "READY"
	ControlClose = "CLOSE"
)

// Control classifies a payload as one of the framework control strings.
func Control(payload []byte) (string, bool) {
	switch string(payload) {
	case ControlReady:
		return ControlReady, true
	case ControlClose:
		return ControlClose, true
	}
	return "", false
}
