package socketio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Engine.IO v4 packet types.
const (
	engineOpen    = '0'
	engineClose   = '1'
	enginePing    = '2'
	enginePong    = '3'
	engineMessage = '4'
)

// Socket.IO v5 packet types, carried inside Engine.IO message packets.
const (
	socketConnect      = '0'
	socketDisconnect   = '1'
	socketEvent        = '2'
	socketConnectError = '4'
)

var errMalformedPacket = errors.New("malformed socket.io packet")

type packetKind int

const (
	packetUnknown packetKind = iota
	packetOpen
	packetClose
	packetPing
	packetConnected
	packetConnectError
	packetDisconnect
	packetEvent
)

type packet struct {
	kind  packetKind
	event string
	data  json.RawMessage
}

var pongPacket = []byte{enginePong}

// socketPacket starts a Socket.IO packet of the given type. The main
// namespace "/" is implicit on the wire; any other is written as "/ns,".
func socketPacket(kind byte, namespace string) []byte {
	out := []byte{engineMessage, kind}
	if namespace != "" && namespace != "/" {
		out = append(out, namespace...)
		out = append(out, ',')
	}
	return out
}

func encodeEvent(namespace string, event string, payload any) ([]byte, error) {
	body, err := json.Marshal([]any{event, payload})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %q event: %w", event, err)
	}
	return append(socketPacket(socketEvent, namespace), body...), nil
}

func decodePacket(raw []byte) (packet, error) {
	if len(raw) == 0 {
		return packet{}, errMalformedPacket
	}

	switch raw[0] {
	case engineOpen:
		return packet{kind: packetOpen, data: json.RawMessage(raw[1:])}, nil
	case engineClose:
		return packet{kind: packetClose}, nil
	case enginePing:
		return packet{kind: packetPing}, nil
	case engineMessage:
	default:
		return packet{kind: packetUnknown}, nil
	}

	if len(raw) < 2 {
		return packet{}, errMalformedPacket
	}

	body := skipNamespace(string(raw[2:]))
	switch raw[1] {
	case socketConnect:
		return packet{kind: packetConnected, data: json.RawMessage(body)}, nil
	case socketConnectError:
		return packet{kind: packetConnectError, data: json.RawMessage(body)}, nil
	case socketDisconnect:
		return packet{kind: packetDisconnect}, nil
	case socketEvent:
		return decodeEvent(skipAckID(body))
	default:
		return packet{kind: packetUnknown}, nil
	}
}

func decodeEvent(body string) (packet, error) {
	var args []json.RawMessage
	if err := json.Unmarshal([]byte(body), &args); err != nil || len(args) == 0 {
		return packet{}, errMalformedPacket
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil || name == "" {
		return packet{}, errMalformedPacket
	}

	p := packet{kind: packetEvent, event: name}
	if len(args) > 1 {
		p.data = args[1]
	}
	return p, nil
}

// skipNamespace drops a leading "/ns," prefix.
func skipNamespace(body string) string {
	if !strings.HasPrefix(body, "/") {
		return body
	}
	if idx := strings.IndexByte(body, ','); idx >= 0 {
		return body[idx+1:]
	}
	return ""
}

func skipAckID(body string) string {
	i := 0
	for i < len(body) && body[i] >= '0' && body[i] <= '9' {
		i++
	}
	return body[i:]
}

type predictionMessage struct {
	Label *string  `json:"label"`
	Score *float64 `json:"score"`
}

func decodePrediction(data json.RawMessage) (string, float64, error) {
	if len(data) == 0 {
		return "", 0, errMalformedPacket
	}
	var msg predictionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", 0, fmt.Errorf("%w: %v", errMalformedPacket, err)
	}
	if msg.Label == nil || strings.TrimSpace(*msg.Label) == "" || msg.Score == nil {
		return "", 0, errMalformedPacket
	}
	return *msg.Label, *msg.Score, nil
}
