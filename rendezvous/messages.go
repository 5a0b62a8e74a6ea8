package rendezvous

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/opd-ai/rgbdstream/wire"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	typeAnswer = "answer"
	typePunch  = "punch"

	packageRegister = "register"

	// NoLocalIP is reported when the local address cannot be determined.
	NoLocalIP = "noLocalIP"
)

// Registration announces this endpoint to the matchmaking server.
type Registration struct {
	PackageType string `json:"packageType"`
	SocketID    string `json:"socketID"`
	IsSender    bool   `json:"isSender"`
	LocalIP     string `json:"localIP"`
	UID         string `json:"UID"`
}

// Message is any JSON message the client reacts to.
type Message struct {
	Type    string `json:"type"`
	Address string `json:"address,omitempty"`
	Port    int    `json:"port,omitempty"`
}

// encode marshals v behind the control prefix.
func encode(v interface{}) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, byte(wire.KindControl))
	return append(out, body...), nil
}

var punchMessage = mustEncode(Message{Type: typePunch})

func mustEncode(v interface{}) []byte {
	b, err := encode(v)
	if err != nil {
		panic(err)
	}
	return b
}
