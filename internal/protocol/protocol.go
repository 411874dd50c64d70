package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeCmd     = "CMD"
	TypeRes     = "RES"
)

// Command ops carried by TypeCmd.
const (
	OpBlockAt   = "BLOCK_AT"
	OpPlace     = "PLACE"
	OpDig       = "DIG"
	OpMoveTo    = "MOVE_TO"
	OpInventory = "INVENTORY"
	OpEntities  = "ENTITIES"
	OpAgentPos  = "AGENT_POS"
	OpVitals    = "VITALS"
	OpWeather   = "WEATHER"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
