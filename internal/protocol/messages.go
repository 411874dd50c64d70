package protocol

type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AgentName       string `json:"agent_name"`
}

type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AgentID         string `json:"agent_id"`
	WorldID         string `json:"world_id,omitempty"`
}

// CmdMsg is one sensing or actuation request. Exactly one command is
// outstanding per agent at a time; the server answers with a ResMsg
// carrying the same ID.
type CmdMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	Op              string `json:"op"`

	Pos       [3]int `json:"pos,omitempty"`
	BlockType string `json:"block_type,omitempty"`
	Ref       [3]int `json:"ref,omitempty"`
	Face      [3]int `json:"face,omitempty"`
	Radius    int    `json:"radius,omitempty"`
}

type ResMsg struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	OK   bool   `json:"ok"`
	Code string `json:"code,omitempty"` // error code when !OK

	Block    string       `json:"block,omitempty"`
	Pos      [3]int       `json:"pos,omitempty"`
	Items    []ItemStack  `json:"items,omitempty"`
	Entities []EntityInfo `json:"entities,omitempty"`
	Health   int          `json:"health,omitempty"`
	Food     int          `json:"food,omitempty"`
	Raining  bool         `json:"raining,omitempty"`
	TimeOfDay float64     `json:"time_of_day,omitempty"`
}

type ItemStack struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type EntityInfo struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
	Pos  [3]int `json:"pos"`
}
