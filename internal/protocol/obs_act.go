package protocol

type ObsMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	FarmerID        string `json:"farmer_id"`

	Farm      FarmObs     `json:"farm"`
	Self      SelfObs     `json:"self"`
	Plots     []PlotObs   `json:"plots"`
	Inventory []ItemStack `json:"inventory"`
	Events    []Event     `json:"events"`
}

type FarmObs struct {
	Weather          string  `json:"weather"`
	GrowthRate       float64 `json:"growth_rate"`
	ProtectionActive bool    `json:"protection_active"`
}

type SelfObs struct {
	Name string `json:"name"`
}

// PlotObs is one grid cell. Sprite is the visual key a renderer collaborator
// should display for the plot's current state (stage sprite, or the crop's
// sick variant while infected).
type PlotObs struct {
	Pos       [2]int `json:"pos"`
	State     string `json:"state"`
	Crop      string `json:"crop,omitempty"`
	Stage     int    `json:"stage,omitempty"`
	Watered   bool   `json:"watered,omitempty"`
	Infected  bool   `json:"infected,omitempty"`
	Nourished bool   `json:"nourished,omitempty"`
	Sprite    string `json:"sprite,omitempty"`
}

type ItemStack struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

type Event map[string]interface{}

// ACT (client -> server)
type ActMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	FarmerID        string       `json:"farmer_id"`
	Instants        []InstantReq `json:"instants,omitempty"`
}

type InstantReq struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	Pos     *[2]int `json:"pos,omitempty"`
	CropID  string  `json:"crop_id,omitempty"`
	ItemID  string  `json:"item_id,omitempty"`
	Region  string  `json:"region,omitempty"`
	Seconds float64 `json:"seconds,omitempty"`
}
