package protocol

import "encoding/json"

// Version is the wire protocol version. HELLO and ACT messages carrying a
// different version are rejected.
const Version = "1.0"

const (
	TypeHello   = "HELLO"   // client -> server, once, first message
	TypeWelcome = "WELCOME" // server -> client, handshake reply
	TypeCatalog = "CATALOG" // server -> client, after WELCOME
	TypeObs     = "OBS"     // server -> client, per tick
	TypeAct     = "ACT"     // client -> server
)

// BaseMessage is the routing envelope every message shares.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

// DecodeBase peeks at a raw message's type and version without decoding
// the full payload.
func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	FarmerName      string            `json:"farmer_name"`
	Capabilities    HelloCapabilities `json:"capabilities,omitempty"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	FarmerID        string         `json:"farmer_id"`
	FarmParams      FarmParams     `json:"farm_params"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type FarmParams struct {
	FarmID          string  `json:"farm_id"`
	TickRateHz      int     `json:"tick_rate_hz"`
	GrowthTimeScale float64 `json:"growth_time_scale"`
	Seed            int64   `json:"seed"`
}

type CatalogDigests struct {
	CropPalette  DigestRef `json:"crop_palette"`
	LayoutDigest string    `json:"layout_digest"`
	TuningDigest string    `json:"tuning_digest,omitempty"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// CATALOG (server -> client): one catalog per message.
type CatalogMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Name            string      `json:"name"` // e.g. "crops"
	Digest          string      `json:"digest"`
	Data            interface{} `json:"data"`
}
