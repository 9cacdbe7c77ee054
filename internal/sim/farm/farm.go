package farm

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"sync/atomic"

	"plotland.farm/internal/persistence/snapshot"
	"plotland.farm/internal/protocol"
	"plotland.farm/internal/sim/catalogs"
)

type JoinRequest struct {
	Name string
	Out  chan []byte
	Resp chan JoinResponse
}

type JoinResponse struct {
	Welcome  protocol.WelcomeMsg
	Catalogs []protocol.CatalogMsg
}

type ActionEnvelope struct {
	FarmerID string
	Act      protocol.ActMsg
}

type RecordedJoin struct {
	FarmerID string `json:"farmer_id"`
	Name     string `json:"name"`
}

type RecordedAction struct {
	FarmerID string          `json:"farmer_id"`
	Act      protocol.ActMsg `json:"act"`
}

// Farm is a single-threaded authoritative simulation.
// All state must be accessed only from the farm loop goroutine.
type Farm struct {
	cfg      FarmConfig
	catalogs *catalogs.Catalogs

	tick atomic.Uint64

	// The grid index: exclusive owner of every plot record.
	plots   map[Coord]*Plot
	regions map[string][]Coord

	farmers map[string]*Farmer
	clients map[string]*clientState

	rngSrc *rand.PCG
	rng    *rand.Rand

	// Farm-wide state.
	protectionActive bool
	growthRate       float64 // growth rate modifier, 1.0 unless frost-throttled
	weather          string  // "CLEAR" or "FROST"

	inbox         chan ActionEnvelope
	join          chan JoinRequest
	leave         chan string
	weatherSignal chan string
	stop          chan struct{}

	snapshotSink chan<- snapshot.SnapshotV1
	snapshotReq  chan chan snapshotResp

	nextFarmerNum atomic.Uint64

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	tickLogger  TickLogger
	auditLogger AuditLogger

	// Per-tick plot audit buffer, drained into the tick log entry.
	auditsThisTick []AuditEntry

	// curActor attributes plot audits to the farmer/system driving the
	// current mutation; set around dispatch, never read outside auditPlot.
	curActor string

	// metrics holds a FarmMetrics snapshot, published once per tick.
	metrics atomic.Value
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type TickLogEntry struct {
	Tick    uint64           `json:"tick"`
	Joins   []RecordedJoin   `json:"joins,omitempty"`
	Leaves  []string         `json:"leaves,omitempty"`
	Actions []RecordedAction `json:"actions,omitempty"`
	Weather []string         `json:"weather,omitempty"`
	Audits  []AuditEntry     `json:"audits,omitempty"`
	Digest  string           `json:"digest"`
}

type AuditEntry struct {
	Tick   uint64 `json:"tick"`
	Actor  string `json:"actor"` // farmer id, or "WEATHER"/"GROWTH"
	Action string `json:"action"`
	Pos    [2]int `json:"pos"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

type clientState struct {
	Out chan []byte
}

func New(cfg FarmConfig, cats *catalogs.Catalogs) (*Farm, error) {
	cfg.applyDefaults()
	if cats == nil {
		return nil, fmt.Errorf("nil catalogs")
	}

	rngSrc := seededPCG(cfg.Seed)
	f := &Farm{
		cfg:           cfg,
		catalogs:      cats,
		plots:         map[Coord]*Plot{},
		regions:       map[string][]Coord{},
		farmers:       map[string]*Farmer{},
		clients:       map[string]*clientState{},
		rngSrc:        rngSrc,
		rng:           rand.New(rngSrc),
		growthRate:    1.0,
		weather:       "CLEAR",
		inbox:         make(chan ActionEnvelope, 1024),
		join:          make(chan JoinRequest, 64),
		leave:         make(chan string, 64),
		weatherSignal: make(chan string, 16),
		stop:          make(chan struct{}),
		snapshotReq:   make(chan chan snapshotResp, 4),
	}
	f.seedGrid()
	return f, nil
}

// seedGrid creates one plot record per layout cell. Later layout entries win
// on overlap so a layout can carve regions out of a larger field.
func (f *Farm) seedGrid() {
	for _, pr := range f.catalogs.Layout.Plots {
		state := PlotLocked
		switch pr.State {
		case "EMPTY":
			state = PlotEmpty
		case "TILLED":
			state = PlotTilled
		}
		for _, c := range rectCoords(pr.Rect) {
			p, ok := f.plots[c]
			if !ok {
				p = &Plot{NourishMult: 1.0}
				f.plots[c] = p
			}
			p.State = state
		}
	}
	for id, r := range f.catalogs.Layout.Regions {
		cs := rectCoords(r)
		sortCoords(cs)
		f.regions[id] = cs
	}
}

func (f *Farm) SetTickLogger(l TickLogger)   { f.tickLogger = l }
func (f *Farm) SetAuditLogger(l AuditLogger) { f.auditLogger = l }

func (f *Farm) Inbox() chan<- ActionEnvelope { return f.inbox }
func (f *Farm) Join() chan<- JoinRequest     { return f.join }
func (f *Farm) Leave() chan<- string         { return f.leave }
func (f *Farm) WeatherSignal() chan<- string { return f.weatherSignal }

func (f *Farm) CurrentTick() uint64 { return f.tick.Load() }

func (f *Farm) ID() string {
	if f == nil {
		return ""
	}
	return f.cfg.ID
}

func (f *Farm) TickRateHz() int {
	if f == nil {
		return 0
	}
	return f.cfg.TickRateHz
}

// plotAt returns nil for cells absent from the grid; absent cells are never
// actionable.
func (f *Farm) plotAt(c Coord) *Plot { return f.plots[c] }

func (f *Farm) Contains(c Coord) bool {
	_, ok := f.plots[c]
	return ok
}

// PlotCount reports grid size; used by the admin surface and tests.
func (f *Farm) PlotCount() int { return len(f.plots) }

func (f *Farm) sortedPlotCoords() []Coord {
	cs := make([]Coord, 0, len(f.plots))
	for c := range f.plots {
		cs = append(cs, c)
	}
	sortCoords(cs)
	return cs
}

func (f *Farm) sortedFarmers() []*Farmer {
	ids := make([]string, 0, len(f.farmers))
	for id := range f.farmers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*Farmer, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.farmers[id])
	}
	return out
}

func (f *Farm) joinFarmer(name string, out chan []byte) JoinResponse {
	if name == "" {
		name = "farmer"
	}

	idNum := f.nextFarmerNum.Add(1)
	farmerID := fmt.Sprintf("F%d", idNum)

	fr := &Farmer{ID: farmerID, Name: name}
	fr.initDefaults(f.cfg.StarterItems)

	f.farmers[farmerID] = fr
	if out != nil {
		f.clients[farmerID] = &clientState{Out: out}
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		FarmerID:        farmerID,
		FarmParams: protocol.FarmParams{
			FarmID:          f.cfg.ID,
			TickRateHz:      f.cfg.TickRateHz,
			GrowthTimeScale: f.cfg.GrowthTimeScale,
			Seed:            f.cfg.Seed,
		},
		Catalogs: protocol.CatalogDigests{
			CropPalette: protocol.DigestRef{
				Digest: f.catalogs.Crops.PaletteDigest,
				Count:  len(f.catalogs.Crops.Palette),
			},
			LayoutDigest: f.catalogs.Layout.Digest,
			TuningDigest: f.cfg.TuningDigest,
		},
	}

	cropDefs := make([]catalogs.CropDef, 0, len(f.catalogs.Crops.Palette))
	for _, id := range f.catalogs.Crops.Palette {
		cropDefs = append(cropDefs, f.catalogs.Crops.Defs[id])
	}
	cats := []protocol.CatalogMsg{{
		Type:            protocol.TypeCatalog,
		ProtocolVersion: protocol.Version,
		Name:            "crops",
		Digest:          f.catalogs.Crops.DefsDigest,
		Data:            cropDefs,
	}}

	return JoinResponse{Welcome: welcome, Catalogs: cats}
}

func (f *Farm) handleLeave(farmerID string) {
	delete(f.clients, farmerID)
}

// broadcast delivers a farm-wide event to every farmer.
func (f *Farm) broadcast(ev protocol.Event) {
	for _, fr := range f.sortedFarmers() {
		fr.AddEvent(ev)
	}
}

func (f *Farm) auditPlot(action string, c Coord, from, to PlotState, reason string) {
	entry := AuditEntry{
		Tick:   f.tick.Load(),
		Actor:  f.curActor,
		Action: action,
		Pos:    c.ToArray(),
		From:   from.String(),
		To:     to.String(),
		Reason: reason,
	}
	f.auditsThisTick = append(f.auditsThisTick, entry)
	if f.auditLogger != nil {
		_ = f.auditLogger.WriteAudit(entry)
	}
}
