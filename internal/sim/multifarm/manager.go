package multifarm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"plotland.farm/internal/sim/catalogs"
	"plotland.farm/internal/sim/farm"
)

// Manager owns a set of independent farms sharing one catalog set. Farms do
// not interact; the manager only creates, runs, and routes to them.
type Manager struct {
	cfg   Config
	farms map[string]*farm.Farm
	order []string
}

// New builds every configured farm from the base config. Per-farm overrides
// (seed offset, snapshot cadence) come from the farm's FarmSpec; everything
// else is the base.
func New(cfg Config, base farm.FarmConfig, cats *catalogs.Catalogs) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:   cfg,
		farms: map[string]*farm.Farm{},
	}
	for _, spec := range cfg.Farms {
		fc := base
		fc.ID = spec.ID
		fc.Seed = base.Seed + spec.SeedOffset
		if spec.SnapshotEveryTicks > 0 {
			fc.SnapshotEveryTicks = spec.SnapshotEveryTicks
		}
		f, err := farm.New(fc, cats)
		if err != nil {
			return nil, fmt.Errorf("farm %s: %w", spec.ID, err)
		}
		m.farms[spec.ID] = f
		m.order = append(m.order, spec.ID)
	}
	sort.Strings(m.order)
	return m, nil
}

func (m *Manager) Get(id string) (*farm.Farm, bool) {
	f, ok := m.farms[id]
	return f, ok
}

func (m *Manager) Default() *farm.Farm {
	return m.farms[m.cfg.DefaultFarmID]
}

func (m *Manager) DefaultID() string { return m.cfg.DefaultFarmID }

func (m *Manager) IDs() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Run drives every farm loop until ctx is done or one loop fails.
func (m *Manager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(m.farms))
	for _, id := range m.order {
		f := m.farms[id]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.Run(ctx); err != nil && err != context.Canceled {
				errCh <- err
				cancel()
			}
		}()
	}
	wg.Wait()
	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}

// Metrics aggregates the latest per-farm snapshots.
func (m *Manager) Metrics() map[string]farm.FarmMetrics {
	out := make(map[string]farm.FarmMetrics, len(m.farms))
	for id, f := range m.farms {
		out[id] = f.Metrics()
	}
	return out
}
