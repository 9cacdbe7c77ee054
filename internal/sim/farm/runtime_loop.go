package farm

import (
	"context"
	"time"
)

func (f *Farm) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(f.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingActions []ActionEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []string
	var pendingWeather []string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.stop:
			return nil
		case req := <-f.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-f.leave:
			pendingLeaves = append(pendingLeaves, id)
		case kind := <-f.weatherSignal:
			pendingWeather = append(pendingWeather, kind)
		case resp := <-f.snapshotReq:
			f.handleSnapshotRequest(resp)
		case env := <-f.inbox:
			pendingActions = append(pendingActions, env)
		case <-ticker.C:
			f.stepInternal(pendingJoins, pendingLeaves, pendingActions, pendingWeather)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingActions = pendingActions[:0]
			pendingWeather = pendingWeather[:0]
		}
	}
}

func (f *Farm) Stop() { close(f.stop) }

// StepOnce advances the farm by a single tick using the same ordering
// semantics as the server loop. It is primarily intended for deterministic
// replays/tests.
func (f *Farm) StepOnce(joins []JoinRequest, leaves []string, actions []ActionEnvelope, weather []string) (tick uint64, digest string) {
	tick = f.tick.Load()
	f.stepInternal(joins, leaves, actions, weather)
	return tick, f.stateDigest(tick)
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
