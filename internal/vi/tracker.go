package vi

import (
	"sync"
	"sync/atomic"

	"main/internal/model"
	"main/internal/model/enum"

	"github.com/yanun0323/logs"
)

const trackerShards = 32

// Tracker owns the current VI status per instrument and validates
// transition legality. Reports for the same instrument must arrive in
// feed order; different instruments may update concurrently.
type Tracker struct {
	shards [trackerShards]trackerShard
	nextID atomic.Uint64
}

type trackerShard struct {
	mu     sync.Mutex
	status map[model.Instrument]enum.ViStatus
}

func NewTracker() *Tracker {
	t := &Tracker{}
	for i := range t.shards {
		t.shards[i].status = make(map[model.Instrument]enum.ViStatus)
	}
	return t
}

func (t *Tracker) shard(inst model.Instrument) *trackerShard {
	return &t.shards[hashInstrument(inst)%trackerShards]
}

// OnStatusReport applies a raw status report. It returns the transition
// and true when the report changes the stored status legally. Duplicate
// and illegal reports are dropped with a diagnostic; the feed re-sends
// statuses, so neither is an error.
func (t *Tracker) OnStatusReport(report model.ViReport) (model.ViTransition, bool) {
	if !report.Status.IsAvailable() {
		logs.Debugf("vi: drop report with unknown status, instrument: %s", report.Instrument)
		return model.ViTransition{}, false
	}

	s := t.shard(report.Instrument)
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.status[report.Instrument]
	if !ok {
		current = enum.ViStatusNormal
	}

	if current == report.Status {
		logs.Debugf("vi: duplicate status %s, instrument: %s", report.Status, report.Instrument)
		return model.ViTransition{}, false
	}

	if !legalTransition(current, report.Status) {
		logs.Debugf("vi: illegal transition %s -> %s, instrument: %s",
			current, report.Status, report.Instrument)
		return model.ViTransition{}, false
	}

	s.status[report.Instrument] = report.Status
	return model.ViTransition{
		ID:           t.nextID.Add(1),
		Instrument:   report.Instrument,
		From:         current,
		To:           report.Status,
		TriggerPrice: report.TriggerPrice,
		EventTsNano:  report.EventTsNano,
	}, true
}

// Normalize returns a deactivated instrument to Normal after the
// post-release cooldown. No-op for any other stored status.
func (t *Tracker) Normalize(inst model.Instrument, tsNano int64) (model.ViTransition, bool) {
	s := t.shard(inst)
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.status[inst]
	if !ok || current != enum.ViStatusDeactivated {
		return model.ViTransition{}, false
	}

	s.status[inst] = enum.ViStatusNormal
	return model.ViTransition{
		ID:          t.nextID.Add(1),
		Instrument:  inst,
		From:        enum.ViStatusDeactivated,
		To:          enum.ViStatusNormal,
		EventTsNano: tsNano,
	}, true
}

// Status returns the stored status, defaulting to Normal.
func (t *Tracker) Status(inst model.Instrument) enum.ViStatus {
	s := t.shard(inst)
	s.mu.Lock()
	defer s.mu.Unlock()
	if status, ok := s.status[inst]; ok {
		return status
	}
	return enum.ViStatusNormal
}

// ActiveCount returns the number of instruments inside an interruption.
func (t *Tracker) ActiveCount() int {
	count := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for _, status := range s.status {
			if status.IsActivated() {
				count++
			}
		}
		s.mu.Unlock()
	}
	return count
}

// legalTransition encodes the VI state machine:
// Normal -> StaticActivated, activated states move between each other,
// any activated state -> Deactivated, Deactivated -> Normal.
// Deactivated never follows Normal directly.
func legalTransition(from, to enum.ViStatus) bool {
	switch {
	case from == enum.ViStatusNormal:
		return to == enum.ViStatusStaticActivated
	case from.IsActivated():
		return to.IsActivated() || to == enum.ViStatusDeactivated
	case from == enum.ViStatusDeactivated:
		return to == enum.ViStatusNormal
	default:
		return false
	}
}

func hashInstrument(inst model.Instrument) uint32 {
	const offset32 = 2166136261
	const prime32 = 16777619
	var hash uint32 = offset32
	for i := 0; i < len(inst); i++ {
		hash ^= uint32(inst[i])
		hash *= prime32
	}
	return hash
}
