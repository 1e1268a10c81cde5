package pendingpool

import (
	"github.com/jet-cloud/constellation/domain/consensus/model"
	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
)

type observationPool struct {
	engine *engine
}

// NewObservationPool returns C3, the pending observation pool. Unlike C2 it
// carries no ordinal/chain constraint (spec.md §4.2), so groups are
// keyed by observer and never rejected by pull.
func NewObservationPool() model.PendingObservationPool {
	return &observationPool{engine: newEngine(false, nil)}
}

// Put implements model.PendingObservationPool.
func (p *observationPool) Put(data *externalapi.ObservationCacheData) {
	obs := data.Observation
	ordinal := uint64(0)
	if obs.EpochSeconds > 0 {
		ordinal = uint64(obs.EpochSeconds)
	}
	payload := &externalapi.ObservationCacheData{Observation: obs, Status: data.Status}
	p.engine.put(obs.Hash, obs.ObserverId.String(), ordinal, 0, payload)
}

// Lookup implements model.PendingObservationPool.
func (p *observationPool) Lookup(hash externalapi.Hash) (*externalapi.ObservationCacheData, bool) {
	raw, ok := p.engine.lookup(hash)
	if !ok {
		return nil, false
	}
	return raw.(*externalapi.ObservationCacheData), true
}

// Contains implements model.PendingObservationPool.
func (p *observationPool) Contains(hash externalapi.Hash) bool {
	return p.engine.contains(hash)
}

// PullForConsensus implements model.PendingObservationPool.
func (p *observationPool) PullForConsensus(maxCount int) []*externalapi.Observation {
	raw := p.engine.pull(maxCount)
	obs := make([]*externalapi.Observation, len(raw))
	for i, r := range raw {
		obs[i] = r.(*externalapi.ObservationCacheData).Observation
	}
	return obs
}

// Remove implements model.PendingObservationPool.
func (p *observationPool) Remove(hashes []externalapi.Hash) {
	p.engine.remove(toRawHashes(hashes))
}
