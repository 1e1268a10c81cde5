package checkpointstore

import (
	"sort"
	"sync"

	"github.com/jet-cloud/constellation/domain/consensus/model"
	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
)

// TipSet is §4.4, the Tip Service: a bounded set of accepted blocks
// eligible to be referenced as parents by new blocks. Kept in this
// package rather than split out on its own, mirroring how the teacher
// keeps tip/virtual bookkeeping inside domain/blockdag alongside block
// storage.
type TipSet struct {
	mu    sync.Mutex
	tips  map[externalapi.Hash]*externalapi.TipData
	store *Store

	maxTips         int
	maxTipUsage     int
	minFacilitators int
}

// NewTipSet returns an empty TipSet backed by store for usage counters and
// height lookups.
func NewTipSet(store *Store, maxTips, maxTipUsage, minFacilitators int) *TipSet {
	return &TipSet{
		tips:            make(map[externalapi.Hash]*externalapi.TipData),
		store:           store,
		maxTips:         maxTips,
		maxTipUsage:     maxTipUsage,
		minFacilitators: minFacilitators,
	}
}

// Update implements model.TipService.
func (t *TipSet) Update(block *externalapi.CheckpointBlock) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero externalapi.Hash
	seenParents := make(map[externalapi.Hash]struct{}, 2)
	for _, parent := range block.Parents {
		if parent.SoeHash.Equal(&zero) {
			continue
		}
		if _, dup := seenParents[parent.SoeHash]; dup {
			continue
		}
		seenParents[parent.SoeHash] = struct{}{}

		t.store.RegisterUsage(parent.SoeHash)
		uses := t.store.UsageCount(parent.SoeHash)
		if uses >= t.maxTipUsage {
			delete(t.tips, parent.SoeHash)
		} else if tip, ok := t.tips[parent.SoeHash]; ok {
			tip.NumUses = uses
		}
	}

	if len(t.tips) < t.maxTips {
		t.tips[block.SoeHash] = &externalapi.TipData{
			SoeHash: block.SoeHash,
			NumUses: 0,
			Peers:   block.SignerIds(),
		}
	}
}

// Pull implements model.TipService.
func (t *TipSet) Pull(readyFacilitators externalapi.IdSet) (tipsSoe [2]externalapi.ParentReference, peers externalapi.IdSet, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	hashes := make([]externalapi.Hash, 0, len(t.tips))
	for h := range t.tips {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool {
		return lessHash(hashes[i], hashes[j])
	})

	for i := 0; i < len(hashes); i++ {
		for j := i; j < len(hashes); j++ {
			tipA := t.tips[hashes[i]]
			tipB := t.tips[hashes[j]]

			covering := make(externalapi.IdSet)
			for _, id := range tipA.Peers.Slice() {
				if readyFacilitators.Contains(id) {
					covering.Add(id)
				}
			}
			for _, id := range tipB.Peers.Slice() {
				if readyFacilitators.Contains(id) {
					covering.Add(id)
				}
			}
			if covering.Len() < t.minFacilitators {
				continue
			}

			cacheA, foundA := t.store.Lookup(tipA.SoeHash)
			cacheB, foundB := t.store.Lookup(tipB.SoeHash)
			if !foundA || !foundB {
				continue
			}
			return [2]externalapi.ParentReference{
				{SoeHash: tipA.SoeHash, BaseHash: cacheA.Block.BaseHash},
				{SoeHash: tipB.SoeHash, BaseHash: cacheB.Block.BaseHash},
			}, covering, true
		}
	}
	return [2]externalapi.ParentReference{}, nil, false
}

// Tips implements model.TipService.
func (t *TipSet) Tips() []*externalapi.TipData {
	t.mu.Lock()
	defer t.mu.Unlock()

	tips := make([]*externalapi.TipData, 0, len(t.tips))
	for _, tip := range t.tips {
		tips = append(tips, tip.Clone())
	}
	return tips
}

// MinTipHeight implements model.TipService.
func (t *TipSet) MinTipHeight(store model.CheckpointStore) (externalapi.Height, bool) {
	t.mu.Lock()
	hashes := make([]externalapi.Hash, 0, len(t.tips))
	for h := range t.tips {
		hashes = append(hashes, h)
	}
	t.mu.Unlock()

	if len(hashes) == 0 {
		return 0, false
	}

	var min externalapi.Height
	first := true
	for _, h := range hashes {
		cache, ok := store.Lookup(h)
		if !ok {
			continue
		}
		if first || cache.Height < min {
			min = cache.Height
			first = false
		}
	}
	return min, !first
}

func lessHash(a, b externalapi.Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

var _ model.TipService = (*TipSet)(nil)
