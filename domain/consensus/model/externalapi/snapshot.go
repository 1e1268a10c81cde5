package externalapi

// ActiveNodes is the active-pool membership carried by a snapshot: the
// full-node facilitators plus the lighter-weight observer set.
type ActiveNodes struct {
	Full  IdSet
	Light IdSet
}

// Clone returns a deep copy.
func (n ActiveNodes) Clone() ActiveNodes {
	return ActiveNodes{Full: n.Full.Clone(), Light: n.Light.Clone()}
}

// Snapshot is a periodic signed summary of an interval of accepted
// checkpoint blocks. Snapshots form a hash chain through LastSnapshot.
// NextActiveNodes is recomputed from top-K public reputation every
// activePeersRotationInterval intervals; otherwise it is carried forward
// unchanged from the previous snapshot.
type Snapshot struct {
	LastSnapshot      Hash
	CheckpointBlocks  []Hash
	PublicReputation  map[string]float64
	NextActiveNodes   ActiveNodes

	Hash Hash
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	clone := &Snapshot{LastSnapshot: s.LastSnapshot, Hash: s.Hash, NextActiveNodes: s.NextActiveNodes.Clone()}
	clone.CheckpointBlocks = make([]Hash, len(s.CheckpointBlocks))
	copy(clone.CheckpointBlocks, s.CheckpointBlocks)
	clone.PublicReputation = make(map[string]float64, len(s.PublicReputation))
	for id, rep := range s.PublicReputation {
		clone.PublicReputation[id] = rep
	}
	return clone
}

// StoredSnapshot is the self-contained persisted form of a snapshot: the
// snapshot header plus every checkpoint block it sealed.
type StoredSnapshot struct {
	Snapshot         *Snapshot
	CheckpointCaches []*CheckpointCache
}

// Clone returns a deep copy.
func (s *StoredSnapshot) Clone() *StoredSnapshot {
	if s == nil {
		return nil
	}
	clone := &StoredSnapshot{Snapshot: s.Snapshot.Clone()}
	clone.CheckpointCaches = make([]*CheckpointCache, len(s.CheckpointCaches))
	for i, c := range s.CheckpointCaches {
		clone.CheckpointCaches[i] = c.Clone()
	}
	return clone
}

// TipData is the bookkeeping the tip service keeps per accepted block that
// remains eligible to be referenced as a parent.
type TipData struct {
	SoeHash  Hash
	NumUses  int
	Peers    IdSet
}

// Clone returns a deep copy.
func (t *TipData) Clone() *TipData {
	if t == nil {
		return nil
	}
	return &TipData{SoeHash: t.SoeHash, NumUses: t.NumUses, Peers: t.Peers.Clone()}
}

// AddressCache is the balance bookkeeping for one address as of a
// snapshot.
type AddressCache struct {
	Balance uint64
}

// ActiveBetweenHeights tracks the height window across which this node has
// been continuously active in the facilitator pool, used by the snapshot
// precondition checks.
type ActiveBetweenHeights struct {
	Joined Height
	Left   Height
}

// SnapshotInfo is the full resumable node state: the last stored snapshot,
// every checkpoint block accepted since it, bookkeeping for height/hash
// resolution, address balances, tips, and per-sender last-accepted
// transaction references.
type SnapshotInfo struct {
	Snapshot                *StoredSnapshot
	AcceptedCbSinceSnapshot []Hash
	LastSnapshotHeight      Height
	SnapshotHashes          []Hash
	AddressCacheData        map[Address]*AddressCache
	Tips                    map[Hash]*TipData
	LastAcceptedTxRef       map[Address]TxRef
}

// Clone returns a deep copy.
func (info *SnapshotInfo) Clone() *SnapshotInfo {
	if info == nil {
		return nil
	}
	clone := &SnapshotInfo{
		Snapshot:           info.Snapshot.Clone(),
		LastSnapshotHeight: info.LastSnapshotHeight,
	}
	clone.AcceptedCbSinceSnapshot = make([]Hash, len(info.AcceptedCbSinceSnapshot))
	copy(clone.AcceptedCbSinceSnapshot, info.AcceptedCbSinceSnapshot)
	clone.SnapshotHashes = make([]Hash, len(info.SnapshotHashes))
	copy(clone.SnapshotHashes, info.SnapshotHashes)
	clone.AddressCacheData = make(map[Address]*AddressCache, len(info.AddressCacheData))
	for addr, cache := range info.AddressCacheData {
		cacheCopy := *cache
		clone.AddressCacheData[addr] = &cacheCopy
	}
	clone.Tips = make(map[Hash]*TipData, len(info.Tips))
	for h, tip := range info.Tips {
		clone.Tips[h] = tip.Clone()
	}
	clone.LastAcceptedTxRef = make(map[Address]TxRef, len(info.LastAcceptedTxRef))
	for addr, ref := range info.LastAcceptedTxRef {
		clone.LastAcceptedTxRef[addr] = ref
	}
	return clone
}
