package externalapi

// ParentReference is a reference to a parent checkpoint block by both its
// soe hash (including signers) and its base hash (content only).
type ParentReference struct {
	SoeHash  Hash
	BaseHash Hash
}

// Equal returns whether ref equals other.
func (ref ParentReference) Equal(other ParentReference) bool {
	return ref.SoeHash.Equal(&other.SoeHash) && ref.BaseHash.Equal(&other.BaseHash)
}

// HashSignature is a signature over a checkpoint block's base hash by one of
// its signers.
type HashSignature struct {
	SignerId  *Id
	Signature []byte
}

// Clone returns a deep copy.
func (sig *HashSignature) Clone() *HashSignature {
	if sig == nil {
		return nil
	}
	return &HashSignature{SignerId: sig.SignerId.Clone(), Signature: cloneBytes(sig.Signature)}
}

// Height is the DAG height of a checkpoint block: 1 + max(parent heights).
// The genesis block (no parents) has height 0.
type Height uint64

// CheckpointBlock is a signed DAG node: an ordered set of transactions and
// observations, two parent references, and the set of facilitator
// signatures that witnessed it.
//
// BaseHash hashes the content excluding signatures; SoeHash ("signed
// observation edge" hash) hashes the content including the signer set, so
// two blocks with identical content but different signer unions compare
// equal by BaseHash and differ by SoeHash. Height is a pure function of the
// two parents' heights and is only knowable once both parents are resolved.
type CheckpointBlock struct {
	Transactions  []*Transaction
	Parents       [2]ParentReference
	Observations  []*Observation
	Messages      [][]byte
	Notifications [][]byte
	Signatures    []*HashSignature

	BaseHash Hash
	SoeHash  Hash
}

// Clone returns a deep copy of the block.
func (block *CheckpointBlock) Clone() *CheckpointBlock {
	if block == nil {
		return nil
	}
	clone := &CheckpointBlock{
		Parents:  block.Parents,
		BaseHash: block.BaseHash,
		SoeHash:  block.SoeHash,
	}
	clone.Transactions = make([]*Transaction, len(block.Transactions))
	for i, tx := range block.Transactions {
		clone.Transactions[i] = tx.Clone()
	}
	clone.Observations = make([]*Observation, len(block.Observations))
	for i, obs := range block.Observations {
		clone.Observations[i] = obs.Clone()
	}
	clone.Messages = make([][]byte, len(block.Messages))
	for i, m := range block.Messages {
		clone.Messages[i] = cloneBytes(m)
	}
	clone.Notifications = make([][]byte, len(block.Notifications))
	for i, n := range block.Notifications {
		clone.Notifications[i] = cloneBytes(n)
	}
	clone.Signatures = make([]*HashSignature, len(block.Signatures))
	for i, sig := range block.Signatures {
		clone.Signatures[i] = sig.Clone()
	}
	return clone
}

// IsGenesis reports whether the block has no parents, i.e. it is the DAG
// root.
func (block *CheckpointBlock) IsGenesis() bool {
	var zero Hash
	return block.Parents[0].SoeHash.Equal(&zero) && block.Parents[1].SoeHash.Equal(&zero)
}

// TransactionHashes returns the hashes of the block's transactions, in
// order.
func (block *CheckpointBlock) TransactionHashes() []*Hash {
	hashes := make([]*Hash, len(block.Transactions))
	for i, tx := range block.Transactions {
		h := tx.Hash
		hashes[i] = &h
	}
	return hashes
}

// SignerIds returns the set of ids that have signed this block.
func (block *CheckpointBlock) SignerIds() IdSet {
	set := make(IdSet, len(block.Signatures))
	for _, sig := range block.Signatures {
		set.Add(sig.SignerId)
	}
	return set
}

// CheckpointCache is the persisted, in-DAG wrapper around an accepted
// checkpoint block: the block itself, its computed height, and the set of
// children hashes that reference it as a parent. Once persisted, Block is
// immutable; Children only ever grows.
type CheckpointCache struct {
	Block    *CheckpointBlock
	Height   Height
	Children HashSet
}

// Clone returns a deep copy of the cache entry.
func (cache *CheckpointCache) Clone() *CheckpointCache {
	if cache == nil {
		return nil
	}
	return &CheckpointCache{
		Block:    cache.Block.Clone(),
		Height:   cache.Height,
		Children: cache.Children.Clone(),
	}
}

// HashSet is a set of hashes keyed by the Hash value itself.
type HashSet map[Hash]struct{}

// NewHashSet builds a HashSet from the given hashes.
func NewHashSet(hashes ...Hash) HashSet {
	set := make(HashSet, len(hashes))
	for _, h := range hashes {
		set[h] = struct{}{}
	}
	return set
}

// Add inserts hash into the set.
func (set HashSet) Add(hash Hash) {
	set[hash] = struct{}{}
}

// Contains reports whether hash is a member.
func (set HashSet) Contains(hash Hash) bool {
	_, ok := set[hash]
	return ok
}

// Clone returns a copy of the set.
func (set HashSet) Clone() HashSet {
	clone := make(HashSet, len(set))
	for h := range set {
		clone[h] = struct{}{}
	}
	return clone
}

// Slice returns the set's members as a slice, in no particular order.
func (set HashSet) Slice() []Hash {
	hashes := make([]Hash, 0, len(set))
	for h := range set {
		hashes = append(hashes, h)
	}
	return hashes
}
