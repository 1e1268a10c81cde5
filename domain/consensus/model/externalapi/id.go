package externalapi

import "encoding/hex"

// Id is a node public-key identity.
type Id struct {
	bytes []byte
}

// NewId wraps the given public-key bytes as an Id. The bytes are copied.
func NewId(publicKey []byte) *Id {
	clone := make([]byte, len(publicKey))
	copy(clone, publicKey)
	return &Id{bytes: clone}
}

// NewIdFromHex parses a hex-encoded Id, as used by config keys that name a
// peer by its public key (e.g. snapshot.initial-active-full-node).
func NewIdFromHex(s string) (*Id, error) {
	bytes, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return NewId(bytes), nil
}

// Bytes returns the raw public-key bytes of the Id.
func (id *Id) Bytes() []byte {
	clone := make([]byte, len(id.bytes))
	copy(clone, id.bytes)
	return clone
}

// String returns the hex encoding of the Id.
func (id *Id) String() string {
	if id == nil {
		return "<nil>"
	}
	return hex.EncodeToString(id.bytes)
}

// Equal returns whether id equals other.
func (id *Id) Equal(other *Id) bool {
	if id == nil || other == nil {
		return id == other
	}
	if len(id.bytes) != len(other.bytes) {
		return false
	}
	for i, b := range id.bytes {
		if other.bytes[i] != b {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the Id.
func (id *Id) Clone() *Id {
	if id == nil {
		return nil
	}
	return NewId(id.bytes)
}

// GobEncode implements gob.GobEncoder, since bytes is unexported and would
// otherwise be invisible to persistence/gob.Encode (used by
// infrastructure/db and infrastructure/cloud to serialize snapshot
// artifacts that embed Ids).
func (id *Id) GobEncode() ([]byte, error) {
	return id.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (id *Id) GobDecode(data []byte) error {
	id.bytes = append([]byte(nil), data...)
	return nil
}

// IdSet is a set of node identities, keyed by their hex representation.
type IdSet map[string]*Id

// NewIdSet builds an IdSet from the given ids.
func NewIdSet(ids ...*Id) IdSet {
	set := make(IdSet, len(ids))
	for _, id := range ids {
		set[id.String()] = id
	}
	return set
}

// Contains reports whether id is a member of the set.
func (set IdSet) Contains(id *Id) bool {
	_, ok := set[id.String()]
	return ok
}

// Add inserts id into the set.
func (set IdSet) Add(id *Id) {
	set[id.String()] = id
}

// Remove deletes id from the set.
func (set IdSet) Remove(id *Id) {
	delete(set, id.String())
}

// Len returns the number of ids in the set.
func (set IdSet) Len() int {
	return len(set)
}

// Slice returns the set's members as a slice, in no particular order.
func (set IdSet) Slice() []*Id {
	ids := make([]*Id, 0, len(set))
	for _, id := range set {
		ids = append(ids, id)
	}
	return ids
}

// Clone returns a deep copy of the set.
func (set IdSet) Clone() IdSet {
	clone := make(IdSet, len(set))
	for k, id := range set {
		clone[k] = id.Clone()
	}
	return clone
}
