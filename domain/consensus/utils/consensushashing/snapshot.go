package consensushashing

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
	"github.com/jet-cloud/constellation/domain/consensus/utils/hashes"
	"github.com/pkg/errors"
)

// SnapshotHash computes the content hash of a snapshot header, chaining it
// to the prior snapshot via LastSnapshot and covering every field that
// distinguishes one sealed interval from another: the sealed block set,
// the reputation table, and the active-pool membership it hands off to the
// next interval.
func SnapshotHash(snapshot *externalapi.Snapshot) *externalapi.Hash {
	writer := hashes.NewHashWriter()
	if err := serializeSnapshotContent(writer, snapshot); err != nil {
		panic(errors.Wrap(err, "SnapshotHash failed unexpectedly"))
	}
	return writer.Finalize()
}

func serializeSnapshotContent(w io.Writer, snapshot *externalapi.Snapshot) error {
	if _, err := w.Write(snapshot.LastSnapshot[:]); err != nil {
		return err
	}

	blocks := make([]externalapi.Hash, len(snapshot.CheckpointBlocks))
	copy(blocks, snapshot.CheckpointBlocks)
	sort.Slice(blocks, func(i, j int) bool { return lessHash(blocks[i], blocks[j]) })
	if err := binary.Write(w, binary.LittleEndian, uint64(len(blocks))); err != nil {
		return err
	}
	for _, h := range blocks {
		if _, err := w.Write(h[:]); err != nil {
			return err
		}
	}

	ids := make([]string, 0, len(snapshot.PublicReputation))
	for id := range snapshot.PublicReputation {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if err := binary.Write(w, binary.LittleEndian, uint64(len(ids))); err != nil {
		return err
	}
	for _, id := range ids {
		if err := writeString(w, id); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, snapshot.PublicReputation[id]); err != nil {
			return err
		}
	}

	if err := serializeIdSet(w, snapshot.NextActiveNodes.Full); err != nil {
		return err
	}
	if err := serializeIdSet(w, snapshot.NextActiveNodes.Light); err != nil {
		return err
	}
	return nil
}

func serializeIdSet(w io.Writer, set externalapi.IdSet) error {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if err := binary.Write(w, binary.LittleEndian, uint64(len(ids))); err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := w.Write(set[id].Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func lessHash(a, b externalapi.Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
