package consensushashing

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
	"github.com/jet-cloud/constellation/domain/consensus/utils/hashes"
	"github.com/pkg/errors"
)

// BlockBaseHash computes the content hash of a checkpoint block excluding
// its signature set, so that two blocks carrying the same content but a
// different union of signers compare equal by base hash (spec.md §3,
// "Base Hash: Content hash excluding signatures; used for equality under
// different signer unions").
func BlockBaseHash(block *externalapi.CheckpointBlock) *externalapi.Hash {
	writer := hashes.NewHashWriter()
	if err := serializeBlockContent(writer, block); err != nil {
		panic(errors.Wrap(err, "BlockBaseHash failed unexpectedly"))
	}
	return writer.Finalize()
}

// BlockSoeHash computes the "signed observation edge" hash of a checkpoint
// block: the base-hash content plus the set of signers, sorted so the hash
// doesn't depend on signature-arrival order.
func BlockSoeHash(block *externalapi.CheckpointBlock) *externalapi.Hash {
	writer := hashes.NewHashWriter()
	if err := serializeBlockContent(writer, block); err != nil {
		panic(errors.Wrap(err, "BlockSoeHash failed unexpectedly"))
	}
	if err := serializeSigners(writer, block.Signatures); err != nil {
		panic(errors.Wrap(err, "BlockSoeHash failed unexpectedly"))
	}
	return writer.Finalize()
}

func serializeBlockContent(w io.Writer, block *externalapi.CheckpointBlock) error {
	for _, parent := range block.Parents {
		if _, err := w.Write(parent.SoeHash[:]); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(block.Transactions))); err != nil {
		return err
	}
	for _, tx := range block.Transactions {
		if _, err := w.Write(tx.Hash[:]); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(block.Observations))); err != nil {
		return err
	}
	for _, obs := range block.Observations {
		if _, err := w.Write(obs.Hash[:]); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(block.Messages))); err != nil {
		return err
	}
	for _, msg := range block.Messages {
		if err := binary.Write(w, binary.LittleEndian, uint64(len(msg))); err != nil {
			return err
		}
		if _, err := w.Write(msg); err != nil {
			return err
		}
	}
	return nil
}

func serializeSigners(w io.Writer, signatures []*externalapi.HashSignature) error {
	ids := make([]string, 0, len(signatures))
	byId := make(map[string]*externalapi.HashSignature, len(signatures))
	for _, sig := range signatures {
		key := sig.SignerId.String()
		ids = append(ids, key)
		byId[key] = sig
	}
	sort.Strings(ids)
	if err := binary.Write(w, binary.LittleEndian, uint64(len(ids))); err != nil {
		return err
	}
	for _, id := range ids {
		sig := byId[id]
		if _, err := w.Write(sig.SignerId.Bytes()); err != nil {
			return err
		}
		if _, err := w.Write(sig.Signature); err != nil {
			return err
		}
	}
	return nil
}
