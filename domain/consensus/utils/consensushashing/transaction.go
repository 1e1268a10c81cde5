package consensushashing

import (
	"encoding/binary"
	"io"

	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
	"github.com/jet-cloud/constellation/domain/consensus/utils/hashes"
	"github.com/pkg/errors"
)

// TransactionHash computes the deterministic content hash of a
// transaction. Per spec.md §3, hash is a pure function of every other
// field, so this never looks at tx.Hash itself.
func TransactionHash(tx *externalapi.Transaction) *externalapi.Hash {
	writer := hashes.NewHashWriter()
	err := serializeTransaction(writer, tx)
	if err != nil {
		// serializeTransaction only writes fixed-size fields and raw byte
		// slices into an in-memory hasher; it cannot fail for a
		// structurally-valid transaction.
		panic(errors.Wrap(err, "TransactionHash failed unexpectedly"))
	}
	return writer.Finalize()
}

func serializeTransaction(w io.Writer, tx *externalapi.Transaction) error {
	if err := writeString(w, string(tx.Sender)); err != nil {
		return err
	}
	if err := writeString(w, string(tx.Receiver)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, tx.Amount); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, tx.HasFee); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, tx.Fee); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, tx.Ordinal); err != nil {
		return err
	}
	if _, err := w.Write(tx.LastTxRef.Hash[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, tx.LastTxRef.Ordinal); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, tx.HasCounterPartySig); err != nil {
		return err
	}
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}
