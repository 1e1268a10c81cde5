package consensushashing

import (
	"encoding/binary"
	"io"

	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
	"github.com/jet-cloud/constellation/domain/consensus/utils/hashes"
	"github.com/pkg/errors"
)

// ObservationHash computes the deterministic content hash of an
// observation, excluding its signature, mirroring TransactionHash's
// treatment of SenderSignature.
func ObservationHash(obs *externalapi.Observation) *externalapi.Hash {
	writer := hashes.NewHashWriter()
	if err := serializeObservation(writer, obs); err != nil {
		panic(errors.Wrap(err, "ObservationHash failed unexpectedly"))
	}
	return writer.Finalize()
}

func serializeObservation(w io.Writer, obs *externalapi.Observation) error {
	if _, err := w.Write(obs.ObserverId.Bytes()); err != nil {
		return err
	}
	if _, err := w.Write(obs.SubjectId.Bytes()); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint8(obs.EventKind)); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, obs.EpochSeconds)
}
