package appmessage

import "github.com/jet-cloud/constellation/domain/consensus/model/externalapi"

// StartConsensusRoundMessage is the coordinator's round kickoff, carrying
// the immutable RoundData every peer needs to join it.
type StartConsensusRoundMessage struct {
	baseMessage
	RoundData *externalapi.RoundData
}

// Command implements Message.
func (msg *StartConsensusRoundMessage) Command() MessageCommand { return CmdStartConsensusRound }

// NewStartConsensusRoundMessage returns a new StartConsensusRoundMessage.
func NewStartConsensusRoundMessage(data *externalapi.RoundData) *StartConsensusRoundMessage {
	return &StartConsensusRoundMessage{RoundData: data}
}

// ConsensusDataProposalMessage wraps a phase-1 proposal for the wire.
type ConsensusDataProposalMessage struct {
	baseMessage
	Proposal *externalapi.ConsensusDataProposal
}

// Command implements Message.
func (msg *ConsensusDataProposalMessage) Command() MessageCommand { return CmdConsensusDataProposal }

// NewConsensusDataProposalMessage returns a new ConsensusDataProposalMessage.
func NewConsensusDataProposalMessage(p *externalapi.ConsensusDataProposal) *ConsensusDataProposalMessage {
	return &ConsensusDataProposalMessage{Proposal: p}
}

// UnionBlockProposalMessage wraps a phase-2 proposal for the wire.
type UnionBlockProposalMessage struct {
	baseMessage
	Proposal *externalapi.UnionBlockProposal
}

// Command implements Message.
func (msg *UnionBlockProposalMessage) Command() MessageCommand { return CmdUnionBlockProposal }

// NewUnionBlockProposalMessage returns a new UnionBlockProposalMessage.
func NewUnionBlockProposalMessage(p *externalapi.UnionBlockProposal) *UnionBlockProposalMessage {
	return &UnionBlockProposalMessage{Proposal: p}
}

// SelectedUnionBlockMessage wraps a phase-3 proposal for the wire.
type SelectedUnionBlockMessage struct {
	baseMessage
	Proposal *externalapi.SelectedUnionBlock
}

// Command implements Message.
func (msg *SelectedUnionBlockMessage) Command() MessageCommand { return CmdSelectedUnionBlock }

// NewSelectedUnionBlockMessage returns a new SelectedUnionBlockMessage.
func NewSelectedUnionBlockMessage(p *externalapi.SelectedUnionBlock) *SelectedUnionBlockMessage {
	return &SelectedUnionBlockMessage{Proposal: p}
}

// FinishedCheckpointMessage is spread by facilitators to non-facilitators
// once a round commits a block.
type FinishedCheckpointMessage struct {
	baseMessage
	Cache        *externalapi.CheckpointCache
	Facilitators externalapi.IdSet
}

// Command implements Message.
func (msg *FinishedCheckpointMessage) Command() MessageCommand { return CmdFinishedCheckpoint }

// NewFinishedCheckpointMessage returns a new FinishedCheckpointMessage.
func NewFinishedCheckpointMessage(cache *externalapi.CheckpointCache, facilitators externalapi.IdSet) *FinishedCheckpointMessage {
	return &FinishedCheckpointMessage{Cache: cache, Facilitators: facilitators}
}

// SignatureRequestMessage asks its recipient to co-sign Block.
type SignatureRequestMessage struct {
	baseMessage
	Block        *externalapi.CheckpointBlock
	Facilitators externalapi.IdSet
}

// Command implements Message.
func (msg *SignatureRequestMessage) Command() MessageCommand { return CmdSignatureRequest }

// NewSignatureRequestMessage returns a new SignatureRequestMessage.
func NewSignatureRequestMessage(block *externalapi.CheckpointBlock, facilitators externalapi.IdSet) *SignatureRequestMessage {
	return &SignatureRequestMessage{Block: block, Facilitators: facilitators}
}

// SignatureResponseMessage answers a SignatureRequestMessage. ReRegister
// asks the requester to re-send the request later (e.g. the signer hasn't
// seen the block yet).
type SignatureResponseMessage struct {
	baseMessage
	Signature  *externalapi.HashSignature
	ReRegister bool
}

// Command implements Message.
func (msg *SignatureResponseMessage) Command() MessageCommand { return CmdSignatureResponse }

// NewSignatureResponseMessage returns a new SignatureResponseMessage.
func NewSignatureResponseMessage(sig *externalapi.HashSignature, reRegister bool) *SignatureResponseMessage {
	return &SignatureResponseMessage{Signature: sig, ReRegister: reRegister}
}
