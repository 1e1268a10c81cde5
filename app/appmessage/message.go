// Package appmessage holds the wire-level envelope structs for the peer
// messages of spec.md §6. Grounded on daglabs-btcd/app/appmessage's style:
// one plain struct per message kind, a Command() method rather than a
// type hierarchy (spec.md §9's "avoid deep class hierarchies" note), no
// interface dispatch beyond that single method. The core depends only on
// these structs and the narrow model.Gossip/model.PeerClient collaborators
// (domain/consensus/model/interface_consensusmanager.go); how a Message
// actually reaches the wire is out of scope per spec.md §1.
package appmessage

// MessageCommand identifies the wire kind of a Message, one constant per
// row of spec.md §6's message table.
type MessageCommand uint8

const (
	// CmdStartConsensusRound is the coordinator-to-peers round kickoff.
	CmdStartConsensusRound MessageCommand = iota
	// CmdConsensusDataProposal is the phase-1 proposal broadcast.
	CmdConsensusDataProposal
	// CmdUnionBlockProposal is the phase-2 proposal broadcast.
	CmdUnionBlockProposal
	// CmdSelectedUnionBlock is the phase-3 proposal broadcast.
	CmdSelectedUnionBlock
	// CmdFinishedCheckpoint notifies non-facilitators of a round's outcome.
	CmdFinishedCheckpoint
	// CmdSignatureRequest asks a peer to co-sign a block.
	CmdSignatureRequest
	// CmdSignatureResponse answers a CmdSignatureRequest.
	CmdSignatureResponse
)

// String implements fmt.Stringer.
func (cmd MessageCommand) String() string {
	switch cmd {
	case CmdStartConsensusRound:
		return "StartConsensusRound"
	case CmdConsensusDataProposal:
		return "ConsensusDataProposal"
	case CmdUnionBlockProposal:
		return "UnionBlockProposal"
	case CmdSelectedUnionBlock:
		return "SelectedUnionBlock"
	case CmdFinishedCheckpoint:
		return "FinishedCheckpoint"
	case CmdSignatureRequest:
		return "SignatureRequest"
	case CmdSignatureResponse:
		return "SignatureResponse"
	default:
		return "<unknown command>"
	}
}

// Message is the single method every envelope struct implements, mirroring
// the teacher's baseMessage/Command() shape without the surrounding
// interface hierarchy.
type Message interface {
	Command() MessageCommand
}

type baseMessage struct{}
