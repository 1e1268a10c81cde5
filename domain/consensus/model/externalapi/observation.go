package externalapi

// ObservationEventKind enumerates the behaviors an Observation can report.
type ObservationEventKind uint8

const (
	// EventNodeMemberOfActivePool reports that the subject node is part of
	// the active facilitator pool for the current snapshot epoch.
	EventNodeMemberOfActivePool ObservationEventKind = iota
	// EventNodeNotMemberOfActivePool reports the subject node's removal
	// from the active facilitator pool.
	EventNodeNotMemberOfActivePool
	// EventNodeOffline reports that the subject node has been marked
	// offline by the observer.
	EventNodeOffline
)

// String implements fmt.Stringer.
func (k ObservationEventKind) String() string {
	switch k {
	case EventNodeMemberOfActivePool:
		return "NodeMemberOfActivePool"
	case EventNodeNotMemberOfActivePool:
		return "NodeNotMemberOfActivePool"
	case EventNodeOffline:
		return "NodeOffline"
	default:
		return "<unknown event>"
	}
}

// Observation is a signed event reporting peer behavior.
type Observation struct {
	ObserverId   *Id
	SubjectId    *Id
	EventKind    ObservationEventKind
	EpochSeconds int64
	Signature    []byte

	Hash Hash
}

// Clone returns a deep copy of the observation.
func (obs *Observation) Clone() *Observation {
	if obs == nil {
		return nil
	}
	clone := *obs
	clone.ObserverId = obs.ObserverId.Clone()
	clone.SubjectId = obs.SubjectId.Clone()
	clone.Signature = cloneBytes(obs.Signature)
	return &clone
}

// ObservationCacheData wraps an observation with its pending-pool lifecycle
// status. Observations share C2's status vocabulary but never carry an
// ordinal/chain constraint (spec.md §4.2: "C3 ... has an identical contract
// without the ordinal/chain constraint").
type ObservationCacheData struct {
	Observation *Observation
	Status      TransactionStatus
}

// Clone returns a deep copy.
func (data *ObservationCacheData) Clone() *ObservationCacheData {
	if data == nil {
		return nil
	}
	return &ObservationCacheData{
		Observation: data.Observation.Clone(),
		Status:      data.Status,
	}
}
