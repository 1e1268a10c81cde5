// Package config loads the node's configuration from the command line,
// grounded on daglabs-btcd/cmd/kaspawallet/config.go's go-flags struct-tag
// pattern. Unlike the wallet's per-subcommand flag structs, a checkpoint
// node has one flat set of recognized keys (spec.md §6), so there is a
// single Config rather than one struct per subcommand.
package config

import (
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

// ConsensusConfig holds the round-level tunables of spec.md §4.6/§4.7.
type ConsensusConfig struct {
	MaxTransactionThreshold int     `long:"consensus.max-tx-threshold" description:"phase-1 transaction cap per round" default:"50"`
	MaxObservationThreshold int     `long:"consensus.max-obs-threshold" description:"phase-1 observation cap per round" default:"50"`
	MaxParallelRounds       int     `long:"consensus.max-parallel-rounds" description:"max rounds this node facilitates at once" default:"4"`
	RoundCooldownSeconds    float64 `long:"consensus.round-cooldown-seconds" description:"minimum gap between this node's own rounds" default:"1"`
	RoundTimeoutSeconds     float64 `long:"consensus.round-timeout-seconds" description:"total round deadline; not read by the consensus manager" default:"30"`
	StageTimeoutSeconds     float64 `long:"consensus.stage-timeout-seconds" description:"deadline measured from round creation, after which a round is forced to union or ended" default:"10"`
	PeerResolveTimeoutSeconds float64 `long:"consensus.peer-resolve-timeout-seconds" description:"per-request parent resolution deadline" default:"15"`
	MaxTips                 int     `long:"consensus.max-tips" description:"tip service capacity" default:"6"`
	MaxTipUsage             int     `long:"consensus.max-tip-usage" description:"times a tip may be referenced before retirement" default:"3"`
	MinFacilitators         int     `long:"consensus.min-facilitators" description:"facilitator coverage required of a pulled tip pair" default:"2"`
}

// SnapshotConfig holds the interval/rotation tunables of spec.md §4.8.
type SnapshotConfig struct {
	HeightInterval             uint64  `long:"snapshot.height-interval" description:"heights sealed per snapshot" default:"2"`
	HeightDelayInterval        uint64  `long:"snapshot.height-delay-interval" description:"required lead of min tip height over the seal point" default:"2"`
	ActivePeersRotationInterval uint64 `long:"snapshot.active-peers-rotation-interval" description:"rotate active pool every N snapshot intervals" default:"20"`
	SizeDiskLimitBytes         uint64  `long:"snapshot.size-disk-limit" description:"bytes; 0 disables" default:"0"`
	MaxAcceptedCbHashesInMemory int    `long:"snapshot.max-accepted-cb-in-memory" description:"self-healing trim threshold" default:"10000"`
	InitialActiveFullNodes     []string `long:"snapshot.initial-active-full-node" description:"hex-encoded id of a genesis full-pool facilitator; repeatable"`
}

// StorageConfig gates cloud off-load, spec.md §6 "storage.enabled".
type StorageConfig struct {
	Enabled bool `long:"storage.enabled" description:"enable cloud snapshot off-load"`
}

// SchemaConfig holds legacy-schema migration thresholds.
type SchemaConfig struct {
	V1SnapshotInfoMaxHeight uint64 `long:"schema.v1.snapshot-info" description:"max height using the legacy V1 snapshot-info schema"`
}

// Config is the full recognized configuration surface of spec.md §6.
type Config struct {
	DataDir string `long:"datadir" description:"directory for local snapshot/snapshot-info storage" default:"~/.constellation"`

	Consensus ConsensusConfig `group:"Consensus"`
	Snapshot  SnapshotConfig  `group:"Snapshot"`
	Storage   StorageConfig   `group:"Storage"`
	Schema    SchemaConfig    `group:"Schema"`
}

// Load parses os.Args into a Config, applying defaults for every key not
// given on the command line.
func Load() (*Config, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs parses the given argument list, mirroring Load but testable
// without touching os.Args.
func LoadArgs(args []string) (*Config, error) {
	cfg := &Config{}
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, errors.Wrap(err, "failed to parse configuration")
	}
	return cfg, nil
}
