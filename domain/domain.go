package domain

import (
	"context"

	"github.com/pkg/errors"

	"github.com/treegraph/tgraphd/domain/consensus"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/ruleerrors"
	"github.com/treegraph/tgraphd/domain/dagconfig"
	"github.com/treegraph/tgraphd/domain/finality/engine"
	"github.com/treegraph/tgraphd/domain/finality/ledger"
	finalitymodel "github.com/treegraph/tgraphd/domain/finality/model"
	"github.com/treegraph/tgraphd/domain/finality/signer"
	"github.com/treegraph/tgraphd/domain/finality/validatorset"
	infrastructuredatabase "github.com/treegraph/tgraphd/infrastructure/db/database"
	"github.com/treegraph/tgraphd/infrastructure/db/ledgerdb"
)

// Domain binds the Tree-Graph consensus to the finality engine that
// finalizes its pivot chain
type Domain interface {
	Consensus() externalapi.Consensus

	// DeliverConsensusMessage queues a finality message received from
	// another validator. It never blocks, and returns false if the message
	// was dropped.
	DeliverConsensusMessage(message finalitymodel.Message) bool

	GetCheckpointByHeight(height uint64) (*finalitymodel.LedgerInfo, error)
	GetCheckpointByHash(blockHash *externalapi.DomainHash) (*finalitymodel.LedgerInfo, error)
	LatestLedgerInfo() (info *finalitymodel.LedgerInfo, found bool, err error)

	Start(ctx context.Context)
	Stop()
}

// FinalityConfig configures the finality side of a Domain
type FinalityConfig struct {
	// Schedule is the validator set schedule. A nil schedule disables the
	// finality engine; committed checkpoints can still be queried.
	Schedule *validatorset.Schedule
	// Signer signs this node's votes. A nil signer makes the node an
	// observer.
	Signer *signer.Signer
	// Emit broadcasts outbound finality messages
	Emit finalitymodel.Emitter
}

type domain struct {
	consensus externalapi.Consensus
	ledger    *ledger.Ledger
	engine    *engine.Engine
	cancel    context.CancelFunc
}

// New instantiates a new Domain over the consensus database db and the
// checkpoint ledger ledgerDB
func New(dagParams *dagconfig.Params, db infrastructuredatabase.Database, ledgerDB *ledgerdb.LedgerDB,
	finalityConfig *FinalityConfig) (Domain, error) {

	consensusInstance, err := consensus.NewFactory().NewConsensus(dagParams, db)
	if err != nil {
		return nil, err
	}
	checkpointLedger := ledger.New(ledgerDB)

	err = restoreCheckpoint(consensusInstance, checkpointLedger)
	if err != nil {
		return nil, err
	}

	d := &domain{
		consensus: consensusInstance,
		ledger:    checkpointLedger,
	}
	if finalityConfig != nil && finalityConfig.Schedule != nil {
		emit := finalityConfig.Emit
		if emit == nil {
			emit = func(finalitymodel.Message) {}
		}
		d.engine, err = engine.New(dagParams, consensusInstance, finalityConfig.Schedule, checkpointLedger,
			finalityConfig.Signer, emit)
		if err != nil {
			return nil, err
		}
	}
	return d, nil
}

// restoreCheckpoint moves the consensus checkpoint up to the latest
// checkpoint in the ledger. The engine sets the consensus checkpoint before
// recording it in the ledger, so the consensus is only behind when its
// database was replaced.
func restoreCheckpoint(consensusInstance externalapi.Consensus, checkpointLedger *ledger.Ledger) error {
	latest, found, err := checkpointLedger.Latest()
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	checkpoint, err := consensusInstance.GetLatestCheckpoint()
	if err != nil {
		return err
	}
	if checkpoint.Height >= latest.Candidate.Height {
		return nil
	}

	log.Infof("Restoring checkpoint %s at height %d from the ledger", latest.Candidate.Hash, latest.Candidate.Height)
	_, err = consensusInstance.SetCheckpoint(latest.Candidate.Hash)
	if errors.Is(err, ruleerrors.ErrUnknownBlock) {
		log.Warnf("Ledger checkpoint %s is not in the DAG, it will be set once the block arrives",
			latest.Candidate.Hash)
		return nil
	}
	return err
}

func (d *domain) Consensus() externalapi.Consensus {
	return d.consensus
}

func (d *domain) DeliverConsensusMessage(message finalitymodel.Message) bool {
	if d.engine == nil {
		return false
	}
	return d.engine.Deliver(message)
}

func (d *domain) GetCheckpointByHeight(height uint64) (*finalitymodel.LedgerInfo, error) {
	return d.ledger.ByHeight(height)
}

func (d *domain) GetCheckpointByHash(blockHash *externalapi.DomainHash) (*finalitymodel.LedgerInfo, error) {
	return d.ledger.ByHash(blockHash)
}

func (d *domain) LatestLedgerInfo() (*finalitymodel.LedgerInfo, bool, error) {
	return d.ledger.Latest()
}

func (d *domain) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.consensus.Start(ctx)
	if d.engine != nil {
		d.engine.Start(ctx)
	}
}

// Stop waits for the finality engine and the execution pipeline to return.
// The databases may be closed once it returns.
func (d *domain) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.engine != nil {
		d.engine.Stop()
	}
	d.consensus.Stop()
}
