package main

import (
	"context"
	"path/filepath"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/treegraph/tgraphd/domain"
	finalitymodel "github.com/treegraph/tgraphd/domain/finality/model"
	"github.com/treegraph/tgraphd/domain/finality/signer"
	"github.com/treegraph/tgraphd/domain/finality/validatorset"
	"github.com/treegraph/tgraphd/domain/finality/wire"
	"github.com/treegraph/tgraphd/infrastructure/config"
	"github.com/treegraph/tgraphd/infrastructure/db/database/ldb"
	"github.com/treegraph/tgraphd/infrastructure/db/ledgerdb"
)

const (
	consensusDBDirname = "consensus"
	ledgerDBFilename   = "ledger.db"
)

// node is a wrapper for all the tgraphd services
type node struct {
	cfg      *config.Config
	db       *ldb.LevelDB
	ledgerDB *ledgerdb.LedgerDB
	domain   domain.Domain
	cancel   context.CancelFunc

	started, shutdown int32
}

func newNode(cfg *config.Config) (*node, error) {
	db, err := ldb.NewLevelDB(filepath.Join(cfg.DataDir, consensusDBDirname))
	if err != nil {
		return nil, err
	}
	ledgerDB, err := ledgerdb.Open(filepath.Join(cfg.DataDir, ledgerDBFilename))
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	finalityConfig, err := loadFinalityConfig(cfg)
	if err != nil {
		_ = ledgerDB.Close()
		_ = db.Close()
		return nil, err
	}
	domainInstance, err := domain.New(cfg.NetParams(), db, ledgerDB, finalityConfig)
	if err != nil {
		_ = ledgerDB.Close()
		_ = db.Close()
		return nil, err
	}

	return &node{
		cfg:      cfg,
		db:       db,
		ledgerDB: ledgerDB,
		domain:   domainInstance,
	}, nil
}

func loadFinalityConfig(cfg *config.Config) (*domain.FinalityConfig, error) {
	if cfg.ValidatorSetFile == "" {
		log.Infof("No validator set configured, finality is disabled")
		return nil, nil
	}
	schedule, err := validatorset.LoadFile(cfg.ValidatorSetFile)
	if err != nil {
		return nil, err
	}

	finalityConfig := &domain.FinalityConfig{Schedule: schedule, Emit: traceOutbound}
	if cfg.ValidatorKeyFile == "" {
		log.Infof("No validator key configured, following finality as an observer")
		return finalityConfig, nil
	}
	finalityConfig.Signer, err = signer.LoadKeyFile(cfg.ValidatorKeyFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed loading the validator key")
	}
	log.Infof("Participating in finality as validator %s", finalityConfig.Signer.PublicKey())
	return finalityConfig, nil
}

// traceOutbound is the emitter used until a transport is attached
func traceOutbound(message finalitymodel.Message) {
	encoded, err := wire.EncodeMessage(message)
	if err != nil {
		log.Errorf("Failed encoding %s: %s", message.Command(), err)
		return
	}
	log.Tracef("Outbound %s of round %d (%d bytes)", message.Command(), message.MessageRound(), len(encoded))
}

// start launches all the tgraphd services.
func (n *node) start() {
	// Already started?
	if atomic.AddInt32(&n.started, 1) != 1 {
		return
	}

	log.Tracef("Starting tgraphd")
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.domain.Start(ctx)

	tipHash, tipHeight, err := n.domain.Consensus().PivotTip()
	if err != nil {
		log.Errorf("Failed reading the pivot tip: %s", err)
		return
	}
	log.Infof("Pivot tip %s at height %d", tipHash, tipHeight)
}

// stop gracefully shuts down all the tgraphd services.
func (n *node) stop() {
	// Make sure this only happens once.
	if atomic.AddInt32(&n.shutdown, 1) != 1 {
		log.Infof("tgraphd is already in the process of shutting down")
		return
	}

	log.Warnf("tgraphd shutting down")
	if n.cancel != nil {
		n.cancel()
	}
	n.domain.Stop()

	err := n.ledgerDB.Close()
	if err != nil {
		log.Errorf("Error closing the ledger database: %+v", err)
	}
	err = n.db.Close()
	if err != nil {
		log.Errorf("Error closing the consensus database: %+v", err)
	}
}
