package domain_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/treegraph/tgraphd/domain"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/utils/consensushashing"
	"github.com/treegraph/tgraphd/domain/dagconfig"
	finalitymodel "github.com/treegraph/tgraphd/domain/finality/model"
	"github.com/treegraph/tgraphd/domain/finality/signer"
	"github.com/treegraph/tgraphd/domain/finality/validatorset"
	"github.com/treegraph/tgraphd/infrastructure/db/database/ldb"
	"github.com/treegraph/tgraphd/infrastructure/db/ledgerdb"
)

type testNode struct {
	domain domain.Domain
	close  func()
}

func openTestNode(t *testing.T, dataDir string, params *dagconfig.Params,
	finalityConfig *domain.FinalityConfig) *testNode {

	db, err := ldb.NewLevelDB(filepath.Join(dataDir, "consensus"))
	if err != nil {
		t.Fatalf("NewLevelDB: %+v", err)
	}
	ledgerDB, err := ledgerdb.Open(filepath.Join(dataDir, "ledger.db"))
	if err != nil {
		t.Fatalf("ledgerdb.Open: %+v", err)
	}
	domainInstance, err := domain.New(params, db, ledgerDB, finalityConfig)
	if err != nil {
		t.Fatalf("New: %+v", err)
	}
	return &testNode{
		domain: domainInstance,
		close: func() {
			domainInstance.Stop()
			err := ledgerDB.Close()
			if err != nil {
				t.Fatalf("ledgerDB.Close: %+v", err)
			}
			err = db.Close()
			if err != nil {
				t.Fatalf("db.Close: %+v", err)
			}
		},
	}
}

func extendChain(t *testing.T, c externalapi.Consensus, toHeight uint64) []*externalapi.DomainHash {
	tipHash, tipHeight, err := c.PivotTip()
	if err != nil {
		t.Fatalf("PivotTip: %+v", err)
	}
	tip, err := c.GetBlock(tipHash)
	if err != nil {
		t.Fatalf("GetBlock: %+v", err)
	}

	var hashes []*externalapi.DomainHash
	for height := tipHeight + 1; height <= toHeight; height++ {
		block := &externalapi.DomainBlock{
			Header: &externalapi.DomainBlockHeader{
				ParentHash:         tipHash,
				Height:             height,
				Difficulty:         1,
				TimeInMilliseconds: tip.Header.TimeInMilliseconds + 1000,
				Miner:              externalapi.DomainAddress{1},
				TransactionsRoot:   consensushashing.TransactionsRoot(nil),
				DeferredStateRoot:  &externalapi.DomainHash{},
			},
			Transactions: []*externalapi.DomainTransaction{},
		}
		_, err := c.ValidateAndInsertBlock(block)
		if err != nil {
			t.Fatalf("ValidateAndInsertBlock at height %d: %+v", height, err)
		}
		tip = block
		tipHash = consensushashing.BlockHash(block)
		hashes = append(hashes, tipHash)
	}
	return hashes
}

// waitForCheckpoint waits until both the consensus and the ledger hold a
// checkpoint at the given height
func waitForCheckpoint(t *testing.T, d domain.Domain, height uint64) {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		checkpoint, err := d.Consensus().GetLatestCheckpoint()
		if err != nil {
			t.Fatalf("GetLatestCheckpoint: %+v", err)
		}
		if checkpoint.Height > height {
			t.Fatalf("checkpoint moved past height %d to %d", height, checkpoint.Height)
		}
		latest, found, err := d.LatestLedgerInfo()
		if err != nil {
			t.Fatalf("LatestLedgerInfo: %+v", err)
		}
		if checkpoint.Height == height && found && latest.Candidate.Height == height {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for a checkpoint at height %d", height)
}

func TestSingleValidatorFinalizesPivotChain(t *testing.T) {
	params := dagconfig.DevnetParams
	params.CheckpointSafetyMargin = 2
	params.FinalityRoundTimeout = 200 * time.Millisecond

	validatorSigner, err := signer.Generate()
	if err != nil {
		t.Fatalf("Generate: %+v", err)
	}
	schedule, err := validatorset.Static([]*finalitymodel.Validator{{PublicKey: validatorSigner.PublicKey(), Stake: 1}})
	if err != nil {
		t.Fatalf("Static: %+v", err)
	}

	dataDir := t.TempDir()
	node := openTestNode(t, dataDir, &params, &domain.FinalityConfig{Schedule: schedule, Signer: validatorSigner})
	c := node.domain.Consensus()

	hashes := extendChain(t, c, 6)
	node.domain.Start(context.Background())
	waitForCheckpoint(t, node.domain, 4)

	isFinalized, err := c.IsFinalized(hashes[3])
	if err != nil {
		t.Fatalf("IsFinalized: %+v", err)
	}
	if !isFinalized {
		t.Fatalf("TestSingleValidatorFinalizesPivotChain: the checkpoint is not finalized")
	}
	isFinalized, err = c.IsFinalized(hashes[5])
	if err != nil {
		t.Fatalf("IsFinalized: %+v", err)
	}
	if isFinalized {
		t.Fatalf("TestSingleValidatorFinalizesPivotChain: the pivot tip is finalized")
	}

	info, err := node.domain.GetCheckpointByHeight(4)
	if err != nil {
		t.Fatalf("GetCheckpointByHeight: %+v", err)
	}
	if !info.Candidate.Hash.Equal(hashes[3]) {
		t.Fatalf("TestSingleValidatorFinalizesPivotChain: expected checkpoint %s, got %s",
			hashes[3], info.Candidate.Hash)
	}

	hashes = append(hashes, extendChain(t, c, 10)...)
	waitForCheckpoint(t, node.domain, 8)
	info, err = node.domain.GetCheckpointByHash(hashes[7])
	if err != nil {
		t.Fatalf("GetCheckpointByHash: %+v", err)
	}
	if info.Sequence != 2 {
		t.Fatalf("TestSingleValidatorFinalizesPivotChain: expected ledger sequence 2, got %d", info.Sequence)
	}
	node.close()

	restarted := openTestNode(t, dataDir, &params, nil)
	defer restarted.close()
	checkpoint, err := restarted.domain.Consensus().GetLatestCheckpoint()
	if err != nil {
		t.Fatalf("GetLatestCheckpoint: %+v", err)
	}
	if checkpoint.Height != 8 || !checkpoint.Hash.Equal(hashes[7]) {
		t.Fatalf("TestSingleValidatorFinalizesPivotChain: checkpoint was not restored, got %s at height %d",
			checkpoint.Hash, checkpoint.Height)
	}
	if restarted.domain.DeliverConsensusMessage(&finalitymodel.Timeout{Round: 1}) {
		t.Fatalf("TestSingleValidatorFinalizesPivotChain: a node without a schedule accepted a message")
	}
}

func TestStopHaltsFinalityEngine(t *testing.T) {
	params := dagconfig.DevnetParams
	params.CheckpointSafetyMargin = 2
	params.FinalityRoundTimeout = 50 * time.Millisecond

	validatorSigner, err := signer.Generate()
	if err != nil {
		t.Fatalf("Generate: %+v", err)
	}
	schedule, err := validatorset.Static([]*finalitymodel.Validator{{PublicKey: validatorSigner.PublicKey(), Stake: 1}})
	if err != nil {
		t.Fatalf("Static: %+v", err)
	}

	node := openTestNode(t, t.TempDir(), &params, &domain.FinalityConfig{Schedule: schedule, Signer: validatorSigner})
	defer node.close()
	c := node.domain.Consensus()

	extendChain(t, c, 6)
	node.domain.Start(context.Background())
	waitForCheckpoint(t, node.domain, 4)
	node.domain.Stop()

	extendChain(t, c, 10)
	time.Sleep(5 * params.FinalityRoundTimeout)
	checkpoint, err := c.GetLatestCheckpoint()
	if err != nil {
		t.Fatalf("GetLatestCheckpoint: %+v", err)
	}
	if checkpoint.Height != 4 {
		t.Fatalf("TestStopHaltsFinalityEngine: the checkpoint moved to height %d after Stop", checkpoint.Height)
	}
}
