package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/treegraph/tgraphd/domain/dagconfig"
)

// NetworkFlags holds the network configuration, that is which network is selected.
type NetworkFlags struct {
	Testnet               bool   `long:"testnet" description:"Use the test network"`
	Devnet                bool   `long:"devnet" description:"Use the development test network"`
	OverrideDAGParamsFile string `long:"override-dag-params-file" description:"Overrides DAG params (allowed only on devnet)"`

	ActiveNetParams *dagconfig.Params
}

type overrideDAGParamsConfig struct {
	AdaptiveWeightThreshold        *uint64 `json:"adaptiveWeightThreshold"`
	AdaptiveWeightWindow           *uint64 `json:"adaptiveWeightWindow"`
	CheckpointSafetyMargin         *uint64 `json:"checkpointSafetyMargin"`
	QuorumNumerator                *uint64 `json:"quorumNumerator"`
	QuorumDenominator              *uint64 `json:"quorumDenominator"`
	MaxRollbackDepth               *uint64 `json:"maxRollbackDepth"`
	DeferredStateEpochCount        *uint64 `json:"deferredStateEpochCount"`
	MaxReferees                    *uint64 `json:"maxReferees"`
	MaxTransactionsPerBlock        *uint64 `json:"maxTransactionsPerBlock"`
	TransactionEpochBound          *uint64 `json:"transactionEpochBound"`
	BlockReward                    *uint64 `json:"blockReward"`
	FinalityRoundTimeoutInMilliSec *int64  `json:"finalityRoundTimeoutInMilliSeconds"`
}

// ResolveNetwork parses the network command line argument and sets ActiveNetParams accordingly.
// It returns error if more than one network was selected, nil otherwise.
func (networkFlags *NetworkFlags) ResolveNetwork(parser *flags.Parser) error {
	// The selected parameters are copied so that overrides never leak into
	// the package-level defaults
	params := dagconfig.MainnetParams
	numNets := 0
	if networkFlags.Testnet {
		numNets++
		params = dagconfig.TestnetParams
	}
	if networkFlags.Devnet {
		numNets++
		params = dagconfig.DevnetParams
	}
	if numNets > 1 {
		message := "Multiple networks parameters (testnet, devnet, etc.) cannot be used " +
			"together. Please choose only one network"
		err := errors.Errorf(message)
		fmt.Fprintln(os.Stderr, err)
		if parser != nil {
			parser.WriteHelp(os.Stderr)
		}
		return err
	}
	networkFlags.ActiveNetParams = &params

	return networkFlags.overrideDAGParams()
}

// NetParams returns the ActiveNetParams
func (networkFlags *NetworkFlags) NetParams() *dagconfig.Params {
	return networkFlags.ActiveNetParams
}

func (networkFlags *NetworkFlags) overrideDAGParams() error {
	if networkFlags.OverrideDAGParamsFile == "" {
		return nil
	}

	if !networkFlags.Devnet {
		return errors.Errorf("override-dag-params-file is allowed only when using devnet")
	}

	overrideDAGParamsFile, err := os.Open(networkFlags.OverrideDAGParamsFile)
	if err != nil {
		return errors.WithStack(err)
	}
	defer overrideDAGParamsFile.Close()

	decoder := json.NewDecoder(overrideDAGParamsFile)
	decoder.DisallowUnknownFields()
	config := &overrideDAGParamsConfig{}
	err = decoder.Decode(config)
	if err != nil {
		return errors.Wrapf(err, "failed parsing %s", networkFlags.OverrideDAGParamsFile)
	}

	params := networkFlags.ActiveNetParams
	overrideUint64(&params.AdaptiveWeightThreshold, config.AdaptiveWeightThreshold)
	overrideUint64(&params.AdaptiveWeightWindow, config.AdaptiveWeightWindow)
	overrideUint64(&params.CheckpointSafetyMargin, config.CheckpointSafetyMargin)
	overrideUint64(&params.QuorumNumerator, config.QuorumNumerator)
	overrideUint64(&params.QuorumDenominator, config.QuorumDenominator)
	overrideUint64(&params.MaxRollbackDepth, config.MaxRollbackDepth)
	overrideUint64(&params.DeferredStateEpochCount, config.DeferredStateEpochCount)
	overrideUint64(&params.MaxReferees, config.MaxReferees)
	overrideUint64(&params.MaxTransactionsPerBlock, config.MaxTransactionsPerBlock)
	overrideUint64(&params.TransactionEpochBound, config.TransactionEpochBound)
	overrideUint64(&params.BlockReward, config.BlockReward)

	if config.FinalityRoundTimeoutInMilliSec != nil {
		params.FinalityRoundTimeout = time.Duration(*config.FinalityRoundTimeoutInMilliSec) * time.Millisecond
	}

	if params.QuorumDenominator == 0 || params.QuorumNumerator >= params.QuorumDenominator {
		return errors.Errorf("quorum fraction %d/%d must be positive and below 1",
			params.QuorumNumerator, params.QuorumDenominator)
	}
	log.Infof("Overrode DAG params from %s", networkFlags.OverrideDAGParamsFile)
	return nil
}

func overrideUint64(target *uint64, override *uint64) {
	if override != nil {
		*target = *override
	}
}
