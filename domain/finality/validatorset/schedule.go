// Package validatorset loads the schedule of validator sets used by the
// finality engine. Each entry of the schedule covers a contiguous range of
// rounds.
package validatorset

import (
	"encoding/hex"
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/treegraph/tgraphd/domain/finality/model"
)

type validatorEntry struct {
	PublicKey string `yaml:"pubkey"`
	Stake     uint64 `yaml:"stake"`
}

type scheduleEntry struct {
	StartRound uint64           `yaml:"start_round"`
	EndRound   *uint64          `yaml:"end_round"`
	Validators []validatorEntry `yaml:"validators"`
}

type scheduleFile struct {
	Schedule []scheduleEntry `yaml:"validator_schedule"`
}

type rangedSet struct {
	startRound uint64
	// endRound is inclusive; openEnded entries have no end
	endRound  uint64
	openEnded bool
	set       *model.ValidatorSet
}

// Schedule maps rounds to the validator set active in them
type Schedule struct {
	ranges []*rangedSet
}

// Range is a single entry of a schedule built in code
type Range struct {
	StartRound uint64
	// EndRound is inclusive. A nil EndRound is only allowed on the last range
	EndRound   *uint64
	Validators []*model.Validator
}

// LoadFile reads a YAML validator schedule from the given path
func LoadFile(path string) (*Schedule, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed opening validator schedule %s", path)
	}
	defer file.Close()

	schedule, err := Load(file)
	if err != nil {
		return nil, errors.Wrapf(err, "failed loading validator schedule %s", path)
	}
	return schedule, nil
}

// Load decodes a YAML validator schedule of the form:
//
//	validator_schedule:
//	  - start_round: 0
//	    end_round: 999
//	    validators:
//	      - pubkey: <hex>
//	        stake: 10
//	  - start_round: 1000
//	    validators: ...
func Load(reader io.Reader) (*Schedule, error) {
	var file scheduleFile
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)
	err := decoder.Decode(&file)
	if err != nil {
		return nil, errors.Wrap(err, "failed decoding YAML")
	}

	ranges := make([]*Range, len(file.Schedule))
	for i, entry := range file.Schedule {
		validators := make([]*model.Validator, len(entry.Validators))
		for j, validator := range entry.Validators {
			publicKey, err := parsePublicKey(validator.PublicKey)
			if err != nil {
				return nil, errors.Wrapf(err, "entry %d validator %d", i, j)
			}
			validators[j] = &model.Validator{PublicKey: publicKey, Stake: validator.Stake}
		}
		ranges[i] = &Range{StartRound: entry.StartRound, EndRound: entry.EndRound, Validators: validators}
	}
	return New(ranges)
}

func parsePublicKey(publicKeyHex string) (model.PublicKey, error) {
	var publicKey model.PublicKey
	decoded, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return publicKey, errors.Wrapf(err, "malformed public key %q", publicKeyHex)
	}
	if len(decoded) != model.PublicKeySize {
		return publicKey, errors.Errorf("public key %q is %d bytes long, expected %d",
			publicKeyHex, len(decoded), model.PublicKeySize)
	}
	copy(publicKey[:], decoded)
	return publicKey, nil
}

// New builds a Schedule out of the given ranges. The ranges must start at
// round 0, be contiguous, and every range must have at least one validator
// with non-zero stake.
func New(ranges []*Range) (*Schedule, error) {
	if len(ranges) == 0 {
		return nil, errors.New("validator schedule is empty")
	}

	sorted := make([]*Range, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartRound < sorted[j].StartRound
	})

	schedule := &Schedule{ranges: make([]*rangedSet, len(sorted))}
	var nextStart uint64
	for i, r := range sorted {
		if r.StartRound != nextStart {
			return nil, errors.Errorf("validator schedule entry %d starts at round %d, expected %d",
				i, r.StartRound, nextStart)
		}
		isLast := i == len(sorted)-1
		if r.EndRound == nil && !isLast {
			return nil, errors.Errorf("validator schedule entry %d has no end round but is not the last", i)
		}
		if r.EndRound != nil && *r.EndRound < r.StartRound {
			return nil, errors.Errorf("validator schedule entry %d ends at round %d before it starts at %d",
				i, *r.EndRound, r.StartRound)
		}
		err := validateValidators(r.Validators)
		if err != nil {
			return nil, errors.Wrapf(err, "validator schedule entry %d", i)
		}

		ranged := &rangedSet{
			startRound: r.StartRound,
			openEnded:  r.EndRound == nil,
			set:        model.NewValidatorSet(r.Validators),
		}
		if !ranged.openEnded {
			ranged.endRound = *r.EndRound
			nextStart = ranged.endRound + 1
		}
		schedule.ranges[i] = ranged
	}
	return schedule, nil
}

func validateValidators(validators []*model.Validator) error {
	if len(validators) == 0 {
		return errors.New("no validators")
	}
	seen := make(map[model.PublicKey]struct{}, len(validators))
	for _, validator := range validators {
		if validator.Stake == 0 {
			return errors.Errorf("validator %s has no stake", validator.PublicKey)
		}
		if _, ok := seen[validator.PublicKey]; ok {
			return errors.Errorf("validator %s is listed twice", validator.PublicKey)
		}
		seen[validator.PublicKey] = struct{}{}
	}
	return nil
}

// ValidatorsAt returns the validator set active in the given round
func (s *Schedule) ValidatorsAt(round uint64) (*model.ValidatorSet, error) {
	i := sort.Search(len(s.ranges), func(i int) bool {
		return s.ranges[i].startRound > round
	})
	if i > 0 {
		r := s.ranges[i-1]
		if r.openEnded || round <= r.endRound {
			return r.set, nil
		}
	}
	return nil, errors.Errorf("no validator set is scheduled for round %d", round)
}

// Static returns a schedule in which the given validators are active in
// every round
func Static(validators []*model.Validator) (*Schedule, error) {
	return New([]*Range{{StartRound: 0, Validators: validators}})
}
