package validatorset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/treegraph/tgraphd/domain/finality/model"
)

const (
	keyA = "0101010101010101010101010101010101010101010101010101010101010101"
	keyB = "0202020202020202020202020202020202020202020202020202020202020202"
	keyC = "0303030303030303030303030303030303030303030303030303030303030303"
)

func TestLoad(t *testing.T) {
	schedule, err := Load(strings.NewReader(`
validator_schedule:
  - start_round: 0
    end_round: 9
    validators:
      - pubkey: ` + keyB + `
        stake: 2
      - pubkey: ` + keyA + `
        stake: 1
  - start_round: 10
    validators:
      - pubkey: ` + keyC + `
        stake: 5
`))
	require.NoError(t, err)

	first, err := schedule.ValidatorsAt(9)
	require.NoError(t, err)
	require.Equal(t, 2, first.Len())
	require.Equal(t, uint64(3), first.TotalStake())
	require.Equal(t, keyA, first.Validators()[0].PublicKey.String(), "validators must be sorted by public key")

	second, err := schedule.ValidatorsAt(10)
	require.NoError(t, err)
	require.Equal(t, uint64(5), second.TotalStake())

	far, err := schedule.ValidatorsAt(1_000_000)
	require.NoError(t, err)
	require.Same(t, second, far)
}

func TestLoadRejectsMalformedSchedules(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "empty",
			yaml: "validator_schedule: []\n",
		},
		{
			name: "not starting at zero",
			yaml: "validator_schedule:\n  - start_round: 1\n    validators:\n      - pubkey: " + keyA + "\n        stake: 1\n",
		},
		{
			name: "gap",
			yaml: "validator_schedule:\n" +
				"  - start_round: 0\n    end_round: 4\n    validators:\n      - pubkey: " + keyA + "\n        stake: 1\n" +
				"  - start_round: 6\n    validators:\n      - pubkey: " + keyA + "\n        stake: 1\n",
		},
		{
			name: "open ended in the middle",
			yaml: "validator_schedule:\n" +
				"  - start_round: 0\n    validators:\n      - pubkey: " + keyA + "\n        stake: 1\n" +
				"  - start_round: 5\n    validators:\n      - pubkey: " + keyA + "\n        stake: 1\n",
		},
		{
			name: "zero stake",
			yaml: "validator_schedule:\n  - start_round: 0\n    validators:\n      - pubkey: " + keyA + "\n        stake: 0\n",
		},
		{
			name: "duplicate validator",
			yaml: "validator_schedule:\n  - start_round: 0\n    validators:\n" +
				"      - pubkey: " + keyA + "\n        stake: 1\n      - pubkey: " + keyA + "\n        stake: 1\n",
		},
		{
			name: "short key",
			yaml: "validator_schedule:\n  - start_round: 0\n    validators:\n      - pubkey: abcd\n        stake: 1\n",
		},
		{
			name: "unknown field",
			yaml: "validator_schedule:\n  - start_round: 0\n    weight: 3\n    validators:\n      - pubkey: " + keyA + "\n        stake: 1\n",
		},
	}

	for _, test := range tests {
		_, err := Load(strings.NewReader(test.yaml))
		require.Error(t, err, test.name)
	}
}

func TestValidatorsAtOutOfSchedule(t *testing.T) {
	end := uint64(3)
	schedule, err := New([]*Range{{
		StartRound: 0,
		EndRound:   &end,
		Validators: []*model.Validator{{PublicKey: model.PublicKey{1}, Stake: 1}},
	}})
	require.NoError(t, err)

	_, err = schedule.ValidatorsAt(3)
	require.NoError(t, err)
	_, err = schedule.ValidatorsAt(4)
	require.Error(t, err)
}

func TestLeaderRotation(t *testing.T) {
	validators := []*model.Validator{
		{PublicKey: model.PublicKey{3}, Stake: 1},
		{PublicKey: model.PublicKey{1}, Stake: 1},
		{PublicKey: model.PublicKey{2}, Stake: 1},
	}
	schedule, err := Static(validators)
	require.NoError(t, err)
	set, err := schedule.ValidatorsAt(0)
	require.NoError(t, err)

	for round, expected := range []byte{1, 2, 3, 1, 2} {
		require.Equal(t, expected, set.Leader(uint64(round)).PublicKey[0])
	}
}
