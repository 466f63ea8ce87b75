package dagconfig

import "testing"

func TestGenesisHashesDiffer(t *testing.T) {
	allParams := []*Params{&MainnetParams, &TestnetParams, &DevnetParams}
	for i, a := range allParams {
		if !a.GenesisBlock.Header.IsGenesis() {
			t.Fatalf("TestGenesisHashesDiffer: %s genesis has a parent", a.Name)
		}
		for _, b := range allParams[i+1:] {
			if a.GenesisHash.Equal(b.GenesisHash) {
				t.Fatalf("TestGenesisHashesDiffer: %s and %s share a genesis hash", a.Name, b.Name)
			}
		}
	}
}

func TestQuorumStake(t *testing.T) {
	tests := []struct {
		totalStake    uint64
		expectedStake uint64
	}{
		{totalStake: 4, expectedStake: 3},
		{totalStake: 3, expectedStake: 3},
		{totalStake: 100, expectedStake: 67},
		{totalStake: 1, expectedStake: 1},
	}
	for _, test := range tests {
		quorum := DevnetParams.QuorumStake(test.totalStake)
		if quorum != test.expectedStake {
			t.Fatalf("TestQuorumStake: total %d: expected quorum %d, got %d",
				test.totalStake, test.expectedStake, quorum)
		}
	}
}
