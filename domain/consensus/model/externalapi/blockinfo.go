package externalapi

// StateRootStatus describes whether a block's deferred state root matches
// the commitment of the epoch it refers to
type StateRootStatus byte

const (
	// StateRootStatusUnknown indicates that the referred epoch is not executed yet
	StateRootStatusUnknown StateRootStatus = iota

	// StateRootStatusValid indicates that the declared root matches the executed commitment
	StateRootStatusValid

	// StateRootStatusInvalid indicates that the declared root differs from the executed commitment
	StateRootStatusInvalid
)

var stateRootStatusStrings = map[StateRootStatus]string{
	StateRootStatusUnknown: "Unknown",
	StateRootStatusValid:   "Valid",
	StateRootStatusInvalid: "Invalid",
}

func (s StateRootStatus) String() string {
	return stateRootStatusStrings[s]
}

// BlockInfo contains various information about a specific block
type BlockInfo struct {
	Exists          bool
	Height          uint64
	SubtreeWeight   uint64
	HasEpoch        bool
	Epoch           uint64
	IsPivot         bool
	IsFinalized     bool
	StateRootStatus StateRootStatus
}

// Clone returns a clone of BlockInfo
func (bi *BlockInfo) Clone() *BlockInfo {
	clone := *bi
	return &clone
}
