package model

import "sort"

// StateChangeSet is a set of key/value writes applied on top of a state
// version. A nil value deletes the key.
type StateChangeSet struct {
	changes map[string][]byte
}

// NewStateChangeSet returns an empty StateChangeSet
func NewStateChangeSet() *StateChangeSet {
	return &StateChangeSet{changes: make(map[string][]byte)}
}

// Set stages value for key
func (s *StateChangeSet) Set(key []byte, value []byte) {
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	s.changes[string(key)] = valueCopy
}

// Delete stages the removal of key
func (s *StateChangeSet) Delete(key []byte) {
	s.changes[string(key)] = nil
}

// Get returns the staged value of key and whether the key was touched at all
func (s *StateChangeSet) Get(key []byte) (value []byte, deleted bool, touched bool) {
	value, touched = s.changes[string(key)]
	return value, touched && value == nil, touched
}

// Len returns the number of touched keys
func (s *StateChangeSet) Len() int {
	return len(s.changes)
}

// SortedKeys returns the touched keys in ascending order
func (s *StateChangeSet) SortedKeys() [][]byte {
	keys := make([]string, 0, len(s.changes))
	for key := range s.changes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	sortedKeys := make([][]byte, len(keys))
	for i, key := range keys {
		sortedKeys[i] = []byte(key)
	}
	return sortedKeys
}
