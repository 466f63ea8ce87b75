package model

import "github.com/treegraph/tgraphd/domain/consensus/model/externalapi"

// Multiset is an incremental set hash over state entries
type Multiset interface {
	Add(data []byte)
	Remove(data []byte)
	Hash() *externalapi.DomainHash
	Serialize() []byte
	Clone() Multiset
}
