package executioncoordinator

import (
	"github.com/treegraph/tgraphd/domain/consensus/database/serialization"
	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
)

var accountKeyPrefix = []byte("account-")

func accountKey(address externalapi.DomainAddress) []byte {
	key := make([]byte, 0, len(accountKeyPrefix)+externalapi.DomainAddressSize)
	key = append(key, accountKeyPrefix...)
	return append(key, address[:]...)
}

// stateView reads accounts at a base version and records every write in a
// change set that becomes the next version
type stateView struct {
	dbContext   model.DBReader
	stateStore  model.StateStore
	baseVersion uint64
	changeSet   *model.StateChangeSet
}

func newStateView(dbContext model.DBReader, stateStore model.StateStore, baseVersion uint64) *stateView {
	return &stateView{
		dbContext:   dbContext,
		stateStore:  stateStore,
		baseVersion: baseVersion,
		changeSet:   model.NewStateChangeSet(),
	}
}

func (sv *stateView) Account(address externalapi.DomainAddress) (*externalapi.Account, error) {
	key := accountKey(address)
	accountBytes, isDeleted, isTouched := sv.changeSet.Get(key)
	if isTouched {
		if isDeleted {
			return externalapi.NewEmptyAccount(), nil
		}
		return serialization.BytesToAccount(accountBytes)
	}
	return readAccount(sv.dbContext, sv.stateStore, sv.baseVersion, address)
}

func (sv *stateView) SetAccount(address externalapi.DomainAddress, account *externalapi.Account) {
	key := accountKey(address)
	if account.IsEmpty() {
		sv.changeSet.Delete(key)
		return
	}
	sv.changeSet.Set(key, serialization.AccountToBytes(account))
}

func readAccount(dbContext model.DBReader, stateStore model.StateStore, version uint64,
	address externalapi.DomainAddress) (*externalapi.Account, error) {

	accountBytes, found, err := stateStore.Get(dbContext, version, accountKey(address))
	if err != nil {
		return nil, err
	}
	if !found {
		return externalapi.NewEmptyAccount(), nil
	}
	return serialization.BytesToAccount(accountBytes)
}
