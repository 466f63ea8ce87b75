package externalapi

import (
	"encoding/hex"

	"github.com/pkg/errors"
)

// DomainAddressSize is the size of an account address
const DomainAddressSize = 20

// DomainAddress identifies an account in the execution state
type DomainAddress [DomainAddressSize]byte

// NewDomainAddressFromString parses a hex-encoded address
func NewDomainAddressFromString(addressString string) (DomainAddress, error) {
	var address DomainAddress
	addressBytes, err := hex.DecodeString(addressString)
	if err != nil {
		return address, errors.WithStack(err)
	}
	if len(addressBytes) != DomainAddressSize {
		return address, errors.Errorf("address length is %d, while it should be %d",
			len(addressBytes), DomainAddressSize)
	}
	copy(address[:], addressBytes)
	return address, nil
}

// String returns the address as a hexadecimal string
func (address DomainAddress) String() string {
	return hex.EncodeToString(address[:])
}
