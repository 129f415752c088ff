// Package nameservice reads the zblock/accounts folder and creates a name
// service lookup for the known addresses.
package nameservice

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

// NameService maintains a map of addresses for name lookup.
type NameService struct {
	addresses map[string]string
	names     map[string]string
}

// New constructs a name service with the keys found in the folder. The
// name is the key file name without the .ecdsa extension.
func New(root string) (*NameService, error) {
	ns := NameService{
		addresses: make(map[string]string),
		names:     make(map[string]string),
	}

	fn := func(fileName string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if d.IsDir() || filepath.Ext(fileName) != ".ecdsa" {
			return nil
		}

		privateKey, err := crypto.LoadECDSA(fileName)
		if err != nil {
			return fmt.Errorf("loading %s: %w", fileName, err)
		}

		address := signature.PrivateKeyAddress(privateKey)
		name := strings.TrimSuffix(filepath.Base(fileName), ".ecdsa")

		ns.addresses[strings.ToLower(address)] = name
		ns.names[name] = address

		return nil
	}

	if err := filepath.WalkDir(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Lookup returns the name for the specified address. Unknown addresses are
// returned unchanged.
func (ns *NameService) Lookup(address string) string {
	name, exists := ns.addresses[strings.ToLower(address)]
	if !exists {
		return address
	}
	return name
}

// Resolve returns the address for a name. Values that are not a known name
// are returned unchanged so an address can be passed through.
func (ns *NameService) Resolve(name string) string {
	address, exists := ns.names[name]
	if !exists {
		return name
	}
	return address
}

// Copy returns a copy of the map of names by address.
func (ns *NameService) Copy() map[string]string {
	cpy := make(map[string]string, len(ns.names))
	for name, address := range ns.names {
		cpy[address] = name
	}
	return cpy
}
