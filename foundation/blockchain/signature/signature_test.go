package signature_test

import (
	"errors"
	"testing"

	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	from     = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
)

// =============================================================================

func Test_Signing(t *testing.T) {
	value := struct {
		Name string
	}{
		Name: "Bill",
	}

	t.Log("Given the need to sign and verify data.")
	{
		pk, err := crypto.HexToECDSA(pkHexKey)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a private key: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to generate a private key.", success)

		sig, err := signature.Sign(value, pk)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign data: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to sign data.", success)

		pub := signature.PublicKeyBytes(&pk.PublicKey)
		if len(pub) != 33 {
			t.Fatalf("\t%s\tShould get a compressed public key: got %d bytes", failed, len(pub))
		}

		if err := signature.Verify(value, sig, pub); err != nil {
			t.Fatalf("\t%s\tShould be able to verify the signature: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to verify the signature.", success)

		addr, err := signature.Address(pub)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to derive the address: %s", failed, err)
		}

		if addr != from {
			t.Logf("\t\tgot: %s", addr)
			t.Logf("\t\texp: %s", from)
			t.Fatalf("\t%s\tShould get back the right address.", failed)
		}
		t.Logf("\t%s\tShould get back the right address.", success)

		if signature.PrivateKeyAddress(pk) != from {
			t.Fatalf("\t%s\tShould get the same address from the private key.", failed)
		}
		t.Logf("\t%s\tShould get the same address from the private key.", success)
	}
}

func Test_VerifyTampered(t *testing.T) {
	type payload struct {
		Name  string
		Value uint64
	}

	t.Log("Given the need to reject signatures over modified data.")
	{
		pk, err := crypto.HexToECDSA(pkHexKey)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a private key: %s", failed, err)
		}

		sig, err := signature.Sign(payload{Name: "Bill", Value: 10}, pk)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign data: %s", failed, err)
		}

		pub := signature.PublicKeyBytes(&pk.PublicKey)

		err = signature.Verify(payload{Name: "Bill", Value: 11}, sig, pub)
		if !errors.Is(err, signature.ErrInvalidSignature) {
			t.Fatalf("\t%s\tShould fail to verify modified data: %v", failed, err)
		}
		t.Logf("\t%s\tShould fail to verify modified data.", success)

		other, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a second key: %s", failed, err)
		}

		err = signature.Verify(payload{Name: "Bill", Value: 10}, sig, signature.PublicKeyBytes(&other.PublicKey))
		if !errors.Is(err, signature.ErrInvalidSignature) {
			t.Fatalf("\t%s\tShould fail to verify with the wrong key: %v", failed, err)
		}
		t.Logf("\t%s\tShould fail to verify with the wrong key.", success)

		if err := signature.Verify(payload{}, sig[:10], pub); !errors.Is(err, signature.ErrInvalidSignature) {
			t.Fatalf("\t%s\tShould fail on a short signature: %v", failed, err)
		}
		t.Logf("\t%s\tShould fail on a short signature.", success)
	}
}

func Test_Hash(t *testing.T) {
	value := struct {
		Name string
	}{
		Name: "Bill",
	}

	t.Log("Given the need to hash values deterministically.")
	{
		h1 := signature.Hash(value)
		if len(h1) != 64 {
			t.Fatalf("\t%s\tShould get a 64 character hash: got %d", failed, len(h1))
		}
		t.Logf("\t%s\tShould get a 64 character hash.", success)

		h2 := signature.Hash(value)
		if h1 != h2 {
			t.Logf("\t\tgot: %s", h2)
			t.Logf("\t\texp: %s", h1)
			t.Fatalf("\t%s\tShould get back the same hash twice.", failed)
		}
		t.Logf("\t%s\tShould get back the same hash twice.", success)

		value.Name = "Ale"
		if signature.Hash(value) == h1 {
			t.Fatalf("\t%s\tShould get a different hash for different data.", failed)
		}
		t.Logf("\t%s\tShould get a different hash for different data.", success)

		m1 := map[string]int{"a": 1, "b": 2, "c": 3}
		m2 := map[string]int{"c": 3, "b": 2, "a": 1}
		if signature.Hash(m1) != signature.Hash(m2) {
			t.Fatalf("\t%s\tShould hash maps independent of insertion order.", failed)
		}
		t.Logf("\t%s\tShould hash maps independent of insertion order.", success)
	}
}
