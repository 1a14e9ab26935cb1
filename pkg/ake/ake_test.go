package ake

import (
	"bytes"
	"testing"

	"github.com/otrv3/otr/pkg/crypto"
	"github.com/otrv3/otr/pkg/wire"
)

func TestAKEFullHandshake(t *testing.T) {
	aliceKey, err := crypto.GenerateLongTermKeyPair()
	if err != nil {
		t.Fatalf("GenerateLongTermKeyPair (alice): %v", err)
	}
	bobKey, err := crypto.GenerateLongTermKeyPair()
	if err != nil {
		t.Fatalf("GenerateLongTermKeyPair (bob): %v", err)
	}

	alice := NewAuthContext(RoleInitiator, aliceKey, wire.VersionThree, 0x01, 0x02)
	bob := NewAuthContext(RoleResponder, bobKey, wire.VersionThree, 0x02, 0x01)

	commit, err := alice.StartInitiator()
	if err != nil {
		t.Fatalf("StartInitiator: %v", err)
	}

	dhKey, yielded, err := bob.ReceiveDHCommit(commit)
	if err != nil {
		t.Fatalf("bob.ReceiveDHCommit: %v", err)
	}
	if yielded {
		t.Fatal("bob should not yield; bob never started as initiator")
	}

	revealSig, err := alice.ReceiveDHKey(dhKey)
	if err != nil {
		t.Fatalf("alice.ReceiveDHKey: %v", err)
	}

	sigMsg, err := bob.ReceiveRevealSignature(revealSig)
	if err != nil {
		t.Fatalf("bob.ReceiveRevealSignature: %v", err)
	}

	if err := alice.ReceiveSignature(sigMsg); err != nil {
		t.Fatalf("alice.ReceiveSignature: %v", err)
	}

	if !alice.IsDone() || !bob.IsDone() {
		t.Fatal("both sides should be done")
	}

	if alice.RemoteDHPublic().Cmp(bob.LocalDHKeyPair().DHPublicKey()) != 0 {
		t.Fatal("alice's view of bob's DH public key disagrees with bob's own")
	}
	if bob.RemoteDHPublic().Cmp(alice.LocalDHKeyPair().DHPublicKey()) != 0 {
		t.Fatal("bob's view of alice's DH public key disagrees with alice's own")
	}

	if !bytes.Equal(alice.RemoteLongTermPublicKey(), bobKey.Public) {
		t.Fatal("alice did not learn bob's long-term public key")
	}
	if !bytes.Equal(bob.RemoteLongTermPublicKey(), aliceKey.Public) {
		t.Fatal("bob did not learn alice's long-term public key")
	}
}

func TestAKERejectsTamperedRevealSignatureMAC(t *testing.T) {
	aliceKey, _ := crypto.GenerateLongTermKeyPair()
	bobKey, _ := crypto.GenerateLongTermKeyPair()

	alice := NewAuthContext(RoleInitiator, aliceKey, wire.VersionThree, 0x01, 0x02)
	bob := NewAuthContext(RoleResponder, bobKey, wire.VersionThree, 0x02, 0x01)

	commit, err := alice.StartInitiator()
	if err != nil {
		t.Fatalf("StartInitiator: %v", err)
	}
	dhKey, _, err := bob.ReceiveDHCommit(commit)
	if err != nil {
		t.Fatalf("ReceiveDHCommit: %v", err)
	}
	revealSig, err := alice.ReceiveDHKey(dhKey)
	if err != nil {
		t.Fatalf("ReceiveDHKey: %v", err)
	}

	revealSig.MACofSig[0] ^= 0xff

	if _, err := bob.ReceiveRevealSignature(revealSig); err != ErrBadMAC {
		t.Fatalf("expected ErrBadMAC, got %v", err)
	}
}

func TestAKECommitCollisionResolvesToOneWinner(t *testing.T) {
	aliceKey, _ := crypto.GenerateLongTermKeyPair()
	bobKey, _ := crypto.GenerateLongTermKeyPair()

	alice := NewAuthContext(RoleInitiator, aliceKey, wire.VersionThree, 0x01, 0x02)
	bob := NewAuthContext(RoleInitiator, bobKey, wire.VersionThree, 0x02, 0x01)

	aliceCommit, err := alice.StartInitiator()
	if err != nil {
		t.Fatalf("alice.StartInitiator: %v", err)
	}
	bobCommit, err := bob.StartInitiator()
	if err != nil {
		t.Fatalf("bob.StartInitiator: %v", err)
	}

	aliceDHKey, aliceYielded, err := alice.ReceiveDHCommit(bobCommit)
	if err != nil {
		t.Fatalf("alice.ReceiveDHCommit: %v", err)
	}
	bobDHKey, bobYielded, err := bob.ReceiveDHCommit(aliceCommit)
	if err != nil {
		t.Fatalf("bob.ReceiveDHCommit: %v", err)
	}

	if aliceYielded == bobYielded {
		t.Fatalf("exactly one side should yield, got alice=%v bob=%v", aliceYielded, bobYielded)
	}
	if !aliceYielded && aliceDHKey == nil {
		t.Fatal("winning side should produce a DH-Key message")
	}
	if !bobYielded && bobDHKey == nil {
		t.Fatal("winning side should produce a DH-Key message")
	}
}
