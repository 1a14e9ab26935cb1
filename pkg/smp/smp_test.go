package smp

import (
	"testing"

	"github.com/otrv3/otr/pkg/wire"
)

func runExchange(t *testing.T, initiatorSecret, responderSecret []byte, question string) (initiatorMatched, responderMatched bool) {
	t.Helper()

	initiator := NewSmpEngine()
	responder := NewSmpEngine()

	smp1, err := initiator.StartInitiator(initiatorSecret, question)
	if err != nil {
		t.Fatalf("StartInitiator: %v", err)
	}

	gotQuestion, err := responder.ReceiveSMP1(smp1)
	if err != nil {
		t.Fatalf("ReceiveSMP1: %v", err)
	}
	if gotQuestion != question {
		t.Fatalf("question mismatch: got %q want %q", gotQuestion, question)
	}

	smp2, err := responder.ContinueResponder(responderSecret)
	if err != nil {
		t.Fatalf("ContinueResponder: %v", err)
	}

	smp3, err := initiator.ReceiveSMP2(smp2)
	if err != nil {
		t.Fatalf("ReceiveSMP2: %v", err)
	}

	if err := responder.ReceiveSMP3(smp3); err != nil {
		t.Fatalf("ReceiveSMP3: %v", err)
	}

	im, iKnown := initiator.Result()
	rm, rKnown := responder.Result()
	if !iKnown || !rKnown {
		t.Fatal("expected both sides to know the result")
	}
	return im, rm
}

func TestSMPMatchingSecretsAgree(t *testing.T) {
	im, rm := runExchange(t, []byte("correct horse battery staple"), []byte("correct horse battery staple"), "favorite passphrase?")
	if !im || !rm {
		t.Fatalf("expected both sides to report a match, got initiator=%v responder=%v", im, rm)
	}
}

func TestSMPMismatchedSecretsDisagree(t *testing.T) {
	im, rm := runExchange(t, []byte("correct horse battery staple"), []byte("wrong guess"), "")
	if im || rm {
		t.Fatalf("expected both sides to report no match, got initiator=%v responder=%v", im, rm)
	}
}

func TestSMPAbortResetsEngine(t *testing.T) {
	initiator := NewSmpEngine()
	if _, err := initiator.StartInitiator([]byte("secret"), ""); err != nil {
		t.Fatalf("StartInitiator: %v", err)
	}
	tlv := initiator.Abort()
	if tlv.Type != wire.TLVTypeSMPAbort {
		t.Fatalf("Abort() TLV type = %d, want %d", tlv.Type, wire.TLVTypeSMPAbort)
	}
	if _, err := initiator.StartInitiator([]byte("secret"), ""); err != nil {
		t.Fatalf("expected engine to be reusable after Abort, got %v", err)
	}
}
