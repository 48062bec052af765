package selector

import "testing"

func TestVRFProveVerifyRoundTrip(t *testing.T) {
	provider, err := NewVRFProvider()
	if err != nil {
		t.Fatalf("NewVRFProvider: %v", err)
	}
	message := []byte("epoch-42")

	proof, err := provider.Prove(message)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if !Verify(provider.PublicKey(), message, proof) {
		t.Error("Verify rejected a proof produced by the matching key over the same message")
	}
}

func TestVRFVerifyRejectsWrongMessage(t *testing.T) {
	provider, err := NewVRFProvider()
	if err != nil {
		t.Fatalf("NewVRFProvider: %v", err)
	}
	proof, err := provider.Prove([]byte("epoch-42"))
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if Verify(provider.PublicKey(), []byte("epoch-43"), proof) {
		t.Error("Verify accepted a proof against a different message")
	}
}

func TestVRFVerifyRejectsWrongKey(t *testing.T) {
	p1, err := NewVRFProvider()
	if err != nil {
		t.Fatalf("NewVRFProvider p1: %v", err)
	}
	p2, err := NewVRFProvider()
	if err != nil {
		t.Fatalf("NewVRFProvider p2: %v", err)
	}
	message := []byte("epoch-42")
	proof, err := p1.Prove(message)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if Verify(p2.PublicKey(), message, proof) {
		t.Error("Verify accepted a proof under the wrong validator's public key")
	}
}

func TestProofToPriorityDeterministicForSameProof(t *testing.T) {
	provider, err := NewVRFProvider()
	if err != nil {
		t.Fatalf("NewVRFProvider: %v", err)
	}
	proof, err := provider.Prove([]byte("epoch-1"))
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	p1 := ProofToPriority(proof, 500_00000000)
	p2 := ProofToPriority(proof, 500_00000000)
	if p1.Cmp(p2) != 0 {
		t.Error("ProofToPriority should be a pure function of (proof, stake)")
	}
}
