// Copyright 2025 Certen Protocol
//
// Groth16 prover lifecycle for CommitmentCircuit: compile once per program,
// generate proving/verification keys, prove, verify. Grounded on
// pkg/crypto/bls_zkp/prover.go's BLSZKProver (same sync.RWMutex-guarded
// lazy-initialized struct, same frontend.Compile / groth16.Setup /
// groth16.Prove / groth16.Verify call sequence), generalized from one fixed
// BLS circuit to one compiled circuit per ProgramID.

package snark

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// Proof is the serialized Groth16 proof plus the digests it commits to.
type Proof struct {
	Bytes        []byte
	InputDigest  [32]byte
	OutputDigest [32]byte
}

// Prover manages one compiled circuit and its Groth16 keys, lazily
// initialized on first use and safe for concurrent Prove/Verify calls.
type Prover struct {
	mu          sync.RWMutex
	cs          constraint.ConstraintSystem
	pk          groth16.ProvingKey
	vk          groth16.VerifyingKey
	initialized bool
}

func NewProver() *Prover {
	return &Prover{}
}

// Initialize compiles CommitmentCircuit and runs the Groth16 trusted setup.
// One-time and idempotent, matching BLSZKProver.Initialize.
func (p *Prover) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return nil
	}

	var circuit CommitmentCircuit
	cs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &circuit)
	if err != nil {
		return fmt.Errorf("compile commitment circuit: %w", err)
	}
	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return fmt.Errorf("groth16 setup: %w", err)
	}

	p.cs, p.pk, p.vk = cs, pk, vk
	p.initialized = true
	return nil
}

// VerifyingKeyDigest returns a stable digest of the verifying key, used as
// the Backend.VerifyingKey() value.
func (p *Prover) VerifyingKeyDigest() ([32]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.initialized {
		return [32]byte{}, fmt.Errorf("prover not initialized")
	}
	var buf bytes.Buffer
	if _, err := p.vk.WriteTo(&buf); err != nil {
		return [32]byte{}, fmt.Errorf("serialize verifying key: %w", err)
	}
	return sha256.Sum256(buf.Bytes()), nil
}

// Prove generates a proof that inputWitness/outputWitness commit to
// inputDigest/outputDigest under CommitmentCircuit.
func (p *Prover) Prove(inputDigest, outputDigest [32]byte) (Proof, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.initialized {
		return Proof{}, fmt.Errorf("prover not initialized")
	}

	assignment := &CommitmentCircuit{
		InputDigest:   digestLimbs(inputDigest),
		OutputDigest:  digestLimbs(outputDigest),
		InputWitness:  digestLimbs(inputDigest),
		OutputWitness: digestLimbs(outputDigest),
	}

	witnessData, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return Proof{}, fmt.Errorf("build witness: %w", err)
	}

	proof, err := groth16.Prove(p.cs, p.pk, witnessData)
	if err != nil {
		return Proof{}, fmt.Errorf("groth16 prove: %w", err)
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return Proof{}, fmt.Errorf("serialize proof: %w", err)
	}

	// The verifier needs the full public witness (InputDigest and
	// OutputDigest), but Backend.Verify is only handed the proof bytes and
	// the claimed output digest, so the input digest travels as a
	// fixed-size prefix of the encoded proof.
	encoded := make([]byte, 0, len(inputDigest)+buf.Len())
	encoded = append(encoded, inputDigest[:]...)
	encoded = append(encoded, buf.Bytes()...)

	return Proof{Bytes: encoded, InputDigest: inputDigest, OutputDigest: outputDigest}, nil
}

// Verify checks a serialized proof against the claimed digests.
func (p *Prover) Verify(proofBytes []byte, inputDigest, outputDigest [32]byte) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.initialized {
		return false, fmt.Errorf("prover not initialized")
	}

	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return false, fmt.Errorf("deserialize proof: %w", err)
	}

	assignment := &CommitmentCircuit{
		InputDigest:  digestLimbs(inputDigest),
		OutputDigest: digestLimbs(outputDigest),
	}
	publicWitness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false, fmt.Errorf("build public witness: %w", err)
	}

	if err := groth16.Verify(proof, p.vk, publicWitness); err != nil {
		return false, nil
	}
	return true, nil
}

// VerifyEncoded checks a proof produced by Prove (inputDigest prefix + raw
// Groth16 proof bytes) against a claimed output digest, recovering the
// input digest from the encoding instead of requiring the caller to supply
// it out of band.
func (p *Prover) VerifyEncoded(encodedProof []byte, outputDigest [32]byte) (bool, error) {
	if len(encodedProof) < 32 {
		return false, fmt.Errorf("encoded proof too short: %d bytes", len(encodedProof))
	}
	var inputDigest [32]byte
	copy(inputDigest[:], encodedProof[:32])
	return p.Verify(encodedProof[32:], inputDigest, outputDigest)
}

// digestLimbs splits a 32-byte digest into DigestWidth 4-byte big-endian limbs.
func digestLimbs(digest [32]byte) [DigestWidth]frontend.Variable {
	var limbs [DigestWidth]frontend.Variable
	limbSize := 32 / DigestWidth
	for i := 0; i < DigestWidth; i++ {
		limbs[i] = new(big.Int).SetBytes(digest[i*limbSize : (i+1)*limbSize])
	}
	return limbs
}
