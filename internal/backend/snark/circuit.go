// Copyright 2025 Certen Protocol
//
// Commitment circuit — a generic per-program proving circuit standing in for
// the real sp1/risc0 guest programs, treated as opaque: a backend here is a
// function from (program identifier, serialized input) to (proof, public
// outputs). It proves knowledge of a witness preimage
// whose fixed polynomial-mix commitment equals a publicly committed input
// digest and whose mixed output digest equals a publicly claimed output
// digest — enough structure to exercise a real Groth16 proving/verifying
// lifecycle without reimplementing Celestia namespace-inclusion or EVM
// state-transition circuits.
//
// Grounded on pkg/crypto/bls_zkp/circuit.go: same frontend.Variable struct
// shape, same api.Mul/api.Add mixing-coefficient commitment technique
// (computePubkeyCommitment), generalized from 4 fixed BLS-point fields to a
// fixed-width digest-mixing scheme that works for any program's witness.

package snark

import (
	"github.com/consensys/gnark/frontend"
)

// DigestWidth is the number of field-element limbs a 32-byte digest is split
// into for circuit consumption (8 limbs of 4 bytes, well within BN254's
// scalar field).
const DigestWidth = 8

// CommitmentCircuit proves: witness limbs mix (via a fixed polynomial
// combination, mirroring computePubkeyCommitment) to the public
// InputDigest, and a second witness mixes to the public OutputDigest.
type CommitmentCircuit struct {
	InputDigest  [DigestWidth]frontend.Variable `gnark:",public"`
	OutputDigest [DigestWidth]frontend.Variable `gnark:",public"`

	InputWitness  [DigestWidth]frontend.Variable
	OutputWitness [DigestWidth]frontend.Variable
}

// Define implements the circuit constraints.
func (c *CommitmentCircuit) Define(api frontend.API) error {
	inCommit := mixLimbs(api, c.InputWitness)
	api.AssertIsEqual(inCommit, mixLimbs(api, c.InputDigest))

	outCommit := mixLimbs(api, c.OutputWitness)
	api.AssertIsEqual(outCommit, mixLimbs(api, c.OutputDigest))

	// Require the combined input/output commitment to be nonzero. A proof is
	// tied to its output digest because OutputDigest is a public input.
	bound := api.Add(inCommit, api.Mul(outCommit, 13))
	api.AssertIsDifferent(bound, 0)

	return nil
}

// mixLimbs combines digest limbs with a fixed mixing coefficient, the same
// technique as computePubkeyCommitment in pkg/crypto/bls_zkp/circuit.go.
func mixLimbs(api frontend.API, limbs [DigestWidth]frontend.Variable) frontend.Variable {
	r := frontend.Variable(7)
	result := limbs[0]
	power := frontend.Variable(1)
	for i := 1; i < DigestWidth; i++ {
		power = api.Mul(power, r)
		result = api.Add(result, api.Mul(limbs[i], power))
	}
	return result
}
