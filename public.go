// Copyright 2024 The tpm2engine Authors.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

import (
	"fmt"

	"github.com/canonical-labs/tpm2engine/internal/errkind"
	"github.com/canonical-labs/tpm2engine/mu"
)

// Algorithm identifiers for the object types PublicArea can describe.
// These are AlgorithmId values, not a separate enum, since on the wire
// they occupy the same TPM_ALG_ID space as hash and scheme algorithms.
const (
	AlgorithmRSA  AlgorithmId = 0x0001
	AlgorithmNull AlgorithmId = 0x0010
	AlgorithmECC  AlgorithmId = 0x0023
)

// ObjectAttributes is the 32-bit attribute bitmask carried by a
// PublicArea (TPMA_OBJECT). Only the bits this engine's callers need are
// named; unnamed bits still round-trip through Marshal/Unmarshal
// unchanged.
type ObjectAttributes uint32

const (
	AttrFixedTPM            ObjectAttributes = 1 << 1
	AttrFixedParent         ObjectAttributes = 1 << 4
	AttrSensitiveDataOrigin ObjectAttributes = 1 << 5
	AttrUserWithAuth        ObjectAttributes = 1 << 6
	AttrDecryptObj          ObjectAttributes = 1 << 17
	AttrSignEncrypt         ObjectAttributes = 1 << 18
)

func (a ObjectAttributes) Marshal(w *mu.Writer) error {
	return wrapMarshal(w.PutUint32(uint32(a)))
}

func (a *ObjectAttributes) Unmarshal(r *mu.Reader) error {
	v, err := r.GetUint32()
	if err != nil {
		return wrapUnmarshal(err)
	}
	*a = ObjectAttributes(v)
	return nil
}

// PublicParams is the TPMU_PUBLIC_PARMS tagged union: the algorithm-
// specific parameter block of a PublicArea. Which concrete type is valid
// is determined entirely by the enclosing PublicArea's Type field — there
// is no separate discriminant inside the union itself, so unlike a plain
// Marshaler/Unmarshaler pair, decoding a PublicParams always goes through
// unmarshalPublicParams(alg, r) rather than a bare Unmarshal call.
type PublicParams interface {
	mu.Marshaler
	publicParamsAlgorithm() AlgorithmId
}

// RSAParams is the TPMS_RSA_PARMS variant of PublicParams.
type RSAParams struct {
	KeyBits  uint16
	Exponent uint32
}

func (RSAParams) publicParamsAlgorithm() AlgorithmId { return AlgorithmRSA }

func (p RSAParams) Marshal(w *mu.Writer) error {
	if err := w.PutUint16(p.KeyBits); err != nil {
		return wrapMarshal(err)
	}
	return wrapMarshal(w.PutUint32(p.Exponent))
}

func unmarshalRSAParams(r *mu.Reader) (RSAParams, error) {
	var p RSAParams
	bits, err := r.GetUint16()
	if err != nil {
		return p, wrapUnmarshal(err)
	}
	exp, err := r.GetUint32()
	if err != nil {
		return p, wrapUnmarshal(err)
	}
	p.KeyBits = bits
	p.Exponent = exp
	return p, nil
}

// ECCParams is the TPMS_ECC_PARMS variant of PublicParams, reduced to the
// fields this engine cares about (the curve identifier; symmetric and KDF
// scheme fields that real TPMs also carry here are out of scope).
type ECCParams struct {
	CurveID uint16
}

func (ECCParams) publicParamsAlgorithm() AlgorithmId { return AlgorithmECC }

func (p ECCParams) Marshal(w *mu.Writer) error {
	return wrapMarshal(w.PutUint16(p.CurveID))
}

func unmarshalECCParams(r *mu.Reader) (ECCParams, error) {
	var p ECCParams
	curve, err := r.GetUint16()
	if err != nil {
		return p, wrapUnmarshal(err)
	}
	p.CurveID = curve
	return p, nil
}

func unmarshalPublicParams(alg AlgorithmId, r *mu.Reader) (PublicParams, error) {
	switch alg {
	case AlgorithmRSA:
		return unmarshalRSAParams(r)
	case AlgorithmECC:
		return unmarshalECCParams(r)
	default:
		return nil, wrapUnmarshal(fmt.Errorf("%w: unsupported object type 0x%04x", errkind.UnmarshalInvalidValue, alg))
	}
}

// PublicArea is a TPMT_PUBLIC: an object's type, name algorithm,
// attributes, authorization policy digest, algorithm-specific parameters,
// and public key material. Decoding threads Type through to select which
// PublicParams variant to parse, exactly the tagged-union pattern the wire
// format uses throughout (capabilities, schemes, and names all work the
// same way). Unique is read as a plain sized buffer for every Type.
type PublicArea struct {
	Type       AlgorithmId
	NameAlg    HashAlgorithmId
	Attrs      ObjectAttributes
	AuthPolicy Digest
	Params     PublicParams
	Unique     Buffer
}

func (p PublicArea) Marshal(w *mu.Writer) error {
	if err := p.Type.Marshal(w); err != nil {
		return err
	}
	if err := p.NameAlg.Marshal(w); err != nil {
		return err
	}
	if err := p.Attrs.Marshal(w); err != nil {
		return err
	}
	if err := p.AuthPolicy.Marshal(w); err != nil {
		return err
	}
	if p.Params == nil || p.Params.publicParamsAlgorithm() != p.Type {
		return wrapMarshal(fmt.Errorf("%w: public area parameters do not match declared type 0x%04x", errkind.MarshalInvalidValue, p.Type))
	}
	if err := p.Params.Marshal(w); err != nil {
		return err
	}
	return p.Unique.Marshal(w)
}

func (p *PublicArea) Unmarshal(r *mu.Reader) error {
	if err := p.Type.Unmarshal(r); err != nil {
		return err
	}
	if err := p.NameAlg.Unmarshal(r); err != nil {
		return err
	}
	if err := p.Attrs.Unmarshal(r); err != nil {
		return err
	}
	if err := p.AuthPolicy.Unmarshal(r); err != nil {
		return err
	}
	params, err := unmarshalPublicParams(p.Type, r)
	if err != nil {
		return err
	}
	p.Params = params
	return p.Unique.Unmarshal(r)
}
