// Copyright 2024 The tpm2engine Authors.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

import "github.com/canonical-labs/tpm2engine/mu"

// pcrBankSize is the fixed number of PCRs this package supports, and
// pcrSelectBytes the fixed byte width of a PCRSelection's bit vector
// (24 PCRs packed 8 to a byte). The TPM wire format allows a variable
// byte count here; this package only supports banks that fit in 3 bytes,
// matching every TPM this engine targets.
const (
	pcrBankSize    = 24
	pcrSelectBytes = 3
)

// PCRSelection is a bitmask of up to 24 PCR indices, encoded on the wire
// as a byte count followed by that many bytes of bit vector (TPMS_PCR_SELECT).
type PCRSelection [pcrBankSize]bool

func (p PCRSelection) Marshal(w *mu.Writer) error {
	var bytes [pcrSelectBytes]byte
	for i, set := range p {
		if set {
			bytes[i/8] |= 1 << uint(i%8)
		}
	}
	if err := w.PutUint8(pcrSelectBytes); err != nil {
		return wrapMarshal(err)
	}
	return wrapMarshal(w.PutRaw(bytes[:]))
}

func (p *PCRSelection) Unmarshal(r *mu.Reader) error {
	n, err := r.GetUint8()
	if err != nil {
		return wrapUnmarshal(err)
	}
	data, err := r.GetRaw(int(n))
	if err != nil {
		return wrapUnmarshal(err)
	}
	var out PCRSelection
	for i, b := range data {
		for bit := 0; bit < 8; bit++ {
			if b&(1<<uint(bit)) == 0 {
				continue
			}
			idx := i*8 + bit
			if idx >= pcrBankSize {
				return PCRTooLargeError(idx)
			}
			out[idx] = true
		}
	}
	*p = out
	return nil
}

// Set marks pcr as selected. It panics if pcr is out of range, since that
// indicates a programming error in the caller rather than a wire-format
// problem.
func (p *PCRSelection) Set(pcr int) {
	p[pcr] = true
}

// IsEmpty reports whether no PCR is selected.
func (p PCRSelection) IsEmpty() bool {
	for _, set := range p {
		if set {
			return false
		}
	}
	return true
}

// PCRSelectionEntry pairs a PCRSelection with the hash bank it selects
// from (TPMS_PCR_SELECTION).
type PCRSelectionEntry struct {
	Hash   HashAlgorithmId
	Select PCRSelection
}

func (e PCRSelectionEntry) Marshal(w *mu.Writer) error {
	if err := e.Hash.Marshal(w); err != nil {
		return err
	}
	return e.Select.Marshal(w)
}

func (e *PCRSelectionEntry) Unmarshal(r *mu.Reader) error {
	if err := e.Hash.Unmarshal(r); err != nil {
		return err
	}
	return e.Select.Unmarshal(r)
}

// PCRSelectionList is a TPML_PCR_SELECTION: one PCRSelectionEntry per hash
// bank of interest.
type PCRSelectionList []PCRSelectionEntry

func (l PCRSelectionList) Marshal(w *mu.Writer) error {
	return mu.MarshalList(w, []PCRSelectionEntry(l))
}

func (l *PCRSelectionList) Unmarshal(r *mu.Reader) error {
	v, err := mu.UnmarshalList[PCRSelectionEntry](r)
	if err != nil {
		return err
	}
	*l = v
	return nil
}
