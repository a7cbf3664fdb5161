// Copyright 2024 The tpm2engine Authors.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

import (
	"fmt"

	"github.com/canonical-labs/tpm2engine/mu"
)

// CommandCodeGetRandom is TPM2_CC_GetRandom.
const CommandCodeGetRandom CommandCode = 0x0000017B

func (c CommandCode) String() string {
	switch c {
	case CommandCodeGetRandom:
		return "TPM2_GetRandom"
	default:
		return fmt.Sprintf("CommandCode(0x%08x)", uint32(c))
	}
}

type getRandomCommand struct {
	BytesRequested uint16
}

func (getRandomCommand) CommandCode() CommandCode { return CommandCodeGetRandom }
func (getRandomCommand) Handles() HandleList      { return nil }

func (c getRandomCommand) Marshal(w *mu.Writer) error {
	return wrapMarshal(w.PutUint16(c.BytesRequested))
}

type getRandomResponse struct {
	RandomBytes Digest
}

func (r *getRandomResponse) Unmarshal(reader *mu.Reader) error {
	return r.RandomBytes.Unmarshal(reader)
}

// GetRandom returns n bytes from the TPM's random number generator. The
// TPM caps how many bytes a single TPM2_GetRandom call can return (its
// response must fit a 16-bit sized buffer), so this gathers n bytes
// across as many calls as needed, each requesting at most 0xFFFF bytes.
func GetRandom(device Device, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("tpm2: GetRandom: negative length %d", n)
	}
	out := make([]byte, 0, n)
	for len(out) < n {
		remaining := n - len(out)
		req := remaining
		if req > 0xFFFF {
			req = 0xFFFF
		}

		cmd := getRandomCommand{BytesRequested: uint16(req)}
		var resp getRandomResponse
		if err := RunCommand(device, cmd, nil, nil, &resp); err != nil {
			return nil, err
		}
		if len(resp.RandomBytes) == 0 {
			return nil, fmt.Errorf("tpm2: GetRandom: TPM returned no data")
		}
		out = append(out, resp.RandomBytes...)
	}
	return out[:n], nil
}
