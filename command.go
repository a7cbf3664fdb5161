// Copyright 2024 The tpm2engine Authors.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/canonical-labs/tpm2engine/mu"
)

// Command is implemented by a command's parameter type: the part of a
// command frame specific to one TPM operation.
type Command interface {
	mu.Marshaler
	CommandCode() CommandCode
	Handles() HandleList
}

// ResponseParams is implemented by a command's response parameter type.
type ResponseParams interface {
	mu.Unmarshaler
}

// RunCommand marshals cmd, attaches authList's authorizations, executes
// the resulting frame on device, and unmarshals the TPM's response
// parameters into resp. If the command returns a handle, pass
// responseHandle to receive it; pass nil for commands that don't.
//
// This is the sole place this package builds or parses a command frame;
// every typed wrapper (GetRandom, and any future one) funnels through it.
func RunCommand(device Device, cmd Command, authList AuthList, responseHandle *Handle, resp ResponseParams) error {
	if len(authList) > maxAuths {
		return TooManyAuthsError(len(authList))
	}

	tag := TagNoSessions
	if len(authList) > 0 {
		tag = TagSessions
	}

	w := mu.NewWriter(device.CommandBuf())

	// Step 1: reserve the 10-byte header hole; its tag, size, and code
	// fields are only known once everything after it has been written.
	headerOff, err := w.Reserve(headerSize)
	if err != nil {
		return wrapMarshal(err)
	}

	// Step 2: handle area.
	for _, h := range cmd.Handles() {
		if err := mu.PutFixed(w, h); err != nil {
			return err
		}
	}

	// Step 3: auth area, size-prefixed only when sessions are present.
	if tag == TagSessions {
		authSizeOff, err := w.Reserve(4)
		if err != nil {
			return wrapMarshal(err)
		}
		authStart := w.Off()
		if err := authList.marshal(w); err != nil {
			return err
		}
		w.PatchUint32(authSizeOff, uint32(w.Off()-authStart))
	}

	// Step 4: command parameters.
	if err := cmd.Marshal(w); err != nil {
		return err
	}

	// Step 5: patch the header now that the frame's total size is known.
	w.PatchUint16(headerOff, uint16(tag))
	w.PatchUint32(headerOff+2, uint32(w.Off()))
	w.PatchUint32(headerOff+6, uint32(cmd.CommandCode()))

	if glog.V(2) {
		glog.Infof("tpm2: > %s (%d bytes, %d auths)", cmd.CommandCode(), w.Off(), len(authList))
	}

	// Step 6: execute.
	response, err := device.Execute(w.Off())
	if err != nil {
		return err
	}
	defer response.Close()

	return parseResponse(response.Bytes(), tag, authList, responseHandle, resp)
}

func parseResponse(buf []byte, requestTag StructTag, authList AuthList, responseHandle *Handle, resp ResponseParams) error {
	r := mu.NewReader(buf)

	var tag StructTag
	if err := tag.unmarshal(r); err != nil {
		return err
	}
	if tag != requestTag {
		return UnmarshalError(UnmarshalInvalidValue, fmt.Errorf("response tag %s does not match request tag %s", tag, requestTag))
	}
	size, err := r.GetUint32()
	if err != nil {
		return wrapUnmarshal(err)
	}
	if int(size) != len(buf) {
		kind := UnmarshalBufferOverflow
		if int(size) < len(buf) {
			kind = UnmarshalBufferRemaining
		}
		return UnmarshalError(kind, fmt.Errorf("response header declared size %d, got a %d byte frame", size, len(buf)))
	}
	codeRaw, err := r.GetUint32()
	if err != nil {
		return wrapUnmarshal(err)
	}
	code := ResponseCode(codeRaw)

	if glog.V(2) {
		glog.Infof("tpm2: < tag %s, size %d, code 0x%03x", tag, size, uint32(code))
	}

	if code != ResponseSuccess {
		return TPMError(code)
	}

	if responseHandle != nil {
		if err := responseHandle.Unmarshal(r); err != nil {
			return err
		}
	}

	var paramsReader *mu.Reader
	if len(authList) > 0 {
		paramSize, err := r.GetUint32()
		if err != nil {
			return wrapUnmarshal(err)
		}
		paramBytes, err := r.GetRaw(int(paramSize))
		if err != nil {
			return wrapUnmarshal(err)
		}
		paramsReader = mu.NewReader(paramBytes)

		authResps := make([]authResponse, len(authList))
		for i := range authResps {
			if err := authResps[i].Unmarshal(r); err != nil {
				return err
			}
		}
		if err := authList.checkResponses(authResps); err != nil {
			return err
		}
	} else {
		paramsReader = mu.NewReader(r.Remaining())
	}

	if resp != nil {
		if err := resp.Unmarshal(paramsReader); err != nil {
			return err
		}
	}
	if paramsReader.Len() != 0 {
		return UnmarshalError(UnmarshalBufferRemaining, fmt.Errorf("%d trailing bytes after response parameters", paramsReader.Len()))
	}
	return nil
}

func (t *StructTag) unmarshal(r *mu.Reader) error {
	v, err := r.GetUint16()
	if err != nil {
		return wrapUnmarshal(err)
	}
	*t = StructTag(v)
	return nil
}
