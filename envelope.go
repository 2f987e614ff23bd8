package keyringstore

import (
	"fmt"

	"github.com/open-source-cooperative/android-native-keyring-store/keystore"
)

// ivLen is the fixed IV length carried in every envelope. The cipher contract
// guarantees IVs of exactly this length.
const ivLen = keystore.IVLen

// encodeEnvelope serializes an IV and ciphertext into the stored wire format:
//
//	[iv_len: 1 byte][iv: iv_len bytes][ciphertext+tag]
//
// The cipher contractually produces ivLen-byte IVs; any other length is a
// defect inside this system, not bad input, and panics.
func encodeEnvelope(iv, ciphertext []byte) []byte {
	if len(iv) != ivLen {
		panic(fmt.Sprintf("cipher produced a %d-byte IV, contract requires %d", len(iv), ivLen))
	}
	envelope := make([]byte, 0, 1+len(iv)+len(ciphertext))
	envelope = append(envelope, byte(len(iv)))
	envelope = append(envelope, iv...)
	envelope = append(envelope, ciphertext...)
	return envelope
}

// decodeEnvelope splits stored bytes into IV and ciphertext, validating the
// framing. Authentication is not checked here; that is the cipher's job.
func decodeEnvelope(raw []byte) (iv, ciphertext []byte, err error) {
	if len(raw) == 0 {
		return nil, nil, &BadDataFormatError{Raw: raw, Reason: &MissingIvLenError{}}
	}
	declared := int(raw[0])
	if declared != ivLen {
		return nil, nil, &BadDataFormatError{Raw: raw, Reason: &InvalidIvLenError{Actual: declared}}
	}
	rest := raw[1:]
	if len(rest) <= declared {
		return nil, nil, &BadDataFormatError{Raw: raw, Reason: &DataTooSmallError{Len: len(rest)}}
	}
	return rest[:declared], rest[declared:], nil
}
