package fetchlib

import (
	"crypto/des"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"

	"golang.org/x/crypto/md4"
)

// NTLM message framing (NTLMv1 over HTTP): three-message handshake of
// negotiate (Type 1), server challenge (Type 2) and authenticate
// (Type 3). All integers are little-endian.

const ntlmSignature = "NTLMSSP\x00"

const (
	ntlmNegotiateUnicode   = 0x00000001
	ntlmNegotiateOEM       = 0x00000002
	ntlmRequestTarget      = 0x00000004
	ntlmNegotiateNTLMKey   = 0x00000200
	ntlmNegotiateAlwaysSig = 0x00008000
)

// ntlmType1 builds the client negotiation message. The domain is
// advertised so the server can scope its challenge.
func ntlmType1(domain string) []byte {
	domain = strings.ToUpper(domain)
	flags := uint32(ntlmNegotiateUnicode | ntlmNegotiateOEM | ntlmRequestTarget | ntlmNegotiateNTLMKey | ntlmNegotiateAlwaysSig)

	msg := make([]byte, 32+len(domain))
	copy(msg, ntlmSignature)
	binary.LittleEndian.PutUint32(msg[8:], 1)
	binary.LittleEndian.PutUint32(msg[12:], flags)
	// domain security buffer (OEM charset in Type 1)
	putSecBuffer(msg[16:], len(domain), 32)
	copy(msg[32:], domain)
	// workstation security buffer left empty
	putSecBuffer(msg[24:], 0, 32+len(domain))
	return msg
}

// ntlmParseType2 extracts the 8-byte server challenge from a Type 2
// message.
func ntlmParseType2(msg []byte) ([]byte, error) {
	if len(msg) < 32 || string(msg[:8]) != ntlmSignature {
		return nil, errors.New("not an NTLM message")
	}
	if typ := binary.LittleEndian.Uint32(msg[8:]); typ != 2 {
		return nil, fmt.Errorf("unexpected NTLM message type %d", typ)
	}
	challenge := make([]byte, 8)
	copy(challenge, msg[24:32])
	return challenge, nil
}

// ntlmType3 builds the authenticate message answering the server
// challenge. The NT response is derived from the MD4 hash of the
// UTF-16LE password; the same response is sent in the LM slot, which
// avoids ever transmitting the weaker LM hash.
func ntlmType3(username, password, domain string, challenge []byte) ([]byte, error) {
	ntResp, err := ntlmResponse(ntowf(password), challenge)
	if err != nil {
		return nil, err
	}
	lmResp := ntResp

	domainU := utf16le(strings.ToUpper(domain))
	userU := utf16le(username)
	wksU := utf16le("")

	const headerLen = 64
	off := headerLen
	msg := make([]byte, headerLen, headerLen+len(domainU)+len(userU)+len(wksU)+len(lmResp)+len(ntResp))
	copy(msg, ntlmSignature)
	binary.LittleEndian.PutUint32(msg[8:], 3)

	putSecBuffer(msg[28:], len(domainU), off)
	msg = append(msg, domainU...)
	off += len(domainU)

	putSecBuffer(msg[36:], len(userU), off)
	msg = append(msg, userU...)
	off += len(userU)

	putSecBuffer(msg[44:], len(wksU), off)
	msg = append(msg, wksU...)
	off += len(wksU)

	putSecBuffer(msg[12:], len(lmResp), off)
	msg = append(msg, lmResp...)
	off += len(lmResp)

	putSecBuffer(msg[20:], len(ntResp), off)
	msg = append(msg, ntResp...)
	off += len(ntResp)

	// session key security buffer left empty
	putSecBuffer(msg[52:], 0, off)
	binary.LittleEndian.PutUint32(msg[60:], ntlmNegotiateUnicode|ntlmNegotiateNTLMKey)
	return msg, nil
}

// putSecBuffer writes an NTLM security buffer descriptor: length,
// allocated length and offset of the payload within the message.
func putSecBuffer(b []byte, n, offset int) {
	binary.LittleEndian.PutUint16(b[0:], uint16(n))
	binary.LittleEndian.PutUint16(b[2:], uint16(n))
	binary.LittleEndian.PutUint32(b[4:], uint32(offset))
}

// ntowf is the NT one-way function: MD4 over the UTF-16LE password.
func ntowf(password string) []byte {
	h := md4.New()
	h.Write(utf16le(password))
	return h.Sum(nil)
}

// ntlmResponse pads the 16-byte hash to 21 bytes, splits it into three
// 7-byte DES keys and encrypts the server challenge under each.
func ntlmResponse(hash, challenge []byte) ([]byte, error) {
	padded := make([]byte, 21)
	copy(padded, hash)
	resp := make([]byte, 0, 24)
	for i := 0; i < 3; i++ {
		block, err := des.NewCipher(expandDESKey(padded[i*7 : i*7+7]))
		if err != nil {
			return nil, err
		}
		out := make([]byte, 8)
		block.Encrypt(out, challenge)
		resp = append(resp, out...)
	}
	return resp, nil
}

// expandDESKey spreads 7 key bytes over 8 bytes with a parity bit per
// byte, as DES key scheduling expects.
func expandDESKey(key7 []byte) []byte {
	key := make([]byte, 8)
	key[0] = key7[0]
	key[1] = key7[0]<<7 | key7[1]>>1
	key[2] = key7[1]<<6 | key7[2]>>2
	key[3] = key7[2]<<5 | key7[3]>>3
	key[4] = key7[3]<<4 | key7[4]>>4
	key[5] = key7[4]<<3 | key7[5]>>5
	key[6] = key7[5]<<2 | key7[6]>>6
	key[7] = key7[6] << 1
	for i := range key {
		key[i] = setOddParity(key[i])
	}
	return key
}

func setOddParity(b byte) byte {
	popcount := 0
	for i := 1; i < 8; i++ {
		if b&(1<<i) != 0 {
			popcount++
		}
	}
	if popcount%2 == 0 {
		return b | 1
	}
	return b &^ 1
}

func utf16le(s string) []byte {
	codes := utf16.Encode([]rune(s))
	b := make([]byte, 2*len(codes))
	for i, c := range codes {
		binary.LittleEndian.PutUint16(b[i*2:], c)
	}
	return b
}
