// Package security implements the Standard security handler:
// password authentication and per-object encryption/decryption for
// RC4-40, RC4-128, AES-128 and AES-256, following PDF 2.0 §7.6.4.
package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/rc4"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/shaneholloman/libpdf-sub001/model"
)

func randRead(b []byte) (int, error) { return rand.Read(b) }

// padding is the 32-byte standard password padding string (PDF 2.0
// table 21), used to pad short passwords up to 32 bytes.
var padding = [32]byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

// Permissions mirrors the /P bitfield. Bits 1, 2, 7, 8 and
// every unused high bit are required to be 1 by the format; callers
// only ever set the named bits below.
type Permissions uint32

const (
	PermPrint          Permissions = 1 << (3 - 1)
	PermModify         Permissions = 1 << (4 - 1)
	PermCopy           Permissions = 1 << (5 - 1)
	PermAnnotate       Permissions = 1 << (6 - 1)
	PermFillForms      Permissions = 1 << (9 - 1)
	PermAccessibility  Permissions = 1 << (10 - 1)
	PermAssemble       Permissions = 1 << (11 - 1)
	PermPrintHighQuality Permissions = 1 << (12 - 1)

	reservedOnesMask Permissions = 0xFFFFF0C0 // bits 1,2,7,8 and all unused high bits
)

func (p Permissions) asInt32() int32 {
	return int32(p | reservedOnesMask)
}

// Algorithm names the cipher in effect for an authenticated document.
type Algorithm string

const (
	AlgorithmRC4_40  Algorithm = "RC4-40"
	AlgorithmRC4_128 Algorithm = "RC4-128"
	AlgorithmAES_128 Algorithm = "AES-128"
	AlgorithmAES_256 Algorithm = "AES-256"
)

// Handler is an authenticated (or authentication-pending) instance of
// the Standard security handler for one document.
type Handler struct {
	V, R                int
	KeyLengthBytes       int
	EncryptMetadata      bool
	O, U                 []byte
	OE, UE               []byte
	Perms                []byte
	FileID               []byte
	P                    Permissions
	StmIsAES, StrIsAES   bool

	fileKey        []byte
	authenticated  bool
	isOwner        bool
}

// ErrNotAuthenticated is returned when an encrypted String or Stream
// is read before a successful Authenticate call.
var ErrNotAuthenticated = errors.New("security: document is not authenticated")

// AuthenticationFailedError distinguishes a load-time-tolerated state
// from an explicit failed password attempt.
type AuthenticationFailedError struct{}

func (*AuthenticationFailedError) Error() string { return "security: password matches neither user nor owner entry" }

// NewHandlerFromDict builds a Handler from a parsed /Encrypt dictionary
// plus the first element of the trailer /ID.
func NewHandlerFromDict(d *model.Dict, fileID []byte) (*Handler, error) {
	h := &Handler{FileID: fileID, EncryptMetadata: true}

	geti := func(key model.Name, dst *int) {
		if v, ok := d.Get(key); ok {
			if n, ok := v.(model.Number); ok {
				*dst = int(n)
			}
		}
	}
	geti("V", &h.V)
	geti("R", &h.R)

	lengthBits := 40
	geti("Length", &lengthBits)
	h.KeyLengthBytes = lengthBits / 8
	if h.KeyLengthBytes == 0 {
		h.KeyLengthBytes = 5
	}

	getstr := func(key model.Name) []byte {
		v, ok := d.Get(key)
		if !ok {
			return nil
		}
		s, ok := v.(*model.String)
		if !ok {
			return nil
		}
		return s.Bytes
	}
	h.O = getstr("O")
	h.U = getstr("U")
	h.OE = getstr("OE")
	h.UE = getstr("UE")
	h.Perms = getstr("Perms")

	if pv, ok := d.Get("P"); ok {
		if n, ok := pv.(model.Number); ok {
			h.P = Permissions(uint32(int32(n)))
		}
	}
	if em, ok := d.Get("EncryptMetadata"); ok {
		if b, ok := em.(model.Bool); ok {
			h.EncryptMetadata = bool(b)
		}
	}

	h.StmIsAES, h.StrIsAES = cryptFilterIsAES(d)

	if h.V == 0 {
		h.V = 1
	}
	if h.R == 0 {
		h.R = 2
	}
	if h.V == 1 {
		h.KeyLengthBytes = 5
	}
	if h.R >= 5 {
		h.KeyLengthBytes = 32
	}
	return h, nil
}

// cryptFilterIsAES inspects /CF, /StmF, /StrF to determine which
// transform (RC4 or AESV2/AESV3) applies to streams and strings
// respectively.
func cryptFilterIsAES(d *model.Dict) (stm, str bool) {
	cfDictObj, ok := d.Get("CF")
	if !ok {
		return false, false
	}
	cfDict, ok := cfDictObj.(*model.Dict)
	if !ok {
		return false, false
	}
	isAES := func(filterName model.Name) bool {
		if filterName == "Identity" {
			return false
		}
		cf, ok := cfDict.Get(filterName)
		if !ok {
			return false
		}
		cfd, ok := cf.(*model.Dict)
		if !ok {
			return false
		}
		cfm, _ := cfd.Get("CFM")
		n, _ := cfm.(model.Name)
		return n == "AESV2" || n == "AESV3"
	}
	stmF, _ := d.Get("StmF")
	strF, _ := d.Get("StrF")
	stmName, _ := stmF.(model.Name)
	strName, _ := strF.(model.Name)
	if stmName == "" {
		stmName = "Identity"
	}
	if strName == "" {
		strName = "Identity"
	}
	return isAES(stmName), isAES(strName)
}

func padPassword(pw string) [32]byte {
	var out [32]byte
	n := copy(out[:], []byte(pw))
	copy(out[n:], padding[:])
	return out
}

// Authenticate tries password first as the user password, then as the
// owner password, following the PDF algorithm for the handler's
// revision. It never mutates state on failure.
func (h *Handler) Authenticate(password string) (ok bool, isOwner bool) {
	if h.R >= 5 {
		return h.authenticateR6(password)
	}
	return h.authenticateLegacy(password)
}

func (h *Handler) authenticateLegacy(password string) (bool, bool) {
	if key, ok := h.tryUserPassword(password); ok {
		h.commit(key, false)
		return true, false
	}
	if userPW, key, ok := h.tryOwnerPassword(password); ok {
		_ = userPW
		h.commit(key, true)
		return true, true
	}
	return false, false
}

// tryUserPassword computes the file key candidate from password
// treated as the user password and checks it against /U.
func (h *Handler) tryUserPassword(password string) ([]byte, bool) {
	padded := padPassword(password)
	key := h.computeFileKey(padded)
	u := h.computeUHash(key)
	if h.R == 2 {
		return key, bytes.Equal(u, h.U)
	}
	// R>=3: only the first 16 bytes of /U are meaningful.
	want := h.U
	if len(want) > 16 {
		want = want[:16]
	}
	got := u
	if len(got) > 16 {
		got = got[:16]
	}
	return key, bytes.Equal(got, want)
}

// tryOwnerPassword recovers the user password from an owner-password
// candidate by inverting the /O computation, then re-checks it as a
// user password.
func (h *Handler) tryOwnerPassword(password string) (userPassword []byte, fileKey []byte, ok bool) {
	padded := padPassword(password)
	tmp := md5.Sum(padded[:])
	if h.R >= 3 {
		for i := 0; i < 50; i++ {
			tmp = md5.Sum(tmp[:h.KeyLengthBytes])
		}
	}
	rc4Key := tmp[:h.KeyLengthBytes]

	recovered := append([]byte(nil), h.O...)
	if len(recovered) > 32 {
		recovered = recovered[:32]
	}
	if h.R >= 3 {
		// Undo the 19 cascaded rounds first, then the base RC4 layer
		// (RC4 is self-inverse, so "decrypt" is the same XOR-stream
		// operation run in the reverse round order).
		xor19Decrypt(recovered, rc4Key)
	}
	c, _ := rc4.NewCipher(rc4Key)
	c.XORKeyStream(recovered, recovered)

	key := h.computeFileKey([32]byte(padBytes32(recovered)))
	u := h.computeUHash(key)
	want := h.U
	if h.R >= 3 {
		if len(want) > 16 {
			want = want[:16]
		}
		if len(u) > 16 {
			u = u[:16]
		}
	}
	return recovered, key, bytes.Equal(u, want)
}

func padBytes32(b []byte) []byte {
	out := make([]byte, 32)
	n := copy(out, b)
	copy(out[n:], padding[:])
	return out
}

// xor19Decrypt undoes xor19Encrypt's 19-round RC4-with-XORed-key
// scheme by running the rounds in reverse order; part of the R>=3
// owner-password recovery algorithm.
func xor19Decrypt(data []byte, key []byte) {
	for i := 19; i >= 1; i-- {
		roundKey := append([]byte(nil), key...)
		for j := range roundKey {
			roundKey[j] ^= byte(i)
		}
		c, _ := rc4.NewCipher(roundKey)
		c.XORKeyStream(data, data)
	}
}

// computeFileKey implements Algorithm 2 (ISO 32000-2 §7.6.4.3): derive
// the file encryption key from a 32-byte padded password, /O, /P,
// /ID[0] and, for R>=4 with metadata unencrypted, the extra 0xFFFFFFFF
// suffix.
func (h *Handler) computeFileKey(paddedPassword [32]byte) []byte {
	buf := append([]byte(nil), paddedPassword[:]...)
	buf = append(buf, h.O...)
	var pbuf [4]byte
	binary.LittleEndian.PutUint32(pbuf[:], uint32(h.P.asInt32()))
	buf = append(buf, pbuf[:]...)
	buf = append(buf, h.FileID...)
	if h.R >= 4 && !h.EncryptMetadata {
		buf = append(buf, 0xff, 0xff, 0xff, 0xff)
	}
	sum := md5.Sum(buf)
	key := sum[:h.KeyLengthBytes]
	if h.R >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(key)
			key = sum[:h.KeyLengthBytes]
		}
	}
	return append([]byte(nil), key...)
}

// computeUHash implements Algorithm 4/5: the /U validation value for a
// candidate file key.
func (h *Handler) computeUHash(key []byte) []byte {
	if h.R == 2 {
		out := make([]byte, 32)
		c, _ := rc4.NewCipher(key)
		c.XORKeyStream(out, padding[:])
		return out
	}
	buf := append([]byte(nil), padding[:]...)
	buf = append(buf, h.FileID...)
	sum := md5.Sum(buf)
	out := append([]byte(nil), sum[:]...)
	c, _ := rc4.NewCipher(key)
	c.XORKeyStream(out, out)
	xor19Encrypt(out, key)
	full := make([]byte, 32)
	copy(full, out)
	return full
}

func xor19Encrypt(data []byte, key []byte) {
	for i := 1; i <= 19; i++ {
		roundKey := append([]byte(nil), key...)
		for j := range roundKey {
			roundKey[j] ^= byte(i)
		}
		c, _ := rc4.NewCipher(roundKey)
		c.XORKeyStream(data, data)
	}
}

// authenticateR6 implements the AES-256 (R6) authentication algorithm
// (ISO 32000-2 §7.6.4.3.3/.4): SHA-256 validation hash, then AES-CBC
// decryption of /UE or /OE with a zero IV to recover the file key.
func (h *Handler) authenticateR6(password string) (bool, bool) {
	pw := []byte(password)
	if len(pw) > 127 {
		pw = pw[:127]
	}

	if len(h.U) >= 48 {
		validationSalt := h.U[32:40]
		keySalt := h.U[40:48]
		hash := hashR6(pw, validationSalt, nil)
		if bytes.Equal(hash, h.U[:32]) {
			interKey := hashR6(pw, keySalt, nil)
			key, ok := aesCBCNoPadDecrypt(interKey, h.UE)
			if ok {
				h.commit(key, false)
				return true, false
			}
		}
	}
	if len(h.O) >= 48 {
		validationSalt := h.O[32:40]
		keySalt := h.O[40:48]
		hash := hashR6(pw, validationSalt, h.U)
		if bytes.Equal(hash, h.O[:32]) {
			interKey := hashR6(pw, keySalt, h.U)
			key, ok := aesCBCNoPadDecrypt(interKey, h.OE)
			if ok {
				h.commit(key, true)
				return true, true
			}
		}
	}
	return false, false
}

// hashR6 implements algorithm 2.B: for R6 this is simply SHA-256 of
// password‖salt[‖udata]; revision 6 never needs the extended AES/SHA
// round-robin that only applies to ISO 32000-2's "hardened" variant
// some producers opt into, which this core does not attempt.
func hashR6(password, salt, udata []byte) []byte {
	h := sha256.New()
	h.Write(password)
	h.Write(salt)
	h.Write(udata)
	return h.Sum(nil)
}

func aesCBCNoPadDecrypt(key, ciphertext []byte) ([]byte, bool) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, false
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, false
	}
	iv := make([]byte, aes.BlockSize)
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return out, true
}

func (h *Handler) commit(fileKey []byte, isOwner bool) {
	h.fileKey = fileKey
	h.authenticated = true
	h.isOwner = isOwner
}

func (h *Handler) IsAuthenticated() bool { return h.authenticated }
func (h *Handler) IsOwner() bool         { return h.isOwner }

func (h *Handler) Algorithm() Algorithm {
	switch {
	case h.R >= 5:
		return AlgorithmAES_256
	case h.V == 4 && h.StmIsAES:
		return AlgorithmAES_128
	case h.KeyLengthBytes > 5:
		return AlgorithmRC4_128
	default:
		return AlgorithmRC4_40
	}
}

// objectKey derives the per-object key for (objNum, gen). R>=5 uses
// the file key directly with no mixing.
func (h *Handler) objectKey(objNum uint32, gen uint16, aesTransform bool) []byte {
	if h.R >= 5 {
		return h.fileKey
	}
	buf := append([]byte(nil), h.fileKey...)
	buf = append(buf, byte(objNum), byte(objNum>>8), byte(objNum>>16))
	buf = append(buf, byte(gen), byte(gen>>8))
	if aesTransform {
		buf = append(buf, 's', 'A', 'l', 'T')
	}
	sum := md5.Sum(buf)
	size := len(h.fileKey) + 5
	if size > 16 {
		size = 16
	}
	return sum[:size]
}

// DecryptString returns the decrypted bytes of a parsed literal/hex
// string in a new slice; before a successful Authenticate it returns
// ErrNotAuthenticated.
func (h *Handler) DecryptString(objNum uint32, gen uint16, data []byte) ([]byte, error) {
	if !h.authenticated {
		return nil, ErrNotAuthenticated
	}
	return h.transform(objNum, gen, h.StrIsAES, data)
}

// DecryptStream decrypts a stream's raw payload; streams whose filter
// chain starts with /Crypt /Identity are exempt and must not be passed
// here.
func (h *Handler) DecryptStream(objNum uint32, gen uint16, data []byte) ([]byte, error) {
	if !h.authenticated {
		return nil, ErrNotAuthenticated
	}
	return h.transform(objNum, gen, h.StmIsAES, data)
}

// EncryptString/EncryptStream are the serialiser-side inverse.
// RC4 is self-inverse; AES (R>=5, or an AES crypt filter below R5)
// takes its own CBC-encrypt path with a fresh random IV prepended to
// the output.
func (h *Handler) EncryptString(objNum uint32, gen uint16, data []byte) ([]byte, error) {
	if !h.authenticated {
		return nil, ErrNotAuthenticated
	}
	return h.transformForWrite(objNum, gen, h.StrIsAES, data)
}

func (h *Handler) EncryptStream(objNum uint32, gen uint16, data []byte) ([]byte, error) {
	if !h.authenticated {
		return nil, ErrNotAuthenticated
	}
	return h.transformForWrite(objNum, gen, h.StmIsAES, data)
}

func (h *Handler) transform(objNum uint32, gen uint16, aesTransform bool, data []byte) ([]byte, error) {
	if h.R >= 5 || aesTransform {
		return aesCBCDecryptWithIVPrefix(h.objectKey(objNum, gen, true), data)
	}
	key := h.objectKey(objNum, gen, false)
	out := make([]byte, len(data))
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: %w", err)
	}
	c.XORKeyStream(out, data)
	return out, nil
}

func (h *Handler) transformForWrite(objNum uint32, gen uint16, aesTransform bool, data []byte) ([]byte, error) {
	if h.R >= 5 || aesTransform {
		return aesCBCEncryptWithIVPrefix(h.objectKey(objNum, gen, true), data)
	}
	key := h.objectKey(objNum, gen, false)
	out := make([]byte, len(data))
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: %w", err)
	}
	c.XORKeyStream(out, data)
	return out, nil
}

// aesCBCDecryptWithIVPrefix: the first 16 bytes of data are the IV, the
// remainder is CBC ciphertext with PKCS-style padding on the last
// block.
func aesCBCDecryptWithIVPrefix(key, data []byte) ([]byte, error) {
	if len(data) < aes.BlockSize {
		return nil, errors.New("security: AES stream shorter than one block")
	}
	iv := data[:aes.BlockSize]
	ct := data[aes.BlockSize:]
	if len(ct)%aes.BlockSize != 0 {
		return nil, errors.New("security: AES ciphertext not block-aligned")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ct)
	if n := len(out); n > 0 {
		pad := int(out[n-1])
		if pad > 0 && pad <= aes.BlockSize && pad <= n {
			out = out[:n-pad]
		}
	}
	return out, nil
}

func aesCBCEncryptWithIVPrefix(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	pad := aes.BlockSize - len(data)%aes.BlockSize
	padded := append(append([]byte(nil), data...), bytes.Repeat([]byte{byte(pad)}, pad)...)

	iv := make([]byte, aes.BlockSize)
	if _, err := randRead(iv); err != nil {
		return nil, err
	}
	out := make([]byte, aes.BlockSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return out, nil
}
