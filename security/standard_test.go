package security

import (
	"crypto/md5"
	"crypto/rc4"
	"testing"

	"github.com/shaneholloman/libpdf-sub001/model"
)

// buildLegacyOU reproduces Algorithm 3 (O) and Algorithm 5 (U) for
// R>=3 directly, independent of the Handler under test, so the test
// has an authority to check the Handler against.
func buildLegacyOU(t *testing.T, userPW, ownerPW string, keyLen int, fileID []byte, perm Permissions) (o, u []byte, fileKey []byte) {
	t.Helper()
	padded := func(pw string) [32]byte {
		var out [32]byte
		n := copy(out[:], []byte(pw))
		copy(out[n:], padding[:])
		return out
	}
	up := padded(userPW)
	op := padded(ownerPW)

	tmp := md5.Sum(op[:])
	for i := 0; i < 50; i++ {
		tmp = md5.Sum(tmp[:keyLen])
	}
	ownerRC4Key := tmp[:keyLen]
	oOut := make([]byte, 32)
	c, _ := rc4.NewCipher(ownerRC4Key)
	c.XORKeyStream(oOut, up[:])
	xor19Encrypt(oOut, ownerRC4Key)

	buf := append([]byte(nil), up[:]...)
	buf = append(buf, oOut...)
	pbuf := []byte{byte(perm.asInt32()), byte(perm.asInt32() >> 8), byte(perm.asInt32() >> 16), byte(perm.asInt32() >> 24)}
	buf = append(buf, pbuf...)
	buf = append(buf, fileID...)
	sum := md5.Sum(buf)
	key := sum[:keyLen]
	for i := 0; i < 50; i++ {
		sum = md5.Sum(key)
		key = sum[:keyLen]
	}
	fileKey = append([]byte(nil), key...)

	uBuf := append([]byte(nil), padding[:]...)
	uBuf = append(uBuf, fileID...)
	uSum := md5.Sum(uBuf)
	uOut := append([]byte(nil), uSum[:]...)
	c2, _ := rc4.NewCipher(fileKey)
	c2.XORKeyStream(uOut, uOut)
	xor19Encrypt(uOut, fileKey)
	uFull := make([]byte, 32)
	copy(uFull, uOut)

	return oOut, uFull, fileKey
}

func TestAuthenticateLegacyUserAndOwnerPasswords(t *testing.T) {
	fileID := []byte("0123456789abcdef")
	perm := PermPrint | PermCopy
	o, u, _ := buildLegacyOU(t, "user", "owner", 16, fileID, perm)

	h := &Handler{
		V: 2, R: 3, KeyLengthBytes: 16,
		EncryptMetadata: true,
		O:               o,
		U:               u,
		FileID:          fileID,
		P:               perm,
	}

	ok, isOwner := h.Authenticate("wrong")
	if ok {
		t.Fatal("expected failure for wrong password")
	}

	h2 := *h
	ok, isOwner = h2.Authenticate("user")
	if !ok || isOwner {
		t.Fatalf("user auth: ok=%v isOwner=%v", ok, isOwner)
	}

	h3 := *h
	ok, isOwner = h3.Authenticate("owner")
	if !ok || !isOwner {
		t.Fatalf("owner auth: ok=%v isOwner=%v", ok, isOwner)
	}
}

func TestPerObjectRC4RoundTrip(t *testing.T) {
	h := &Handler{R: 3, KeyLengthBytes: 16, fileKey: []byte("0123456789abcdef"), authenticated: true}
	plain := []byte("the quick brown fox")
	enc, err := h.EncryptString(5, 0, plain)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := h.DecryptString(5, 0, enc)
	if err != nil {
		t.Fatal(err)
	}
	if string(dec) != string(plain) {
		t.Fatalf("got %q want %q", dec, plain)
	}
}

func TestPerObjectAESRoundTrip(t *testing.T) {
	h := &Handler{R: 4, KeyLengthBytes: 16, StmIsAES: true, fileKey: []byte("0123456789abcdef"), authenticated: true}
	plain := []byte("the quick brown fox jumps over the lazy dog")
	enc, err := h.EncryptStream(9, 0, plain)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := h.DecryptStream(9, 0, enc)
	if err != nil {
		t.Fatal(err)
	}
	if string(dec) != string(plain) {
		t.Fatalf("got %q want %q", dec, plain)
	}
}

func TestDecryptBeforeAuthenticationFails(t *testing.T) {
	h := &Handler{R: 3, KeyLengthBytes: 16}
	_, err := h.DecryptString(1, 0, []byte("x"))
	if err != ErrNotAuthenticated {
		t.Fatalf("got %v", err)
	}
}

func TestHandlerFromDictReadsFields(t *testing.T) {
	d := model.NewDict()
	d.Set("V", model.Number(2))
	d.Set("R", model.Number(3))
	d.Set("Length", model.Number(128))
	d.Set("O", model.NewLiteralString(make([]byte, 32)))
	d.Set("U", model.NewLiteralString(make([]byte, 32)))
	d.Set("P", model.Number(-44))

	h, err := NewHandlerFromDict(d, []byte("id"))
	if err != nil {
		t.Fatal(err)
	}
	if h.V != 2 || h.R != 3 || h.KeyLengthBytes != 16 {
		t.Fatalf("got %+v", h)
	}
}
