package security

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"

	"github.com/shaneholloman/libpdf-sub001/model"
)

// GenerateEncryption builds a fresh Standard security handler for
// AES-256 (V5/R6): it derives O/U/OE/UE/Perms from the given passwords
// and permission bits, the encryption-time dual of authenticateR6.
// The returned Handler is already authenticated with owner access,
// ready to encrypt a document being saved.
func GenerateEncryption(userPassword, ownerPassword string, perms Permissions, encryptMetadata bool, fileID []byte) (*Handler, *model.Dict, error) {
	fileKey := make([]byte, 32)
	if _, err := randRead(fileKey); err != nil {
		return nil, nil, err
	}

	salts := make([]byte, 32)
	if _, err := randRead(salts); err != nil {
		return nil, nil, err
	}
	uValidationSalt, uKeySalt := salts[0:8], salts[8:16]
	oValidationSalt, oKeySalt := salts[16:24], salts[24:32]

	upw := truncatePassword(userPassword)
	opw := truncatePassword(ownerPassword)

	uHash := hashR6(upw, uValidationSalt, nil)
	u := concatBytes(uHash, uValidationSalt, uKeySalt)
	uInterKey := hashR6(upw, uKeySalt, nil)
	ue, err := aesCBCNoPadEncrypt(uInterKey, fileKey)
	if err != nil {
		return nil, nil, err
	}

	oHash := hashR6(opw, oValidationSalt, u)
	o := concatBytes(oHash, oValidationSalt, oKeySalt)
	oInterKey := hashR6(opw, oKeySalt, u)
	oe, err := aesCBCNoPadEncrypt(oInterKey, fileKey)
	if err != nil {
		return nil, nil, err
	}

	permsBlock := make([]byte, 16)
	binary.LittleEndian.PutUint32(permsBlock[0:4], uint32(perms.asInt32()))
	permsBlock[4], permsBlock[5], permsBlock[6], permsBlock[7] = 0xff, 0xff, 0xff, 0xff
	if encryptMetadata {
		permsBlock[8] = 'T'
	} else {
		permsBlock[8] = 'F'
	}
	copy(permsBlock[9:12], []byte{0x61, 0x64, 0x62}) // "adb"
	encPerms, err := aesCBCNoPadEncrypt(fileKey, permsBlock)
	if err != nil {
		return nil, nil, err
	}

	h := &Handler{
		V: 5, R: 6, KeyLengthBytes: 32, EncryptMetadata: encryptMetadata,
		O: o, U: u, OE: oe, UE: ue, Perms: encPerms,
		P: perms, FileID: fileID, StmIsAES: true, StrIsAES: true,
	}
	h.commit(fileKey, true)

	d := model.NewDict()
	d.Set("Filter", model.NameOf("Standard"))
	d.Set("V", model.Number(5))
	d.Set("R", model.Number(6))
	d.Set("Length", model.Number(256))
	d.Set("O", model.NewLiteralString(o))
	d.Set("U", model.NewLiteralString(u))
	d.Set("OE", model.NewLiteralString(oe))
	d.Set("UE", model.NewLiteralString(ue))
	d.Set("P", model.Number(perms.asInt32()))
	d.Set("Perms", model.NewLiteralString(encPerms))

	stdCF := model.NewDict()
	stdCF.Set("CFM", model.NameOf("AESV3"))
	stdCF.Set("AuthEvent", model.NameOf("DocOpen"))
	stdCF.Set("Length", model.Number(32))
	cf := model.NewDict()
	cf.Set("StdCF", stdCF)
	d.Set("CF", cf)
	d.Set("StmF", model.NameOf("StdCF"))
	d.Set("StrF", model.NameOf("StdCF"))
	if !encryptMetadata {
		d.Set("EncryptMetadata", model.False)
	}

	return h, d, nil
}

func truncatePassword(pw string) []byte {
	b := []byte(pw)
	if len(b) > 127 {
		b = b[:127]
	}
	return b
}

func concatBytes(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// aesCBCNoPadEncrypt is the encryption-side counterpart of
// aesCBCNoPadDecrypt: a zero-IV CBC pass over block-aligned plaintext.
// For the single-block Perms field this is equivalent to ECB; the
// 32-byte file key wrapped into UE/OE is two zero-IV CBC blocks.
func aesCBCNoPadEncrypt(key, plaintext []byte) ([]byte, error) {
	if len(plaintext)%aes.BlockSize != 0 {
		return nil, errors.New("security: plaintext not block aligned")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, aes.BlockSize)
	out := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plaintext)
	return out, nil
}
