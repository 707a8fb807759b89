package pdf

import (
	"github.com/shaneholloman/libpdf-sub001/model"
	"github.com/shaneholloman/libpdf-sub001/pagetree"
	"github.com/shaneholloman/libpdf-sub001/security"
)

// decryptCallback is wired into the docreader.Reader on Load when an
// /Encrypt dict is present; it decrypts every String and Stream
// payload reachable from a freshly parsed indirect object, using that
// object's own (object_number, generation) for key mixing.
func (d *Document) decryptCallback(ref model.Ref, obj model.Object) (model.Object, error) {
	if err := decryptInPlace(d.security, ref.ObjectNumber, ref.Generation, obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func decryptInPlace(h *security.Handler, objNum uint32, gen uint16, obj model.Object) error {
	switch v := obj.(type) {
	case *model.String:
		dec, err := h.DecryptString(objNum, gen, v.Bytes)
		if err != nil {
			return err
		}
		v.Bytes = dec
	case *model.Array:
		for _, item := range v.Items() {
			if err := decryptInPlace(h, objNum, gen, item); err != nil {
				return err
			}
		}
	case *model.Dict:
		for _, k := range v.Keys() {
			val, _ := v.Get(k)
			if err := decryptInPlace(h, objNum, gen, val); err != nil {
				return err
			}
		}
	case *model.Stream:
		if !streamExemptFromCrypt(v.Dict) {
			dec, err := h.DecryptStream(objNum, gen, v.Raw)
			if err != nil {
				return err
			}
			v.Raw = dec
		}
		return decryptInPlace(h, objNum, gen, v.Dict)
	}
	return nil
}

// streamExemptFromCrypt reports whether a stream's filter chain opens
// with /Crypt, in which case the Standard handler leaves the payload
// untouched. Only the filter name is checked: the crypt filter named in
// /DecodeParms is not inspected, so any leading /Crypt is treated as
// /Identity.
func streamExemptFromCrypt(d *model.Dict) bool {
	f, ok := d.Get("Filter")
	if !ok {
		return false
	}
	first, ok := f.(model.Name)
	if !ok {
		if arr, ok := f.(*model.Array); ok && arr.Len() > 0 {
			first, ok = arr.At(0).(model.Name)
			if !ok {
				return false
			}
		} else {
			return false
		}
	}
	return first == "Crypt"
}

// Authenticate tries password as both the user and owner password.
// The state machine never mutates on a wrong password: authenticated
// stays false and AuthenticationFailedError is returned.
func (d *Document) Authenticate(password string) (authenticated bool, isOwner bool, err error) {
	if d.security == nil {
		return true, true, nil
	}
	ok, owner := d.security.Authenticate(password)
	if !ok {
		return false, false, &AuthenticationFailedError{}
	}
	if d.pages == nil {
		if catalog, err := d.catalogDict(); err == nil {
			if pagesRef, ok := catalog.GetOr("Pages").(model.Ref); ok {
				d.pages = pagetree.Build(pagesRef, d.resolve)
				d.Warnings = append(d.Warnings, d.pages.Warnings...)
			}
		}
	}
	return true, owner, nil
}

// HasOwnerAccess reports whether the document is either unencrypted or
// has been authenticated with the owner password.
func (d *Document) HasOwnerAccess() bool {
	if d.security == nil {
		return true
	}
	return d.security.IsAuthenticated() && d.security.IsOwner()
}

// SecurityInfo summarises the active (or absent) security handler.
type SecurityInfo struct {
	Encrypted     bool
	Authenticated bool
	IsOwner       bool
	Algorithm     security.Algorithm
}

func (d *Document) GetSecurity() SecurityInfo {
	if d.security == nil {
		return SecurityInfo{}
	}
	return SecurityInfo{
		Encrypted:     true,
		Authenticated: d.security.IsAuthenticated(),
		IsOwner:       d.security.IsOwner(),
		Algorithm:     d.security.Algorithm(),
	}
}

// allPermissions is returned by GetPermissions for an unencrypted
// document: every named bit granted.
const allPermissions = security.PermPrint | security.PermModify | security.PermCopy |
	security.PermAnnotate | security.PermFillForms | security.PermAccessibility |
	security.PermAssemble | security.PermPrintHighQuality

func (d *Document) GetPermissions() security.Permissions {
	if d.security == nil {
		return allPermissions
	}
	return d.security.P
}

// ProtectionOptions configures SetProtection: new user/owner passwords
// and the permission bits to grant.
type ProtectionOptions struct {
	UserPassword    string
	OwnerPassword   string
	Permissions     security.Permissions
	EncryptMetadata bool
}

// RemoveProtection queues encryption removal for the next Save. It
// requires owner access on an already-encrypted document.
func (d *Document) RemoveProtection() error {
	if !d.HasOwnerAccess() {
		return &PermissionDeniedError{Op: "remove_protection"}
	}
	d.pendingSecurity = pendingRemove
	return nil
}

// SetProtection queues a fresh AES-256 encryption setup for the next
// Save. It requires owner access (or no existing encryption at all).
func (d *Document) SetProtection(opts ProtectionOptions) error {
	if !d.HasOwnerAccess() {
		return &PermissionDeniedError{Op: "set_protection"}
	}
	d.pendingSecurity = pendingEncrypt
	d.pendingOpts = opts
	return nil
}

// CanSaveIncrementally reports whether the next Save can append rather
// than rewrite, and if not, names the reason (mirroring the strings a
// caller is expected to branch on: "brute-force-recovery",
// "no-original-bytes", "linearized", "protection-change").
func (d *Document) CanSaveIncrementally() (bool, string) {
	if d.pendingSecurity != pendingNone {
		return false, "protection-change"
	}
	if d.xref == nil || d.xref.RecoveredViaBruteForce {
		return false, "brute-force-recovery"
	}
	if d.original == nil {
		return false, "no-original-bytes"
	}
	if detectLinearized(d.original) {
		return false, "linearized"
	}
	return true, ""
}
