package pdf

import (
	"bytes"
	"testing"

	"github.com/shaneholloman/libpdf-sub001/model"
	"github.com/shaneholloman/libpdf-sub001/registry"
	"github.com/shaneholloman/libpdf-sub001/security"
	"github.com/shaneholloman/libpdf-sub001/writer"
)

// buildMinimalPDF assembles a one-page, unencrypted document from
// scratch via package writer, the same way writer_test.go does, so pdf
// package tests have a real byte stream to Load without depending on a
// fixture file.
func buildMinimalPDF(t *testing.T) []byte {
	t.Helper()
	reg := registry.New()

	page := model.NewDict()
	page.Set("Type", model.NameOf("Page"))
	page.Set("MediaBox", model.NewArray(model.Number(0), model.Number(0), model.Number(612), model.Number(792)))
	pageRef := reg.Register(page)

	pages := model.NewDict()
	pages.Set("Type", model.NameOf("Pages"))
	pages.Set("Kids", model.NewArray(pageRef))
	pages.Set("Count", model.Number(1))
	pagesRef := reg.Register(pages)
	page.Set("Parent", pagesRef)

	catalog := model.NewDict()
	catalog.Set("Type", model.NameOf("Catalog"))
	catalog.Set("Pages", pagesRef)
	rootRef := reg.Register(catalog)

	res, err := writer.Save(writer.Input{
		Registry: reg,
		RootRef:  rootRef,
		Version:  "1.7",
	}, writer.Options{})
	if err != nil {
		t.Fatalf("building fixture: %v", err)
	}
	return res.Bytes
}

func TestLoadSaveRoundTrip(t *testing.T) {
	data := buildMinimalPDF(t)

	doc, err := Load(data, Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Version() != "1.7" {
		t.Fatalf("Version = %q, want 1.7", doc.Version())
	}
	if doc.PageCount() != 1 {
		t.Fatalf("PageCount = %d, want 1", doc.PageCount())
	}
	if len(doc.Warnings) != 0 {
		t.Fatalf("unexpected warnings on clean load: %v", doc.Warnings)
	}

	saved, err := doc.Save(SaveOptions{})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Load(saved, Options{})
	if err != nil {
		t.Fatalf("reloading saved document: %v", err)
	}
	if reloaded.PageCount() != 1 {
		t.Fatalf("reloaded PageCount = %d, want 1", reloaded.PageCount())
	}
	if _, err := reloaded.GetPage(0); err != nil {
		t.Fatalf("GetPage(0) on reloaded document: %v", err)
	}
}

func TestIncrementalSavePreservesPrefixAndChainsTitle(t *testing.T) {
	data := buildMinimalPDF(t)

	doc, err := Load(data, Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	doc.SetTitle("Modified")

	saved, err := doc.Save(SaveOptions{Incremental: true})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !bytes.HasPrefix(saved, data) {
		t.Fatal("incremental save did not preserve the original byte prefix")
	}
	if !bytes.Contains(saved, []byte("/Prev")) {
		t.Fatal("incremental save missing /Prev in its trailer")
	}

	reloaded, err := Load(saved, Options{})
	if err != nil {
		t.Fatalf("reloading incrementally saved document: %v", err)
	}
	if got := reloaded.GetTitle(); got != "Modified" {
		t.Fatalf("GetTitle() = %q, want %q", got, "Modified")
	}
}

func TestCanSaveIncrementallyReasons(t *testing.T) {
	data := buildMinimalPDF(t)
	doc, err := Load(data, Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if ok, reason := doc.CanSaveIncrementally(); !ok {
		t.Fatalf("expected a clean load to allow incremental save, got reason %q", reason)
	}

	doc.xref.RecoveredViaBruteForce = true
	if ok, reason := doc.CanSaveIncrementally(); ok || reason != "brute-force-recovery" {
		t.Fatalf("got (%v, %q), want (false, brute-force-recovery)", ok, reason)
	}
	doc.xref.RecoveredViaBruteForce = false

	saved := doc.original
	doc.original = nil
	if ok, reason := doc.CanSaveIncrementally(); ok || reason != "no-original-bytes" {
		t.Fatalf("got (%v, %q), want (false, no-original-bytes)", ok, reason)
	}
	doc.original = saved

	if err := doc.SetProtection(ProtectionOptions{UserPassword: "x"}); err != nil {
		t.Fatalf("SetProtection: %v", err)
	}
	if ok, reason := doc.CanSaveIncrementally(); ok || reason != "protection-change" {
		t.Fatalf("got (%v, %q), want (false, protection-change)", ok, reason)
	}
	doc.pendingSecurity = pendingNone
}

func TestDetectLinearized(t *testing.T) {
	if detectLinearized([]byte("%PDF-1.7\n1 0 obj\n<< /Type /Catalog >>\nendobj")) {
		t.Fatal("ordinary document misdetected as linearized")
	}
	if !detectLinearized([]byte("%PDF-1.7\n1 0 obj\n<< /Linearized 1 /L 1234 >>\nendobj")) {
		t.Fatal("linearized dictionary not detected")
	}
}

func TestEncryptionRoundTripAndPermissions(t *testing.T) {
	data := buildMinimalPDF(t)
	doc, err := Load(data, Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	perms := security.PermPrint | security.PermFillForms
	if err := doc.SetProtection(ProtectionOptions{
		UserPassword:    "secret",
		OwnerPassword:   "admin",
		Permissions:     perms,
		EncryptMetadata: true,
	}); err != nil {
		t.Fatalf("SetProtection: %v", err)
	}

	saved, err := doc.Save(SaveOptions{})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Load(saved, Options{})
	if err != nil {
		t.Fatalf("reloading encrypted document: %v", err)
	}

	info := reloaded.GetSecurity()
	if !info.Encrypted {
		t.Fatal("expected reloaded document to report Encrypted")
	}
	if info.Algorithm != security.AlgorithmAES_256 {
		t.Fatalf("Algorithm = %q, want AES-256", info.Algorithm)
	}
	if info.Authenticated {
		t.Fatal("document should not be authenticated immediately after load")
	}
	if reloaded.HasOwnerAccess() {
		t.Fatal("unauthenticated document must not report owner access")
	}

	if ok, _, err := reloaded.Authenticate("not-it"); ok || err == nil {
		t.Fatalf("wrong password unexpectedly succeeded: ok=%v err=%v", ok, err)
	}
	if reloaded.HasOwnerAccess() {
		t.Fatal("owner access must remain false after a failed authentication attempt")
	}

	ok, isOwner, err := reloaded.Authenticate("secret")
	if err != nil || !ok || isOwner {
		t.Fatalf("user password auth = (%v, %v, %v), want (true, false, nil)", ok, isOwner, err)
	}
	if got := reloaded.GetPermissions(); got&security.PermPrint == 0 {
		t.Fatal("expected PermPrint to be granted")
	}
	if got := reloaded.GetPermissions(); got&security.PermCopy != 0 {
		t.Fatal("expected PermCopy to be denied")
	}

	reloaded2, err := Load(saved, Options{})
	if err != nil {
		t.Fatalf("reloading encrypted document a second time: %v", err)
	}
	ok, isOwner, err = reloaded2.Authenticate("admin")
	if err != nil || !ok || !isOwner {
		t.Fatalf("owner password auth = (%v, %v, %v), want (true, true, nil)", ok, isOwner, err)
	}
	if !reloaded2.HasOwnerAccess() {
		t.Fatal("expected owner access after authenticating with the owner password")
	}
}

func TestRemoveProtection(t *testing.T) {
	data := buildMinimalPDF(t)
	doc, err := Load(data, Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := doc.SetProtection(ProtectionOptions{UserPassword: "u", OwnerPassword: "o", EncryptMetadata: true}); err != nil {
		t.Fatalf("SetProtection: %v", err)
	}
	encrypted, err := doc.Save(SaveOptions{})
	if err != nil {
		t.Fatalf("Save (encrypt): %v", err)
	}

	reloaded, err := Load(encrypted, Options{})
	if err != nil {
		t.Fatalf("Load encrypted: %v", err)
	}
	if _, _, err := reloaded.Authenticate("o"); err != nil {
		t.Fatalf("Authenticate owner: %v", err)
	}
	if err := reloaded.RemoveProtection(); err != nil {
		t.Fatalf("RemoveProtection: %v", err)
	}
	plain, err := reloaded.Save(SaveOptions{})
	if err != nil {
		t.Fatalf("Save (remove protection): %v", err)
	}

	final, err := Load(plain, Options{})
	if err != nil {
		t.Fatalf("Load final: %v", err)
	}
	if final.GetSecurity().Encrypted {
		t.Fatal("expected encryption to be removed")
	}
	if !final.HasOwnerAccess() {
		t.Fatal("an unencrypted document always has owner access")
	}
}

func TestGetAttachmentsEmptyByDefault(t *testing.T) {
	data := buildMinimalPDF(t)
	doc, err := Load(data, Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	atts, err := doc.GetAttachments()
	if err != nil {
		t.Fatalf("GetAttachments: %v", err)
	}
	if len(atts) != 0 {
		t.Fatalf("expected no attachments, got %d", len(atts))
	}
}
