package pdf

import (
	"bytes"
	"crypto/rand"
	"fmt"

	"github.com/shaneholloman/libpdf-sub001/security"
	"github.com/shaneholloman/libpdf-sub001/writer"
	"github.com/shaneholloman/libpdf-sub001/xref"
)

// linearizedScanWindow bounds how far into the file detectLinearized
// looks for the first object's /Linearized key; the linearization
// dictionary is required to be the very first object in the file, well
// inside this window on any real producer's output.
const linearizedScanWindow = 2048

// detectLinearized reports whether buf looks like a linearized (fast
// web view) PDF: its first indirect object carries /Linearized. A
// linearized file's hint tables and part boundaries assume the exact
// original byte layout, so appending to it incrementally would leave a
// structurally invalid document even though the bytes parse.
func detectLinearized(buf []byte) bool {
	window := buf
	if len(window) > linearizedScanWindow {
		window = window[:linearizedScanWindow]
	}
	return bytes.Contains(window, []byte("/Linearized"))
}

// SaveOptions controls how Save serialises the document.
type SaveOptions struct {
	// Incremental requests an incremental (append-only) save. It is
	// downgraded to a full save whenever CanSaveIncrementally reports
	// false, with the reason recorded in Warnings.
	Incremental bool

	// UseXRefStream overrides the xref representation. Nil keeps the
	// original document's form.
	UseXRefStream *bool
}

// Save serialises the document, applying any queued protection change,
// and returns the resulting bytes. On success the Document's internal
// state (registry, xref, original bytes) is updated so a further Save
// call can chain correctly.
func (d *Document) Save(opts SaveOptions) ([]byte, error) {
	if err := d.materializeAll(); err != nil {
		return nil, err
	}

	canIncremental, reason := d.CanSaveIncrementally()
	incremental := opts.Incremental && canIncremental
	if opts.Incremental && !canIncremental {
		d.Warnings = append(d.Warnings, fmt.Sprintf("pdf: incremental save requested but not possible (%s); performing a full save", reason))
	}

	var encEntry *writer.EncryptEntry
	var cryptPtr *security.Handler
	id := d.id

	switch d.pendingSecurity {
	case pendingRemove:
		cryptPtr = nil
		encEntry = nil
	case pendingEncrypt:
		if id[0] == nil {
			fresh := make([]byte, 16)
			if _, err := rand.Read(fresh); err != nil {
				return nil, err
			}
			id[0] = fresh
			id[1] = append([]byte(nil), fresh...)
		}
		h, dict, err := security.GenerateEncryption(
			d.pendingOpts.UserPassword, d.pendingOpts.OwnerPassword,
			d.pendingOpts.Permissions, d.pendingOpts.EncryptMetadata, id[0])
		if err != nil {
			return nil, fmt.Errorf("pdf: generating encryption: %w", err)
		}
		ref := d.registry.Register(dict)
		encEntry = &writer.EncryptEntry{Ref: ref, Dict: dict}
		cryptPtr = h
	default:
		if d.encrypted {
			encEntry = &writer.EncryptEntry{Ref: d.encryptedEntry.Ref, Dict: d.encryptedEntry.Dict}
			cryptPtr = d.security
		}
	}

	in := writer.Input{
		Registry: d.registry,
		RootRef:  d.rootRef,
		InfoRef:  d.infoRef,
		HasInfo:  d.hasInfo,
		Version:  d.version,
		ID:       id,
		Encrypt:  encEntry,
		Original: d.original,
		XRef:     d.xref,
	}
	if cryptPtr != nil {
		in.Crypt = cryptPtr
	}

	res, err := writer.Save(in, writer.Options{Incremental: incremental, UseXRefStream: opts.UseXRefStream})
	if err != nil {
		return nil, err
	}
	d.Warnings = append(d.Warnings, res.Warnings...)

	d.registry.Commit()
	d.id = id
	switch d.pendingSecurity {
	case pendingRemove:
		d.security = nil
		d.encrypted = false
		d.encryptedEntry = RefAndDict{}
	case pendingEncrypt:
		d.security = cryptPtr
		d.encrypted = true
		d.encryptedEntry = RefAndDict{Ref: encEntry.Ref, Dict: encEntry.Dict, Present: true}
	}
	d.pendingSecurity = pendingNone
	d.pendingOpts = ProtectionOptions{}

	d.original = res.Bytes
	if newXref, err := xref.Load(res.Bytes, true); err == nil {
		d.xref = newXref
	} else {
		d.Warnings = append(d.Warnings, fmt.Sprintf("pdf: could not re-parse saved document's xref for future incremental saves: %v", err))
		d.xref = nil
	}

	return res.Bytes, nil
}
