// Package pdf is the document façade (C12): it bundles the parser,
// security handler, object registry, page tree and writer into the
// single handle application code drives. Every other package in this
// module is implementation detail exported only for testability; pdf
// is the one import a caller needs.
package pdf

import (
	"errors"
	"fmt"

	"github.com/shaneholloman/libpdf-sub001/docreader"
	"github.com/shaneholloman/libpdf-sub001/internal/pdflog"
	"github.com/shaneholloman/libpdf-sub001/lex"
	"github.com/shaneholloman/libpdf-sub001/model"
	"github.com/shaneholloman/libpdf-sub001/pagetree"
	"github.com/shaneholloman/libpdf-sub001/registry"
	"github.com/shaneholloman/libpdf-sub001/security"
	"github.com/shaneholloman/libpdf-sub001/xref"
)

// pendingSecurityAction records what the next Save call should do to
// the document's encryption state; calling SetProtection/RemoveProtection
// never mutates the object graph itself.
type pendingSecurityAction uint8

const (
	pendingNone pendingSecurityAction = iota
	pendingRemove
	pendingEncrypt
)

// Document is a loaded PDF handle: a lazy reader backed by the original
// bytes, an object registry tracking everything touched or created
// since load, and the security/save policy state the façade owns.
type Document struct {
	reader   *docreader.Reader
	registry *registry.Registry
	pages    *pagetree.Tree

	rootRef model.Ref
	infoRef model.Ref
	hasInfo bool
	version string
	id      [2][]byte

	security       *security.Handler
	encrypted      bool
	encryptedEntry RefAndDict

	pendingSecurity pendingSecurityAction
	pendingOpts     ProtectionOptions

	original []byte
	xref     *xref.Table

	Warnings []string
}

// RefAndDict pairs the trailer's /Encrypt ref with its dict, kept
// around so an unmodified save can re-emit the same encryption
// dictionary without re-deriving it.
type RefAndDict struct {
	Ref     model.Ref
	Dict    *model.Dict
	Present bool
}

// Options controls how Load parses a document.
type Options struct {
	// Strict disables the lenient recovery paths (token-boundary skip on
	// syntax errors, brute-force xref recovery, truncated-filter
	// tolerance). Most callers want the default, lenient behaviour.
	Strict bool

	// Log, if set, receives every recovery warning as it is collected,
	// in addition to the Warnings slice Load always populates.
	Log *pdflog.Logger
}

// Load parses data into a Document. Load itself never fails on a
// merely-malformed-but-recoverable input; recoveries are recorded in
// Warnings instead.
func Load(data []byte, opts Options) (*Document, error) {
	lenient := !opts.Strict
	rd, err := docreader.Open(data, lenient)
	if err != nil {
		return nil, wrapLoadError(err)
	}

	d := &Document{
		reader:   rd,
		registry: registry.New(),
		original: append([]byte(nil), data...),
		xref:     rd.XRef,
		version:  rd.Version,
	}

	trailer := rd.XRef.Trailer
	if rootObj, ok := trailer.Get("Root"); ok {
		if ref, ok := rootObj.(model.Ref); ok {
			d.rootRef = ref
		}
	}
	if infoObj, ok := trailer.Get("Info"); ok {
		if ref, ok := infoObj.(model.Ref); ok {
			d.infoRef = ref
			d.hasInfo = true
		}
	}
	if idObj, ok := trailer.Get("ID"); ok {
		if arr, ok := idObj.(*model.Array); ok && arr.Len() == 2 {
			if s, ok := arr.At(0).(*model.String); ok {
				d.id[0] = s.Bytes
			}
			if s, ok := arr.At(1).(*model.String); ok {
				d.id[1] = s.Bytes
			}
		}
	}

	if encObj, ok := trailer.Get("Encrypt"); ok {
		encDict, encRef, err := d.resolveEncryptDict(encObj)
		if err != nil {
			return nil, err
		}
		if encDict != nil {
			h, err := security.NewHandlerFromDict(encDict, d.id[0])
			if err != nil {
				return nil, fmt.Errorf("pdf: parsing /Encrypt: %w", err)
			}
			d.security = h
			d.encrypted = true
			d.encryptedEntry = RefAndDict{Ref: encRef, Dict: encDict, Present: true}
			rd.Decrypt = d.decryptCallback
		}
	}

	if d.rootRef != (model.Ref{}) {
		if err := d.materializeAll(); err != nil {
			return nil, err
		}
		if root, ok := d.registry.Resolve(d.rootRef); ok {
			if catalog, ok := root.(*model.Dict); ok {
				if pagesObj, ok := catalog.Get("Pages"); ok {
					if pagesRef, ok := pagesObj.(model.Ref); ok {
						d.pages = pagetree.Build(pagesRef, d.resolve)
						d.Warnings = append(d.Warnings, d.pages.Warnings...)
					}
				}
			}
		}
	}

	d.Warnings = append(d.Warnings, rd.Warnings...)
	opts.Log.Warnings(d.Warnings)
	return d, nil
}

// resolveEncryptDict handles both an inline and an indirect /Encrypt
// entry; the dict itself is never encrypted so this can run before the
// handler exists.
func (d *Document) resolveEncryptDict(obj model.Object) (*model.Dict, model.Ref, error) {
	switch v := obj.(type) {
	case *model.Dict:
		return v, model.Ref{}, nil
	case model.Ref:
		raw, err := d.reader.GetObject(v)
		if err != nil {
			return nil, model.Ref{}, err
		}
		dict, ok := raw.(*model.Dict)
		if !ok {
			return nil, model.Ref{}, &InvariantViolationError{Msg: "/Encrypt does not resolve to a dict"}
		}
		d.registry.LoadObject(v, dict)
		return dict, v, nil
	default:
		return nil, model.Ref{}, nil
	}
}

// resolve fetches ref's value, preferring the registry (which holds
// both newly registered and already-materialised objects) over a fresh
// parse, and records every freshly parsed object into the registry so
// later save/reachability walks see it.
func (d *Document) resolve(ref model.Ref) (model.Object, error) {
	if obj, ok := d.registry.Resolve(ref); ok {
		return obj, nil
	}
	obj, err := d.reader.GetObject(ref)
	if err != nil {
		return nil, wrapReadError(err)
	}
	d.registry.LoadObject(ref, obj)
	return obj, nil
}

// materializeAll walks every object transitively reachable from /Root
// and /Info, loading each into the registry so a subsequent save's own
// reachability walk (which only consults the registry) sees the whole
// graph, per the writer's full-save contract.
func (d *Document) materializeAll() error {
	seeds := []model.Ref{d.rootRef}
	if d.hasInfo {
		seeds = append(seeds, d.infoRef)
	}
	visited := make(map[model.Ref]bool)
	queue := append([]model.Ref(nil), seeds...)
	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]
		if ref == (model.Ref{}) || visited[ref] {
			continue
		}
		visited[ref] = true
		obj, err := d.resolve(ref)
		if err != nil {
			var notAuth *security.AuthenticationFailedError
			if errors.Is(err, security.ErrNotAuthenticated) || errors.As(err, &notAuth) {
				continue
			}
			d.Warnings = append(d.Warnings, fmt.Sprintf("pdf: could not materialise %s: %v", ref, err))
			continue
		}
		queue = append(queue, refsIn(obj)...)
	}
	return nil
}

func refsIn(obj model.Object) []model.Ref {
	var out []model.Ref
	var walk func(model.Object)
	walk = func(o model.Object) {
		switch v := o.(type) {
		case model.Ref:
			out = append(out, v)
		case *model.Array:
			for _, item := range v.Items() {
				walk(item)
			}
		case *model.Dict:
			for _, k := range v.Keys() {
				val, _ := v.Get(k)
				walk(val)
			}
		case *model.Stream:
			walk(v.Dict)
		}
	}
	walk(obj)
	return out
}

// Register assigns a fresh indirect reference to obj, the façade's
// entry point for callers building new objects (attachments, modified
// Info dicts, and so on).
func (d *Document) Register(obj model.Object) model.Ref {
	return d.registry.Register(obj)
}

// GetPage returns the i-th leaf page dict in document order.
func (d *Document) GetPage(i int) (*model.Dict, error) {
	if d.pages == nil {
		return nil, fmt.Errorf("pdf: document has no page tree")
	}
	ref, ok := d.pages.At(i)
	if !ok {
		return nil, fmt.Errorf("pdf: page index %d out of range (%d pages)", i, d.pages.Len())
	}
	obj, err := d.resolve(ref)
	if err != nil {
		return nil, err
	}
	dict, ok := obj.(*model.Dict)
	if !ok {
		return nil, &InvariantViolationError{Msg: fmt.Sprintf("page %s is not a dict", ref)}
	}
	return dict, nil
}

// PageCount returns the number of leaf pages found at load time.
func (d *Document) PageCount() int {
	if d.pages == nil {
		return 0
	}
	return d.pages.Len()
}

// Version is the "%PDF-X.Y" version string detected at load.
func (d *Document) Version() string { return d.version }

func wrapLoadError(err error) error {
	var se *lex.SyntaxError
	if errors.As(err, &se) {
		return &SyntaxError{Pos: se.Pos, Msg: se.Msg}
	}
	var xe *xref.XRefError
	if errors.As(err, &xe) {
		return &XRefError{Msg: xe.Msg}
	}
	return err
}

func wrapReadError(err error) error {
	return wrapLoadError(err)
}
