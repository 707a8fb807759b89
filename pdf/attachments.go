package pdf

import "github.com/shaneholloman/libpdf-sub001/model"

// Attachment is one embedded file recovered from the catalog's
// /Names /EmbeddedFiles name tree.
type Attachment struct {
	Name string
	Data []byte
}

// GetAttachments walks the embedded-files name tree and decodes every
// leaf file stream. A document with no /Names /EmbeddedFiles entry
// returns an empty slice, not an error.
func (d *Document) GetAttachments() ([]Attachment, error) {
	catalog, err := d.catalogDict()
	if err != nil {
		return nil, err
	}
	namesDict, ok := d.resolveDict(catalog.GetOr("Names"))
	if !ok {
		return nil, nil
	}
	efRoot, ok := d.resolveDict(namesDict.GetOr("EmbeddedFiles"))
	if !ok {
		return nil, nil
	}

	var out []Attachment
	if err := d.walkEmbeddedFilesTree(efRoot, &out, make(map[*model.Dict]bool)); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Document) catalogDict() (*model.Dict, error) {
	obj, err := d.resolve(d.rootRef)
	if err != nil {
		return nil, err
	}
	dict, ok := obj.(*model.Dict)
	if !ok {
		return nil, &InvariantViolationError{Msg: "/Root does not resolve to a dict"}
	}
	return dict, nil
}

// resolveDict follows obj through a Ref if needed and type-asserts the
// result to *model.Dict; a direct (non-Ref) dict is returned as-is.
func (d *Document) resolveDict(obj model.Object) (*model.Dict, bool) {
	if ref, ok := obj.(model.Ref); ok {
		resolved, err := d.resolve(ref)
		if err != nil {
			return nil, false
		}
		obj = resolved
	}
	dict, ok := obj.(*model.Dict)
	return dict, ok
}

func (d *Document) resolveAny(obj model.Object) (model.Object, error) {
	if ref, ok := obj.(model.Ref); ok {
		return d.resolve(ref)
	}
	return obj, nil
}

// walkEmbeddedFilesTree descends a PDF name tree: each node is either
// an intermediate with /Kids, or a leaf with a flat /Names array of
// alternating (name, filespec) pairs. seen guards against a cyclic
// /Kids chain in a malformed document.
func (d *Document) walkEmbeddedFilesTree(node *model.Dict, out *[]Attachment, seen map[*model.Dict]bool) error {
	if seen[node] {
		return nil
	}
	seen[node] = true

	if kidsObj, ok := node.Get("Kids"); ok {
		arr, isArr := mustArray(d, kidsObj)
		if !isArr {
			return nil
		}
		for _, item := range arr.Items() {
			kidDict, ok := d.resolveDict(item)
			if !ok {
				continue
			}
			if err := d.walkEmbeddedFilesTree(kidDict, out, seen); err != nil {
				return err
			}
		}
		return nil
	}

	namesObj, ok := node.Get("Names")
	if !ok {
		return nil
	}
	arr, ok := mustArray(d, namesObj)
	if !ok {
		return nil
	}
	items := arr.Items()
	for i := 0; i+1 < len(items); i += 2 {
		nameObj, err := d.resolveAny(items[i])
		if err != nil {
			continue
		}
		nameStr, ok := nameObj.(*model.String)
		if !ok {
			continue
		}
		fsDict, ok := d.resolveDict(items[i+1])
		if !ok {
			continue
		}
		efDict, ok := d.resolveDict(fsDict.GetOr("EF"))
		if !ok {
			continue
		}
		strmObj, err := d.resolveAny(efDict.GetOr("F"))
		if err != nil {
			continue
		}
		strm, ok := strmObj.(*model.Stream)
		if !ok {
			continue
		}
		data, err := strm.GetDecodedData()
		if err != nil {
			return err
		}
		*out = append(*out, Attachment{Name: string(nameStr.Bytes), Data: data})
	}
	return nil
}

func mustArray(d *Document, obj model.Object) (*model.Array, bool) {
	resolved, err := d.resolveAny(obj)
	if err != nil {
		return nil, false
	}
	arr, ok := resolved.(*model.Array)
	return arr, ok
}
