package main

import "encoding/binary"

// pageType identifies the four on-disk b-tree page shapes.
type pageType byte

const (
	pageTypeInteriorIndex pageType = 0x02
	pageTypeInteriorTable pageType = 0x05
	pageTypeLeafIndex     pageType = 0x0A
	pageTypeLeafTable     pageType = 0x0D
)

func (t pageType) isLeaf() bool {
	return t == pageTypeLeafIndex || t == pageTypeLeafTable
}

func (t pageType) isInterior() bool {
	return t == pageTypeInteriorIndex || t == pageTypeInteriorTable
}

func (t pageType) isTable() bool {
	return t == pageTypeLeafTable || t == pageTypeInteriorTable
}

func (t pageType) isIndex() bool {
	return t == pageTypeLeafIndex || t == pageTypeInteriorIndex
}

// page is the decoded view of one fixed-size page blob: its type, cell
// count, cell-pointer array, and (for interior pages) the right-most
// child pointer. data always holds exactly pageSize bytes; for page 1
// that includes the 100-byte file header, so headerStart is 100 there
// and 0 everywhere else — but cell offsets stored in the pointer array,
// and all accessors below, are always relative to data[0].
type page struct {
	data        []byte
	number      int
	typ         pageType
	headerStart int
	headerLen   int
	cellCount   uint16
	contentZone uint16
	rightmost   uint32 // only meaningful when typ.isInterior()
}

// parsePage decodes the fixed page header (type, cell count, cell
// content start, right-most pointer) out of a raw page-sized blob. index
// is the 1-based page number this blob was read for: for page 1 the
// b-tree header starts after the 100-byte file header, and the number is
// kept on the page for error messages.
func parsePage(data []byte, index int) (*page, error) {
	headerStart := 0
	if index == 1 {
		headerStart = 100
	}
	if headerStart+8 > len(data) {
		return nil, NewDatabaseError("parse_page", ErrTruncatedInput, map[string]interface{}{
			"page": index,
		})
	}

	typ := pageType(data[headerStart])
	switch typ {
	case pageTypeInteriorIndex, pageTypeInteriorTable, pageTypeLeafIndex, pageTypeLeafTable:
	default:
		return nil, NewDatabaseError("parse_page", ErrMalformedPage, map[string]interface{}{
			"page":      index,
			"page_type": typ,
		})
	}

	p := &page{
		data:        data,
		number:      index,
		typ:         typ,
		headerStart: headerStart,
		cellCount:   binary.BigEndian.Uint16(data[headerStart+3 : headerStart+5]),
		contentZone: binary.BigEndian.Uint16(data[headerStart+5 : headerStart+7]),
	}

	if typ.isLeaf() {
		p.headerLen = 8
	} else {
		p.headerLen = 12
		if headerStart+12 > len(data) {
			return nil, NewDatabaseError("parse_page", ErrTruncatedInput, map[string]interface{}{
				"page": index,
			})
		}
		p.rightmost = binary.BigEndian.Uint32(data[headerStart+8 : headerStart+12])
	}

	return p, nil
}

// cellPointers returns the page's cell-content offsets, in the order
// they're stored on disk (ascending key order per the format's
// invariant).
func (p *page) cellPointers() ([]int, error) {
	start := p.headerStart + p.headerLen
	end := start + int(p.cellCount)*2
	if end > len(p.data) {
		return nil, NewDatabaseError("cell_pointers", ErrTruncatedInput, map[string]interface{}{
			"page": p.number,
		})
	}
	pointers := make([]int, p.cellCount)
	for i := range pointers {
		off := start + i*2
		pointers[i] = int(binary.BigEndian.Uint16(p.data[off : off+2]))
	}
	return pointers, nil
}

// recordSize reads the payload-size varint at a leaf-page cell offset.
func (p *page) recordSize(cellOffset int) (uint64, int, error) {
	if !p.typ.isLeaf() {
		return 0, 0, NewDatabaseError("record_size", ErrWrongPageKind, map[string]interface{}{"page": p.number})
	}
	value, n, ok := readVarint(p.data, cellOffset)
	if !ok {
		return 0, 0, NewDatabaseError("record_size", ErrTruncatedInput, map[string]interface{}{"page": p.number})
	}
	return value, n, nil
}

// rowID reads the rowid at a table-page cell offset: the 4-byte child
// pointer is skipped on interior pages, and the payload-size varint is
// skipped on leaf pages.
func (p *page) rowID(cellOffset int) (uint64, error) {
	switch p.typ {
	case pageTypeInteriorTable:
		value, _, ok := readVarint(p.data, cellOffset+4)
		if !ok {
			return 0, NewDatabaseError("row_id", ErrTruncatedInput, map[string]interface{}{"page": p.number})
		}
		return value, nil
	case pageTypeLeafTable:
		_, n, err := p.recordSize(cellOffset)
		if err != nil {
			return 0, err
		}
		value, _, ok := readVarint(p.data, cellOffset+n)
		if !ok {
			return 0, NewDatabaseError("row_id", ErrTruncatedInput, map[string]interface{}{"page": p.number})
		}
		return value, nil
	default:
		return 0, NewDatabaseError("row_id", ErrWrongPageKind, map[string]interface{}{"page": p.number})
	}
}

// childPointer reads the 4-byte big-endian left-child page number at an
// interior-page cell offset.
func (p *page) childPointer(cellOffset int) (uint32, error) {
	if !p.typ.isInterior() {
		return 0, NewDatabaseError("child_pointer", ErrWrongPageKind, map[string]interface{}{"page": p.number})
	}
	if cellOffset+4 > len(p.data) {
		return 0, NewDatabaseError("child_pointer", ErrTruncatedInput, map[string]interface{}{"page": p.number})
	}
	return binary.BigEndian.Uint32(p.data[cellOffset : cellOffset+4]), nil
}

// indexCellPayloadSize reads the payload-size varint stored in an interior-index
// cell, which is preceded by the 4-byte child pointer.
func (p *page) indexCellPayloadSize(cellOffset int) (uint64, int, error) {
	if p.typ != pageTypeInteriorIndex {
		return 0, 0, NewDatabaseError("index_cell_payload_size", ErrWrongPageKind, map[string]interface{}{"page": p.number})
	}
	value, n, ok := readVarint(p.data, cellOffset+4)
	if !ok {
		return 0, 0, NewDatabaseError("index_cell_payload_size", ErrTruncatedInput, map[string]interface{}{"page": p.number})
	}
	return value, n, nil
}
