package main

import (
	"log"
	"sort"
)

// walkTable performs a full, left-to-right scan of every leaf page
// reachable from root, calling visitLeaf on each and concatenating the
// results in on-disk order. Every row in the table is visited exactly
// once.
func walkTable[T any](db *database, root int, visitLeaf func(db *database, p *page) ([]T, error)) ([]T, error) {
	var out []T
	err := walkTableInto(db, root, visitLeaf, &out)
	return out, err
}

func walkTableInto[T any](db *database, pageNumber int, visitLeaf func(db *database, p *page) ([]T, error), out *[]T) error {
	p, err := db.readPage(pageNumber)
	if err != nil {
		return err
	}
	if !p.typ.isTable() {
		return NewDatabaseError("walk_table", ErrWrongPageKind, map[string]interface{}{"page": pageNumber})
	}

	if p.typ.isLeaf() {
		rows, err := visitLeaf(db, p)
		if err != nil {
			return err
		}
		*out = append(*out, rows...)
		return nil
	}

	pointers, err := p.cellPointers()
	if err != nil {
		return err
	}
	for _, offset := range pointers {
		child, err := p.childPointer(offset)
		if err != nil {
			return err
		}
		if err := walkTableInto(db, int(child), visitLeaf, out); err != nil {
			return err
		}
	}
	return walkTableInto(db, int(p.rightmost), visitLeaf, out)
}

// countTableRows sums leaf-page cell counts across the whole table
// without decoding any record, the fast path for COUNT(*).
func countTableRows(db *database, root int) (int, error) {
	total := 0
	err := countTableRowsInto(db, root, &total)
	return total, err
}

func countTableRowsInto(db *database, pageNumber int, total *int) error {
	p, err := db.readPage(pageNumber)
	if err != nil {
		return err
	}
	if !p.typ.isTable() {
		return NewDatabaseError("count_table_rows", ErrWrongPageKind, map[string]interface{}{"page": pageNumber})
	}
	if p.typ.isLeaf() {
		*total += int(p.cellCount)
		return nil
	}
	pointers, err := p.cellPointers()
	if err != nil {
		return err
	}
	for _, offset := range pointers {
		child, err := p.childPointer(offset)
		if err != nil {
			return err
		}
		if err := countTableRowsInto(db, int(child), total); err != nil {
			return err
		}
	}
	return countTableRowsInto(db, int(p.rightmost), total)
}

// findByRowid descends a table b-tree toward a single known rowid,
// taking one path per interior page rather than fanning out to every
// child — interior table cells are sorted by the largest rowid in their
// left subtree, so a single binary search per page is enough. The
// search bounds are recomputed fresh on every page rather than carried
// as mutable state across a shared loop, so a miss on one page can
// never leak into the next.
func findByRowid(db *database, root int, target uint64) ([]byte, bool, error) {
	pageNumber := root
	for {
		p, err := db.readPage(pageNumber)
		if err != nil {
			return nil, false, err
		}
		if !p.typ.isTable() {
			return nil, false, NewDatabaseError("find_by_rowid", ErrWrongPageKind, map[string]interface{}{"page": pageNumber})
		}

		pointers, err := p.cellPointers()
		if err != nil {
			return nil, false, err
		}

		if p.typ.isLeaf() {
			for _, offset := range pointers {
				rowid, err := p.rowID(offset)
				if err != nil {
					return nil, false, err
				}
				if rowid == target {
					payload, err := leafTablePayload(p, offset)
					if err != nil {
						return nil, false, err
					}
					return payload, true, nil
				}
			}
			return nil, false, nil
		}

		child, ok, err := chooseInteriorTableChild(p, pointers, target)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			child = p.rightmost
		}
		pageNumber = int(child)
	}
}

// chooseInteriorTableChild binary searches an interior table page's
// cells (each keyed by the largest rowid in its left subtree) for the
// first cell whose key is >= target, returning that cell's child
// pointer. ok is false when target exceeds every cell's key, meaning
// the caller should follow the page's right-most pointer instead.
func chooseInteriorTableChild(p *page, pointers []int, target uint64) (child uint32, ok bool, err error) {
	var searchErr error
	i := sort.Search(len(pointers), func(i int) bool {
		rowid, e := p.rowID(pointers[i])
		if e != nil {
			searchErr = e
			return true
		}
		return rowid >= target
	})
	if searchErr != nil {
		return 0, false, searchErr
	}
	if i >= len(pointers) {
		return 0, false, nil
	}
	child, err = p.childPointer(pointers[i])
	if err != nil {
		return 0, false, err
	}
	return child, true, nil
}

// leafTablePayload returns the record bytes of a leaf table cell,
// skipping its leading payload-size varint and the rowid varint that
// follows it.
func leafTablePayload(p *page, cellOffset int) ([]byte, error) {
	size, n, err := p.recordSize(cellOffset)
	if err != nil {
		return nil, err
	}
	_, rowidLen, ok := readVarint(p.data, cellOffset+n)
	if !ok {
		return nil, NewDatabaseError("leaf_table_payload", ErrTruncatedInput, map[string]interface{}{"page": p.number})
	}
	start := cellOffset + n + rowidLen
	end := start + int(size)
	if end > len(p.data) {
		return nil, NewDatabaseError("leaf_table_payload", ErrTruncatedInput, map[string]interface{}{"page": p.number})
	}
	return p.data[start:end], nil
}

// indexMatch is one hit from an index search: the key it was stored
// under and the rowid it points to, for feeding back into findByRowid.
type indexMatch struct {
	key   []byte
	rowid uint64
}

// indexSearcher descends an index b-tree collecting every entry whose
// key equals target. Because index keys need not be unique, a single
// comparison can't prune every other subtree the way rowid descent can:
// at an interior page, any child whose subtree could contain target is
// followed. But index entries are stored in ascending key order, so the
// descent still stops the moment it passes a key greater than target —
// it never needs to look past the first such crossing, on a leaf or an
// interior page. Verbose, when set, logs each page visited and each
// stopping decision via log.Printf, mirroring the step-by-step trace
// the original reference implementation prints unconditionally.
type indexSearcher struct {
	db      *database
	target  []byte
	Verbose bool
}

func newIndexSearcher(db *database, target []byte) *indexSearcher {
	return &indexSearcher{db: db, target: target}
}

func (s *indexSearcher) search(root int) ([]indexMatch, error) {
	if s.Verbose {
		log.Printf("index search: looking for key %q", s.target)
	}
	var out []indexMatch
	err := s.searchInto(root, &out)
	return out, err
}

func (s *indexSearcher) searchInto(pageNumber int, out *[]indexMatch) error {
	p, err := s.db.readPage(pageNumber)
	if err != nil {
		return err
	}
	if !p.typ.isIndex() {
		return NewDatabaseError("search_index", ErrWrongPageKind, map[string]interface{}{"page": pageNumber})
	}
	if s.Verbose {
		log.Printf("index search: visiting page %d", pageNumber)
	}

	pointers, err := p.cellPointers()
	if err != nil {
		return err
	}

	if p.typ.isLeaf() {
		for _, offset := range pointers {
			key, rowid, err := indexCellKey(p, offset)
			if err != nil {
				return err
			}
			cmp := compareBytes(s.target, key) // target vs key
			switch {
			case cmp == 0:
				*out = append(*out, indexMatch{key: key, rowid: rowid})
			case cmp < 0: // key > target: sorted order means nothing further can match
				if s.Verbose {
					log.Printf("index search: key %q past target, stopping leaf scan", key)
				}
				return nil
			}
		}
		return nil
	}

	// Interior page: descend for an exact key match (continuing to check
	// later cells, since duplicate keys can recur) or for the first key
	// greater than target (the one subtree that could still hold it),
	// then stop immediately — every later cell's key is even larger and
	// its subtree provably holds nothing equal to target. The right-most
	// subtree is checked only when no cell's key exceeds target.
	if len(pointers) == 0 {
		return s.searchInto(int(p.rightmost), out)
	}
	for _, offset := range pointers {
		key, rowid, err := indexCellKey(p, offset)
		if err != nil {
			return err
		}

		cmp := compareBytes(s.target, key) // target vs key
		switch {
		case cmp == 0:
			*out = append(*out, indexMatch{key: key, rowid: rowid})
			child, err := p.childPointer(offset)
			if err != nil {
				return err
			}
			if err := s.searchInto(int(child), out); err != nil {
				return err
			}
		case cmp < 0: // key > target
			child, err := p.childPointer(offset)
			if err != nil {
				return err
			}
			if s.Verbose {
				log.Printf("index search: found larger key %q, descending and stopping", key)
			}
			return s.searchInto(int(child), out)
		}
	}

	if s.Verbose {
		log.Printf("index search: no larger key on page %d, following rightmost pointer", p.number)
	}
	return s.searchInto(int(p.rightmost), out)
}

// searchIndex descends an index b-tree collecting every entry whose key
// equals target; a non-verbose entry point over indexSearcher.
func searchIndex(db *database, root int, target []byte) ([]indexMatch, error) {
	return newIndexSearcher(db, target).search(root)
}

// walkIndexLeaves collects every entry in an index b-tree, in ascending
// key order — table rows live only on leaf pages, but index b-tree
// interior cells carry live entries of their own, not just separator
// keys, so both are visited.
func walkIndexLeaves(db *database, root int) ([]indexMatch, error) {
	var out []indexMatch
	err := walkIndexLeavesInto(db, root, &out)
	return out, err
}

func walkIndexLeavesInto(db *database, pageNumber int, out *[]indexMatch) error {
	p, err := db.readPage(pageNumber)
	if err != nil {
		return err
	}
	if !p.typ.isIndex() {
		return NewDatabaseError("walk_index_leaves", ErrWrongPageKind, map[string]interface{}{"page": pageNumber})
	}

	pointers, err := p.cellPointers()
	if err != nil {
		return err
	}

	if p.typ.isLeaf() {
		for _, offset := range pointers {
			key, rowid, err := indexCellKey(p, offset)
			if err != nil {
				return err
			}
			*out = append(*out, indexMatch{key: key, rowid: rowid})
		}
		return nil
	}

	for _, offset := range pointers {
		key, rowid, err := indexCellKey(p, offset)
		if err != nil {
			return err
		}
		child, err := p.childPointer(offset)
		if err != nil {
			return err
		}
		if err := walkIndexLeavesInto(db, int(child), out); err != nil {
			return err
		}
		*out = append(*out, indexMatch{key: key, rowid: rowid})
	}
	return walkIndexLeavesInto(db, int(p.rightmost), out)
}

// SearchIndexRange performs a naive linear-scan range search over an
// index b-tree: traverse every entry and filter to [startKey, endKey].
// Not invoked by any SQL shape this engine parses (no range predicates
// are accepted), so it isn't wired to the CLI — it's a library-level
// capability alongside searchIndex, for programmatic callers of the
// package, symmetric with how walkTable exposes a full scan alongside
// findByRowid's targeted lookup.
func SearchIndexRange(db *database, root int, startKey, endKey []byte) ([]indexMatch, error) {
	all, err := walkIndexLeaves(db, root)
	if err != nil {
		return nil, err
	}
	var out []indexMatch
	for _, m := range all {
		if compareBytes(m.key, startKey) >= 0 && compareBytes(m.key, endKey) <= 0 {
			out = append(out, m)
		}
	}
	return out, nil
}

// indexCellKey decodes an index cell's record (leaf cells store the
// record directly; interior cells are prefixed by a 4-byte child
// pointer) into its key bytes and target rowid.
func indexCellKey(p *page, cellOffset int) ([]byte, uint64, error) {
	var payload []byte
	var err error
	if p.typ == pageTypeLeafIndex {
		payload, _, err = readLeafIndexPayload(p, cellOffset)
	} else {
		payload, err = readInteriorIndexPayload(p, cellOffset)
	}
	if err != nil {
		return nil, 0, err
	}

	_, values, err := decodeRecord(payload)
	if err != nil {
		return nil, 0, err
	}
	return decodeIndexKeyRecord(values)
}

func readLeafIndexPayload(p *page, cellOffset int) ([]byte, int, error) {
	size, n, err := p.recordSize(cellOffset)
	if err != nil {
		return nil, 0, err
	}
	start := cellOffset + n
	end := start + int(size)
	if end > len(p.data) {
		return nil, 0, NewDatabaseError("read_leaf_index_payload", ErrTruncatedInput, map[string]interface{}{"page": p.number})
	}
	return p.data[start:end], n, nil
}

func readInteriorIndexPayload(p *page, cellOffset int) ([]byte, error) {
	size, n, err := p.indexCellPayloadSize(cellOffset)
	if err != nil {
		return nil, err
	}
	start := cellOffset + 4 + n
	end := start + int(size)
	if end > len(p.data) {
		return nil, NewDatabaseError("read_interior_index_payload", ErrTruncatedInput, map[string]interface{}{"page": p.number})
	}
	return p.data[start:end], nil
}

func compareBytes(a, b []byte) int {
	switch {
	case string(a) < string(b):
		return -1
	case string(a) > string(b):
		return 1
	default:
		return 0
	}
}
