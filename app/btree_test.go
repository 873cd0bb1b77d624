package main

import (
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildInteriorTablePage lays out a minimal interior table page: one
// cell per (child, key) pair, keyed by the largest rowid in that
// child's subtree, plus the page's right-most pointer for rowids
// beyond every cell's key.
func buildInteriorTablePage(children []uint32, keys []uint64, rightmost uint32) []byte {
	data := make([]byte, testPageSize)
	data[0] = byte(pageTypeInteriorTable)

	var cellBytes [][]byte
	for i := range children {
		var cell []byte
		var child [4]byte
		binary.BigEndian.PutUint32(child[:], children[i])
		cell = append(cell, child[:]...)
		cell = append(cell, encodeVarintForTest(keys[i])...)
		cellBytes = append(cellBytes, cell)
	}

	contentStart := len(data)
	for _, cb := range cellBytes {
		contentStart -= len(cb)
		copy(data[contentStart:], cb)
	}

	binary.BigEndian.PutUint16(data[3:5], uint16(len(children)))
	binary.BigEndian.PutUint16(data[5:7], uint16(contentStart))
	binary.BigEndian.PutUint32(data[8:12], rightmost)

	pointerArrayStart := 12
	offset := contentStart
	for i, cb := range cellBytes {
		binary.BigEndian.PutUint16(data[pointerArrayStart+i*2:], uint16(offset))
		offset += len(cb)
	}
	return data
}

// buildPage1 lays out the 100-byte file header plus a sqlite_schema
// leaf page (given as (rowid, payload) schema-record cells) occupying
// the rest of page 1.
func buildPage1(t *testing.T, pageSize int, schemaRows [][2]interface{}) []byte {
	t.Helper()
	data := buildLeafTablePageAt(t, 100, pageSize, schemaRows)
	binary.BigEndian.PutUint16(data[16:18], uint16(pageSize))
	return data
}

// openTestDatabase assembles a temp file from page blobs (1-indexed by
// position) and opens it as a database.
func openTestDatabase(t *testing.T, pages [][]byte) *database {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "test-*.db")
	require.NoError(t, err)
	for _, p := range pages {
		_, err := f.Write(p)
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())

	db, err := openDatabase(f.Name())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// buildTestTable constructs a 3-page table: an interior root (page 4)
// pointing at two leaf pages (2 and 3) holding rowids 1-2 and 3-4.
func buildTestTable(t *testing.T) (*database, int) {
	t.Helper()
	page1 := buildPage1(t, testPageSize, nil)
	page2 := buildLeafTablePage(t, [][2]interface{}{
		{uint64(1), []byte("aa")},
		{uint64(2), []byte("bb")},
	})
	page3 := buildLeafTablePage(t, [][2]interface{}{
		{uint64(3), []byte("cc")},
		{uint64(4), []byte("dd")},
	})
	page4 := buildInteriorTablePage([]uint32{2}, []uint64{2}, 3)

	db := openTestDatabase(t, [][]byte{page1, page2, page3, page4})
	return db, 4
}

func TestWalkTableVisitsEveryLeafInOrder(t *testing.T) {
	db, root := buildTestTable(t)

	var rowids []uint64
	_, err := walkTable(db, root, func(db *database, p *page) ([]int, error) {
		pointers, err := p.cellPointers()
		require.NoError(t, err)
		for _, offset := range pointers {
			rowid, err := p.rowID(offset)
			require.NoError(t, err)
			rowids = append(rowids, rowid)
		}
		return nil, nil
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3, 4}, rowids)
}

func TestCountTableRows(t *testing.T) {
	db, root := buildTestTable(t)
	count, err := countTableRows(db, root)
	require.NoError(t, err)
	require.Equal(t, 4, count)
}

// buildIndexEntryRecord builds a two-column index record: the indexed
// text key followed by the rowid it points to.
func buildIndexEntryRecord(t *testing.T, key string, rowid int64) []byte {
	t.Helper()
	return buildRecord(t,
		[]uint64{13 + 2*uint64(len(key)), 1},
		[][]byte{[]byte(key), {byte(rowid)}},
	)
}

// buildLeafIndexPageForTest lays out a leaf index page from (key, rowid)
// pairs, in ascending key order as the format requires.
func buildLeafIndexPageForTest(t *testing.T, entries []struct {
	key   string
	rowid int64
}) []byte {
	t.Helper()
	data := make([]byte, testPageSize)
	data[0] = byte(pageTypeLeafIndex)

	var cellBytes [][]byte
	for _, e := range entries {
		rec := buildIndexEntryRecord(t, e.key, e.rowid)
		var cell []byte
		cell = append(cell, encodeVarintForTest(uint64(len(rec)))...)
		cell = append(cell, rec...)
		cellBytes = append(cellBytes, cell)
	}

	contentStart := len(data)
	for _, cb := range cellBytes {
		contentStart -= len(cb)
		copy(data[contentStart:], cb)
	}

	binary.BigEndian.PutUint16(data[3:5], uint16(len(entries)))
	binary.BigEndian.PutUint16(data[5:7], uint16(contentStart))

	offset := contentStart
	for i, cb := range cellBytes {
		binary.BigEndian.PutUint16(data[8+i*2:], uint16(offset))
		offset += len(cb)
	}
	return data
}

// buildInteriorIndexPage lays out an interior index page: each cell is a
// 4-byte child pointer followed by a varint payload size and the
// indexed record itself (the interior cell's own key is live index
// data, not merely a separator).
func buildInteriorIndexPage(t *testing.T, cells []struct {
	child uint32
	key   string
	rowid int64
}, rightmost uint32) []byte {
	t.Helper()
	data := make([]byte, testPageSize)
	data[0] = byte(pageTypeInteriorIndex)

	var cellBytes [][]byte
	for _, c := range cells {
		rec := buildIndexEntryRecord(t, c.key, c.rowid)
		var cell []byte
		var child [4]byte
		binary.BigEndian.PutUint32(child[:], c.child)
		cell = append(cell, child[:]...)
		cell = append(cell, encodeVarintForTest(uint64(len(rec)))...)
		cell = append(cell, rec...)
		cellBytes = append(cellBytes, cell)
	}

	contentStart := len(data)
	for _, cb := range cellBytes {
		contentStart -= len(cb)
		copy(data[contentStart:], cb)
	}

	binary.BigEndian.PutUint16(data[3:5], uint16(len(cells)))
	binary.BigEndian.PutUint16(data[5:7], uint16(contentStart))
	binary.BigEndian.PutUint32(data[8:12], rightmost)

	offset := contentStart
	for i, cb := range cellBytes {
		binary.BigEndian.PutUint16(data[12+i*2:], uint16(offset))
		offset += len(cb)
	}
	return data
}

// buildTestIndex constructs a 2-level index b-tree: an interior root
// (page 5) over three leaves (2, 3, 4) keyed "Banana" and "Mango" on
// the interior page itself, with "Apple" < Banana < "Kiwi" < Mango <
// "Zebra" spread across the leaves — exercising both the equal-to-an-
// interior-key path and the descend-into-the-first-larger-key path.
func buildTestIndex(t *testing.T) (*database, int) {
	t.Helper()
	page1 := buildPage1(t, testPageSize, nil)
	page2 := buildLeafIndexPageForTest(t, []struct {
		key   string
		rowid int64
	}{{"Apple", 1}})
	page3 := buildLeafIndexPageForTest(t, []struct {
		key   string
		rowid int64
	}{{"Kiwi", 2}})
	page4 := buildLeafIndexPageForTest(t, []struct {
		key   string
		rowid int64
	}{{"Zebra", 3}})
	page5 := buildInteriorIndexPage(t, []struct {
		child uint32
		key   string
		rowid int64
	}{
		{2, "Banana", 10},
		{3, "Mango", 20},
	}, 4)

	db := openTestDatabase(t, [][]byte{page1, page2, page3, page4, page5})
	return db, 5
}

func TestSearchIndexMatchesInteriorCellKey(t *testing.T) {
	db, root := buildTestIndex(t)
	matches, err := searchIndex(db, root, []byte("Banana"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.EqualValues(t, 10, matches[0].rowid)
}

func TestSearchIndexDescendsPastInteriorToLeaf(t *testing.T) {
	db, root := buildTestIndex(t)
	matches, err := searchIndex(db, root, []byte("Kiwi"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.EqualValues(t, 2, matches[0].rowid)
}

func TestSearchIndexFallsBackToRightmostPointer(t *testing.T) {
	db, root := buildTestIndex(t)
	matches, err := searchIndex(db, root, []byte("Zebra"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.EqualValues(t, 3, matches[0].rowid)
}

func TestSearchIndexMissReturnsNoMatches(t *testing.T) {
	db, root := buildTestIndex(t)
	matches, err := searchIndex(db, root, []byte("Nonexistent"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearchIndexRangeFiltersAcrossAllLeaves(t *testing.T) {
	db, root := buildTestIndex(t)
	matches, err := SearchIndexRange(db, root, []byte("Banana"), []byte("Mango"))
	require.NoError(t, err)

	var rowids []uint64
	for _, m := range matches {
		rowids = append(rowids, m.rowid)
	}
	assert.ElementsMatch(t, []uint64{10, 20, 2}, rowids)
}

func TestFindByRowidHitAndMiss(t *testing.T) {
	db, root := buildTestTable(t)

	payload, found, err := findByRowid(db, root, 3)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("cc"), payload)

	_, found, err = findByRowid(db, root, 99)
	require.NoError(t, err)
	require.False(t, found)
}
