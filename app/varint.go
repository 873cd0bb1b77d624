package main

import "io"

// readVarint decodes a SQLite varint from data starting at offset. It
// returns the decoded value and the number of bytes consumed. At most
// nine bytes are read: the first eight contribute their low 7 bits each,
// big-endian; if a ninth byte is consumed it contributes all 8 bits, per
// the on-disk format. ok is false if data ends before a terminating byte
// is found within the first eight bytes and a ninth byte is unavailable.
func readVarint(data []byte, offset int) (value uint64, bytesRead int, ok bool) {
	var result uint64
	for i := 0; i < 9; i++ {
		if offset+i >= len(data) {
			return 0, 0, false
		}
		b := data[offset+i]
		if i == 8 {
			result = (result << 8) | uint64(b)
			return result, i + 1, true
		}
		result = (result << 7) | uint64(b&0x7F)
		if b&0x80 == 0 {
			return result, i + 1, true
		}
	}
	return result, 9, true
}

// varintCursor is the dual-source varint reader named in the design
// notes: one type advances over either a byte slice or a byte-stream
// reader. Slice reads go through readVarint; stream reads decode one
// byte at a time with the same rules.
type varintCursor struct {
	data []byte
	pos  int
	r    io.Reader
}

// newVarintCursor wraps a byte slice for non-consuming, random-access
// varint reads (used against an already-resident page).
func newVarintCursor(data []byte, offset int) *varintCursor {
	return &varintCursor{data: data, pos: offset}
}

// newVarintReader wraps a positioned byte stream; each ReadVarint call
// consumes exactly the bytes of one varint.
func newVarintReader(r io.Reader) *varintCursor {
	return &varintCursor{r: r}
}

// Offset reports the cursor's current position into the backing slice.
// Only meaningful for slice-backed cursors.
func (c *varintCursor) Offset() int {
	return c.pos
}

// ReadVarint decodes the next varint from the cursor, advancing it by
// the number of bytes consumed.
func (c *varintCursor) ReadVarint() (uint64, error) {
	if c.r != nil {
		return c.readFromStream()
	}
	value, n, ok := readVarint(c.data, c.pos)
	if !ok {
		return 0, NewDatabaseError("read_varint", ErrTruncatedInput, map[string]interface{}{
			"offset": c.pos,
		})
	}
	c.pos += n
	return value, nil
}

func (c *varintCursor) readFromStream() (uint64, error) {
	var result uint64
	var buf [1]byte
	for i := 0; i < 9; i++ {
		if _, err := io.ReadFull(c.r, buf[:]); err != nil {
			return 0, NewDatabaseError("read_varint_stream", ErrTruncatedInput, map[string]interface{}{
				"byte_index": i,
			})
		}
		b := buf[0]
		if i == 8 {
			result = (result << 8) | uint64(b)
			return result, nil
		}
		result = (result << 7) | uint64(b&0x7F)
		if b&0x80 == 0 {
			return result, nil
		}
	}
	return result, nil
}
