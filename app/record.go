package main

import (
	"encoding/binary"
	"math"
	"strings"
)

// value is a decoded record column: exactly one of its kind-appropriate
// fields is meaningful, mirroring the narrow set of types the record
// format can express.
type value struct {
	kind serialKind
	raw  []byte // text/blob payload, and the original bytes for ints/floats
}

func (v value) isNull() bool { return v.kind == kindNull }

// Int64 returns the column's integer interpretation. Literal-0 and
// literal-1 serial types decode without consuming any payload bytes;
// fixed-width integers are sign-extended from their big-endian bytes.
func (v value) Int64() (int64, bool) {
	switch v.kind {
	case kindIntZero:
		return 0, true
	case kindIntOne:
		return 1, true
	case kindInt:
		return signExtend(v.raw), true
	}
	return 0, false
}

func (v value) Float64() (float64, bool) {
	if v.kind != kindFloat64 || len(v.raw) != 8 {
		return 0, false
	}
	return math.Float64frombits(binary.BigEndian.Uint64(v.raw)), true
}

// Text returns the column's UTF-8 text, for both text and blob columns
// (case-insensitive WHERE and '|'-joined output both operate on the raw
// string form, regardless of declared column type).
func (v value) Text() string {
	switch v.kind {
	case kindNull:
		return ""
	case kindIntZero:
		return "0"
	case kindIntOne:
		return "1"
	case kindInt:
		n, _ := v.Int64()
		return formatInt(n)
	case kindFloat64:
		f, _ := v.Float64()
		return formatFloat(f)
	default:
		return string(v.raw)
	}
}

func signExtend(raw []byte) int64 {
	var n int64
	for _, b := range raw {
		n = (n << 8) | int64(b)
	}
	signBit := int64(1) << (uint(len(raw))*8 - 1)
	if n&signBit != 0 {
		n -= signBit << 1
	}
	return n
}

// recordHeader is the decoded header of a record: the varint-encoded
// serial-type vector, one per column, plus the header's own declared
// byte length (used to detect overshoot while decoding).
type recordHeader struct {
	size        uint64
	serialTypes []uint64
}

// decodeRecordHeader parses the header portion of a record payload:
// header_size varint, then serial-type varints until header_size bytes
// have been consumed. Overshooting the declared size is a decode error.
func decodeRecordHeader(payload []byte) (recordHeader, int, error) {
	headerSize, n, ok := readVarint(payload, 0)
	if !ok {
		return recordHeader{}, 0, NewDatabaseError("decode_record_header", ErrTruncatedInput, nil)
	}
	offset := n
	var types []uint64
	for offset < int(headerSize) {
		t, read, ok := readVarint(payload, offset)
		if !ok {
			return recordHeader{}, 0, NewDatabaseError("decode_record_header", ErrTruncatedInput, nil)
		}
		types = append(types, t)
		offset += read
	}
	if offset != int(headerSize) {
		return recordHeader{}, 0, NewDatabaseError("decode_record_header", ErrMalformedPage, map[string]interface{}{
			"header_size": headerSize,
			"consumed":    offset,
		})
	}
	return recordHeader{size: headerSize, serialTypes: types}, offset, nil
}

// decodeRecordValues slices the record body into one value per column,
// using the byte lengths the header's serial types declare.
func decodeRecordValues(payload []byte, header recordHeader, bodyOffset int) ([]value, error) {
	values := make([]value, len(header.serialTypes))
	offset := bodyOffset
	for i, code := range header.serialTypes {
		kind, length, err := decodeSerialType(code)
		if err != nil {
			return nil, err
		}
		if length == 0 {
			values[i] = value{kind: kind}
			continue
		}
		if offset+length > len(payload) {
			return nil, NewDatabaseError("decode_record_values", ErrTruncatedInput, map[string]interface{}{
				"column": i,
			})
		}
		values[i] = value{kind: kind, raw: payload[offset : offset+length]}
		offset += length
	}
	return values, nil
}

// decodeRecord decodes a full record (header + values) out of a cell's
// payload bytes.
func decodeRecord(payload []byte) (recordHeader, []value, error) {
	header, bodyOffset, err := decodeRecordHeader(payload)
	if err != nil {
		return recordHeader{}, nil, err
	}
	values, err := decodeRecordValues(payload, header, bodyOffset)
	if err != nil {
		return recordHeader{}, nil, err
	}
	return header, values, nil
}

// schemaRecord is a decoded row of sqlite_schema: object type, name,
// owning table name, root page, and the CREATE statement that defined
// it.
type schemaRecord struct {
	Type     string
	Name     string
	TblName  string
	RootPage int64
	SQL      string
}

// decodeSchemaRecord interprets a record's five columns as a
// sqlite_schema row.
func decodeSchemaRecord(values []value) (*schemaRecord, error) {
	if len(values) < 5 {
		return nil, NewDatabaseError("decode_schema_record", ErrMalformedPage, map[string]interface{}{
			"columns": len(values),
		})
	}
	rootPage, _ := values[3].Int64()
	return &schemaRecord{
		Type:     values[0].Text(),
		Name:     values[1].Text(),
		TblName:  values[2].Text(),
		RootPage: rootPage,
		SQL:      values[4].Text(),
	}, nil
}

// decodeUserRow maps a table record's column values onto the declared
// column names (in CREATE TABLE order), filling a column named "id"
// (the INTEGER PRIMARY KEY rowid alias, stored on disk as a zero-length
// null) with the cell's rowid. Only that column gets the substitution:
// any other column storing a genuine null stays null.
func decodeUserRow(values []value, columns []string, rowid uint64) map[string]value {
	row := make(map[string]value, len(columns))
	for i, name := range columns {
		if i >= len(values) {
			row[name] = value{kind: kindNull}
			continue
		}
		v := values[i]
		if strings.EqualFold(name, "id") && v.kind == kindNull && len(v.raw) == 0 {
			row[name] = value{kind: kindInt, raw: rowidBytes(rowid)}
			continue
		}
		row[name] = v
	}
	return row
}

func rowidBytes(rowid uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, rowid)
	return b
}

// decodeIndexKeyRecord parses an index entry's record: N indexed-column
// values followed by the rowid the entry points to. Only single-column
// indexes are supported, so the key is the record's first column; the
// rowid is its last column.
func decodeIndexKeyRecord(values []value) (key []byte, rowid uint64, err error) {
	if len(values) < 2 {
		return nil, 0, NewDatabaseError("decode_index_key_record", ErrMalformedPage, map[string]interface{}{
			"columns": len(values),
		})
	}
	key = []byte(values[0].Text())
	n, ok := values[len(values)-1].Int64()
	if !ok {
		return nil, 0, NewDatabaseError("decode_index_key_record", ErrDecodeError, nil)
	}
	return key, uint64(n), nil
}
