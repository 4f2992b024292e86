package layers

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
)

// Element types of the TLV control byte.
const (
	tlvUint8      byte = 0x04
	tlvUint16     byte = 0x05
	tlvUint32     byte = 0x06
	tlvUint64     byte = 0x07
	tlvFalse      byte = 0x08
	tlvTrue       byte = 0x09
	tlvUTF8Len1   byte = 0x0C
	tlvUTF8Len2   byte = 0x0D
	tlvBytesLen1  byte = 0x10
	tlvBytesLen2  byte = 0x11
	tlvStructure  byte = 0x15
	tlvArray      byte = 0x16
	tlvEndOfCtr   byte = 0x18
	tlvContextTag byte = 0x20
)

// Tag is a context-specific tag number, or Anonymous.
type Tag int16

const Anonymous Tag = -1

// TLVEncoder writes tag-length-value elements. RawSize counts only value bytes,
// so RawSize/Len is the encoding's payload density.
type TLVEncoder struct {
	buf []byte
	raw int
}

func (e *TLVEncoder) control(tag Tag, typ byte) {
	if tag == Anonymous {
		e.buf = append(e.buf, typ)
		return
	}
	e.buf = append(e.buf, tlvContextTag|typ, byte(tag))
}

func (e *TLVEncoder) PutUint(tag Tag, v uint64) {
	switch {
	case v <= math.MaxUint8:
		e.control(tag, tlvUint8)
		e.buf = append(e.buf, byte(v))
		e.raw++
	case v <= math.MaxUint16:
		e.control(tag, tlvUint16)
		e.buf = binary.LittleEndian.AppendUint16(e.buf, uint16(v))
		e.raw += 2
	case v <= math.MaxUint32:
		e.control(tag, tlvUint32)
		e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(v))
		e.raw += 4
	default:
		e.control(tag, tlvUint64)
		e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
		e.raw += 8
	}
}

func (e *TLVEncoder) PutBool(tag Tag, v bool) {
	if v {
		e.control(tag, tlvTrue)
	} else {
		e.control(tag, tlvFalse)
	}
	e.raw++
}

func (e *TLVEncoder) PutString(tag Tag, s string) {
	e.putLen(tag, tlvUTF8Len1, tlvUTF8Len2, len(s))
	e.buf = append(e.buf, s...)
	e.raw += len(s)
}

func (e *TLVEncoder) PutBytes(tag Tag, b []byte) {
	e.putLen(tag, tlvBytesLen1, tlvBytesLen2, len(b))
	e.buf = append(e.buf, b...)
	e.raw += len(b)
}

func (e *TLVEncoder) putLen(tag Tag, short, long byte, n int) {
	if n <= math.MaxUint8 {
		e.control(tag, short)
		e.buf = append(e.buf, byte(n))
		return
	}
	e.control(tag, long)
	e.buf = binary.LittleEndian.AppendUint16(e.buf, uint16(n))
}

func (e *TLVEncoder) StartStructure(tag Tag) { e.control(tag, tlvStructure) }

func (e *TLVEncoder) StartArray(tag Tag) { e.control(tag, tlvArray) }

func (e *TLVEncoder) EndContainer() { e.buf = append(e.buf, tlvEndOfCtr) }

func (e *TLVEncoder) Bytes() []byte { return e.buf }

func (e *TLVEncoder) Len() int { return len(e.buf) }

func (e *TLVEncoder) RawSize() int { return e.raw }

// EncodeClusterReport encodes a fixed attribute report covering clusters. Cluster
// ids are read from a trailing "_0x...." suffix when present.
func EncodeClusterReport(clusters []string) *TLVEncoder {
	enc := &TLVEncoder{}
	enc.StartStructure(Anonymous)
	enc.PutUint(0, 1) // endpoint
	enc.StartArray(1)
	for _, name := range clusters {
		enc.StartStructure(Anonymous)
		enc.PutUint(0, clusterID(name))
		enc.PutString(1, clusterLabel(name))
		enc.PutBool(2, true)
		enc.EndContainer()
	}
	enc.EndContainer()
	enc.EndContainer()
	return enc
}

func clusterID(name string) uint64 {
	i := strings.LastIndex(name, "_0x")
	if i < 0 {
		return 0
	}
	id, err := strconv.ParseUint(name[i+1:], 0, 32)
	if err != nil {
		return 0
	}
	return id
}

func clusterLabel(name string) string {
	if i := strings.LastIndex(name, "_0x"); i >= 0 {
		return name[:i]
	}
	return name
}
