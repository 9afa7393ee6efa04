package resultnode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// classID is the stable on-wire byte identifying a Node's Kind, matching
// the §6.2 polymorphic class-id convention. Kept distinct from Kind's Go
// iota so the wire tag survives additions to Kind without renumbering.
type classID uint8

const (
	classInt classID = iota + 1
	classFloat
	classString
	classRaw
	classBool
	classEnum
)

const codecVersion = 1

func kindToClass(k Kind) (classID, error) {
	switch k {
	case KindInt:
		return classInt, nil
	case KindFloat:
		return classFloat, nil
	case KindString:
		return classString, nil
	case KindRaw:
		return classRaw, nil
	case KindBool:
		return classBool, nil
	case KindEnum:
		return classEnum, nil
	default:
		return 0, fmt.Errorf("resultnode: unknown kind %d", k)
	}
}

func classToKind(c classID) (Kind, error) {
	switch c {
	case classInt:
		return KindInt, nil
	case classFloat:
		return KindFloat, nil
	case classString:
		return KindString, nil
	case classRaw:
		return KindRaw, nil
	case classBool:
		return KindBool, nil
	case classEnum:
		return KindEnum, nil
	default:
		return 0, fmt.Errorf("resultnode: unknown class id %d", c)
	}
}

// Serialize encodes n as: class-id (1B) | version (1B) | vector-flag (1B)
// | count (u32, 1 for scalars) | elements. Each element's byte layout is
// fixed-width per kind (int64/float64 as 8 bytes big-endian bit pattern,
// bool as 1 byte, string/raw as u32 length + bytes).
func Serialize(n Node) ([]byte, error) {
	class, err := kindToClass(n.Kind)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteByte(byte(class))
	buf.WriteByte(codecVersion)
	if n.Vector {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	elems := n.Flatten()
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(elems)))
	buf.Write(countBuf[:])

	for _, e := range elems {
		if err := writeScalar(&buf, e); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func writeScalar(buf *bytes.Buffer, e Node) error {
	switch e.Kind {
	case KindInt:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(e.Int))
		buf.Write(b[:])
	case KindFloat:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(e.Float))
		buf.Write(b[:])
	case KindString:
		writeLenPrefixed(buf, []byte(e.Str))
	case KindRaw:
		writeLenPrefixed(buf, e.Raw)
	case KindBool:
		if e.Bool {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case KindEnum:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(e.EnumID))
		buf.Write(b[:])
	default:
		return fmt.Errorf("resultnode: cannot serialize kind %d", e.Kind)
	}
	return nil
}

func writeLenPrefixed(buf *bytes.Buffer, data []byte) {
	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], uint32(len(data)))
	buf.Write(lb[:])
	buf.Write(data)
}

// Deserialize decodes bytes produced by Serialize.
func Deserialize(data []byte) (Node, error) {
	if len(data) < 7 {
		return Node{}, fmt.Errorf("resultnode: truncated header")
	}
	class := classID(data[0])
	version := data[1]
	if version != codecVersion {
		return Node{}, fmt.Errorf("resultnode: unsupported wire version %d", version)
	}
	kind, err := classToKind(class)
	if err != nil {
		return Node{}, err
	}
	isVector := data[2] != 0
	count := binary.BigEndian.Uint32(data[3:7])
	rest := data[7:]

	elems := make([]Node, 0, count)
	for i := uint32(0); i < count; i++ {
		e, n, err := readScalar(kind, rest)
		if err != nil {
			return Node{}, err
		}
		elems = append(elems, e)
		rest = rest[n:]
	}

	if !isVector {
		if len(elems) != 1 {
			return Node{}, fmt.Errorf("resultnode: scalar node must have exactly one element, got %d", len(elems))
		}
		return elems[0], nil
	}
	return packVector(kind, elems), nil
}

func readScalar(kind Kind, data []byte) (Node, int, error) {
	switch kind {
	case KindInt:
		if len(data) < 8 {
			return Node{}, 0, fmt.Errorf("resultnode: truncated int")
		}
		return Int64(int64(binary.BigEndian.Uint64(data[:8]))), 8, nil
	case KindFloat:
		if len(data) < 8 {
			return Node{}, 0, fmt.Errorf("resultnode: truncated float")
		}
		return Float(math.Float64frombits(binary.BigEndian.Uint64(data[:8]))), 8, nil
	case KindString:
		s, n, err := readLenPrefixed(data)
		if err != nil {
			return Node{}, 0, err
		}
		return String(string(s)), n, nil
	case KindRaw:
		b, n, err := readLenPrefixed(data)
		if err != nil {
			return Node{}, 0, err
		}
		return Raw(b), n, nil
	case KindBool:
		if len(data) < 1 {
			return Node{}, 0, fmt.Errorf("resultnode: truncated bool")
		}
		return Bool(data[0] != 0), 1, nil
	case KindEnum:
		if len(data) < 4 {
			return Node{}, 0, fmt.Errorf("resultnode: truncated enum")
		}
		return Enum(int32(binary.BigEndian.Uint32(data[:4]))), 4, nil
	default:
		return Node{}, 0, fmt.Errorf("resultnode: cannot deserialize kind %d", kind)
	}
}

func readLenPrefixed(data []byte) ([]byte, int, error) {
	if len(data) < 4 {
		return nil, 0, fmt.Errorf("resultnode: truncated length prefix")
	}
	l := binary.BigEndian.Uint32(data[:4])
	if uint32(len(data)-4) < l {
		return nil, 0, fmt.Errorf("resultnode: truncated payload")
	}
	return data[4 : 4+l], 4 + int(l), nil
}

func packVector(kind Kind, elems []Node) Node {
	n := Node{Kind: kind, Vector: true}
	switch kind {
	case KindInt:
		n.Ints = make([]int64, len(elems))
		for i, e := range elems {
			n.Ints[i] = e.Int
		}
	case KindFloat:
		n.Floats = make([]float64, len(elems))
		for i, e := range elems {
			n.Floats[i] = e.Float
		}
	case KindString:
		n.Strs = make([]string, len(elems))
		for i, e := range elems {
			n.Strs[i] = e.Str
		}
	case KindRaw:
		n.Raws = make([][]byte, len(elems))
		for i, e := range elems {
			n.Raws[i] = e.Raw
		}
	case KindBool:
		n.Bools = make([]bool, len(elems))
		for i, e := range elems {
			n.Bools[i] = e.Bool
		}
	case KindEnum:
		n.EnumIDs = make([]int32, len(elems))
		for i, e := range elems {
			n.EnumIDs[i] = e.EnumID
		}
	}
	return n
}
