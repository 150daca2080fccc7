// Package wire implements the fixed framed header and the self-describing
// payload codec shared by every socket in the runtime: the worker transport,
// the master router, and the SSH argument handover.
package wire

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// FrameType is the single header byte distinguishing application data from
// runtime control frames (hello, cancel).
type FrameType uint8

const (
	// FrameData carries an application-level, tag-addressed payload.
	FrameData FrameType = 1
	// FrameControl carries a runtime signal (HELLO, CANCEL); payload may
	// be empty.
	FrameControl FrameType = 2
)

// HeaderSize is the width in bytes of a frame header: length(4) +
// type(1) + src(4) + dest(4) + tag(4).
const HeaderSize = 17

// ErrProtocol is returned when a header carries an unrecognized frame type.
var ErrProtocol = errors.New("wire: invalid frame type")

// Pack encodes a header and payload into a single contiguous frame, ready
// for one atomic socket write.
func Pack(typ FrameType, src, dest, tag uint32, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(payload)))
	buf[4] = byte(typ)
	binary.BigEndian.PutUint32(buf[5:9], src)
	binary.BigEndian.PutUint32(buf[9:13], dest)
	binary.BigEndian.PutUint32(buf[13:17], tag)
	copy(buf[HeaderSize:], payload)
	return buf
}

// UnpackHeader decodes the fixed fields of a frame header. It does not
// validate length against any buffer; callers read exactly that many
// payload bytes next.
func UnpackHeader(hdr [HeaderSize]byte) (length uint32, typ FrameType, src, dest, tag uint32, err error) {
	length = binary.BigEndian.Uint32(hdr[0:4])
	typ = FrameType(hdr[4])
	if typ != FrameData && typ != FrameControl {
		err = ErrProtocol
		return
	}
	src = binary.BigEndian.Uint32(hdr[5:9])
	dest = binary.BigEndian.Uint32(hdr[9:13])
	tag = binary.BigEndian.Uint32(hdr[13:17])
	return
}

// ReadFrame reads one header and its payload from r. A read that finds no
// header bytes at all returns io.EOF; a header or payload cut short
// returns io.ErrUnexpectedEOF. Both are unwrapped — the frame layer never
// turns connection closure into its own error type; the transport layer
// above decides what that means.
func ReadFrame(r io.Reader) (typ FrameType, src, dest, tag uint32, payload []byte, err error) {
	var hdr [HeaderSize]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return
	}
	var length uint32
	length, typ, src, dest, tag, err = UnpackHeader(hdr)
	if err != nil {
		return
	}
	if length == 0 {
		return
	}
	payload = make([]byte, length)
	_, err = io.ReadFull(r, payload)
	return
}

// Serialize encodes a value with the runtime's wire codec (msgpack): a
// schemaless, self-describing binary format capable of round-tripping the
// numeric arrays, tuples, records, and primitives user jobs pass across
// ranks.
func Serialize(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Deserialize decodes bytes produced by Serialize into out, which must be
// a pointer (or, for the generic case, a pointer to an `any`).
func Deserialize(data []byte, out any) error {
	return msgpack.Unmarshal(data, out)
}
