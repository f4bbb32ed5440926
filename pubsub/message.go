// Copyright (c) 2025 Fifobus Authors.
// SPDX-License-Identifier: Apache-2.0

// Message model and payload codec.
//
// A payload file is a single self-describing blob:
//	4 bytes  magic "FBUS"
//	1 byte   format version
//	8 bytes  id (uint64 LE)
//	8 bytes  timestamp, microseconds since epoch (uint64 LE)
//	4 bytes  topic length (uint32 LE) + topic (UTF-8)
//	4 bytes  header count (uint32 LE), then per header:
//	         4-byte key length + key, 1-byte variant tag, variant body
//	4 bytes  content length (uint32 LE) + content
//
// The format is stable within one build; storage is process-scope and
// ephemeral so there is no cross-version compatibility requirement.

package pubsub

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"
)

var messageMagic = [4]byte{'F', 'B', 'U', 'S'}

const messageVersion = 1

// idRandomBits is the number of low id bits filled from a random
// source; the high bits hold the publish time in microseconds. 12 bits
// keeps the microsecond count representable in a uint64 until the next
// century while still making collisions within one microsecond rare.
// Duplicates are tolerated by the delivery protocol (the second link
// loses the race).
const idRandomBits = 12

// HeaderKind tags the variant stored in a HeaderValue. The values
// double as the on-disk variant tags.
type HeaderKind uint8

const (
	// HeaderNull : no value.
	HeaderNull HeaderKind = iota
	// HeaderBool : boolean.
	HeaderBool
	// HeaderInt : signed 64-bit integer.
	HeaderInt
	// HeaderFloat : double-precision float.
	HeaderFloat
	// HeaderString : UTF-8 string.
	HeaderString
)

// HeaderValue is a tagged union over the permitted header scalar
// variants. The zero value is the null variant.
type HeaderValue struct {
	Kind  HeaderKind
	Bool  bool
	Int   int64
	Float float64
	Str   string
}

// NullHeader returns the null variant.
func NullHeader() HeaderValue { return HeaderValue{Kind: HeaderNull} }

// BoolHeader returns a boolean header value.
func BoolHeader(b bool) HeaderValue { return HeaderValue{Kind: HeaderBool, Bool: b} }

// IntHeader returns an integer header value.
func IntHeader(i int64) HeaderValue { return HeaderValue{Kind: HeaderInt, Int: i} }

// FloatHeader returns a float header value.
func FloatHeader(f float64) HeaderValue { return HeaderValue{Kind: HeaderFloat, Float: f} }

// StringHeader returns a string header value.
func StringHeader(s string) HeaderValue { return HeaderValue{Kind: HeaderString, Str: s} }

// Headers maps string keys to scalar values. A nil map is a valid empty
// header set.
type Headers map[string]HeaderValue

// Validate rejects header values whose tag is not a permitted variant.
func (h Headers) Validate() error {
	for key, val := range h {
		if val.Kind > HeaderString {
			return fmt.Errorf("%w: key %q has unknown variant tag %d",
				ErrInvalidHeader, key, val.Kind)
		}
	}
	return nil
}

// Message is an immutable published message. ID doubles as the payload
// filename and the token enqueued on a channel's FIFO.
type Message struct {
	ID        uint64
	Timestamp uint64 // microseconds since epoch at publish
	Topic     string
	Content   []byte
	Headers   Headers
}

// Time returns the publish timestamp as a time.Time.
func (m *Message) Time() time.Time {
	return time.UnixMicro(int64(m.Timestamp))
}

func (m *Message) String() string {
	return fmt.Sprintf("Message(topic=%q, id=%d, len=%d)", m.Topic, m.ID, len(m.Content))
}

// NewMessage builds a message for the given concrete topic, stamping it
// with a fresh id and the current time. Topic and headers must have
// been validated by the caller.
func NewMessage(topic string, content []byte, headers Headers) *Message {
	micros := uint64(time.Now().UnixMicro())
	return &Message{
		ID:        micros<<idRandomBits | randomBits(idRandomBits),
		Timestamp: micros,
		Topic:     topic,
		Content:   content,
		Headers:   headers,
	}
}

func randomBits(n uint) uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failure means the platform is broken
		panic(fmt.Sprintf("randomBits: %v", err))
	}
	return binary.LittleEndian.Uint64(b[:]) & (1<<n - 1)
}

// Encode serializes the message into a payload blob.
func (m *Message) Encode() []byte {
	var buf bytes.Buffer
	buf.Write(messageMagic[:])
	buf.WriteByte(messageVersion)
	writeUint64(&buf, m.ID)
	writeUint64(&buf, m.Timestamp)
	writeBytes(&buf, []byte(m.Topic))

	// Sort keys so the encoding is byte-stable for a given message.
	keys := make([]string, 0, len(m.Headers))
	for key := range m.Headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	writeUint32(&buf, uint32(len(keys)))
	for _, key := range keys {
		val := m.Headers[key]
		writeBytes(&buf, []byte(key))
		buf.WriteByte(byte(val.Kind))
		switch val.Kind {
		case HeaderNull:
		case HeaderBool:
			if val.Bool {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		case HeaderInt:
			writeUint64(&buf, uint64(val.Int))
		case HeaderFloat:
			writeUint64(&buf, math.Float64bits(val.Float))
		case HeaderString:
			writeBytes(&buf, []byte(val.Str))
		}
	}
	writeBytes(&buf, m.Content)
	return buf.Bytes()
}

// DecodeMessage parses a payload blob produced by Encode.
func DecodeMessage(data []byte) (*Message, error) {
	r := bytes.NewReader(data)
	var magic [4]byte
	if _, err := readFull(r, magic[:]); err != nil {
		return nil, err
	}
	if magic != messageMagic {
		return nil, fmt.Errorf("decode message: bad magic %x", magic)
	}
	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("decode message: %v", err)
	}
	if version != messageVersion {
		return nil, fmt.Errorf("decode message: unsupported version %d", version)
	}
	msg := &Message{}
	if msg.ID, err = readUint64(r); err != nil {
		return nil, err
	}
	if msg.Timestamp, err = readUint64(r); err != nil {
		return nil, err
	}
	topic, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	msg.Topic = string(topic)

	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		msg.Headers = make(Headers, count)
	}
	for i := uint32(0); i < count; i++ {
		keyBytes, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		tag, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("decode message: %v", err)
		}
		val := HeaderValue{Kind: HeaderKind(tag)}
		switch val.Kind {
		case HeaderNull:
		case HeaderBool:
			b, err := r.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("decode message: %v", err)
			}
			val.Bool = b != 0
		case HeaderInt:
			u, err := readUint64(r)
			if err != nil {
				return nil, err
			}
			val.Int = int64(u)
		case HeaderFloat:
			u, err := readUint64(r)
			if err != nil {
				return nil, err
			}
			val.Float = math.Float64frombits(u)
		case HeaderString:
			s, err := readBytes(r)
			if err != nil {
				return nil, err
			}
			val.Str = string(s)
		default:
			return nil, fmt.Errorf("decode message: key %q has unknown variant tag %d",
				keyBytes, tag)
		}
		msg.Headers[string(keyBytes)] = val
	}
	if msg.Content, err = readBytes(r); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("decode message: %d trailing bytes", r.Len())
	}
	return msg, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUint32(buf, uint32(len(b)))
	buf.Write(b)
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	n, err := r.Read(b)
	if err != nil || n != len(b) {
		return n, fmt.Errorf("decode message: expected %d bytes, got %d", len(b), n)
	}
	return n, nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if int(n) > r.Len() {
		return nil, fmt.Errorf("decode message: length %d exceeds remaining %d", n, r.Len())
	}
	b := make([]byte, n)
	if n > 0 {
		if _, err := readFull(r, b); err != nil {
			return nil, err
		}
	}
	return b, nil
}
