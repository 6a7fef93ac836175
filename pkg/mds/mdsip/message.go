// Package mdsip speaks the MDSplus remote access protocol: a stream of
// messages, each a fixed 48-byte header followed by the raw data of one
// argument or answer.
package mdsip

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DType is an MDSplus descriptor data type code.
type DType uint8

const (
	DTypeBU  DType = 2
	DTypeWU  DType = 3
	DTypeLU  DType = 4
	DTypeQU  DType = 5
	DTypeB   DType = 6
	DTypeW   DType = 7
	DTypeL   DType = 8
	DTypeQ   DType = 9
	DTypeF   DType = 10
	DTypeD   DType = 11
	DTypeFC  DType = 12
	DTypeDC  DType = 13
	DTypeT   DType = 14
	DTypeFS  DType = 52
	DTypeFT  DType = 53
	DTypeFSC DType = 54
	DTypeFTC DType = 55
)

const (
	headerSize = 48
	maxDims    = 8

	// clientIEEE identifies a little endian IEEE float client.
	clientIEEE int8 = 2

	flagBigEndian  = 0x80
	flagCompressed = 0x20

	// maxMessageSize bounds the body a peer may announce.
	maxMessageSize = 1 << 30
)

var ErrProtocol = errors.New("mdsip protocol error")

type header struct {
	MsgLen     int32
	Status     int32
	Length     int16
	NArgs      uint8
	DescIdx    uint8
	MessageID  uint8
	DType      uint8
	ClientType int8
	NDims      uint8
	Dims       [maxDims]int32
}

// Message is one protocol frame.
type Message struct {
	Status  int32
	DType   DType
	Length  int16 // bytes per element
	NArgs   uint8
	DescIdx uint8
	ID      uint8
	Dims    []int32
	Body    []byte
	Order   binary.ByteOrder
}

func writeMessage(w io.Writer, m Message) error {
	if len(m.Dims) > maxDims {
		return fmt.Errorf("%w: %d dimensions", ErrProtocol, len(m.Dims))
	}
	h := header{
		MsgLen:     int32(headerSize + len(m.Body)),
		Status:     m.Status,
		Length:     m.Length,
		NArgs:      m.NArgs,
		DescIdx:    m.DescIdx,
		MessageID:  m.ID,
		DType:      uint8(m.DType),
		ClientType: clientIEEE,
		NDims:      uint8(len(m.Dims)),
	}
	copy(h.Dims[:], m.Dims)

	order := m.Order
	if order == nil {
		order = binary.LittleEndian
	}
	if order == binary.BigEndian {
		h.ClientType = int8(uint8(h.ClientType) | flagBigEndian)
	}

	var buf bytes.Buffer
	buf.Grow(headerSize + len(m.Body))
	if err := binary.Write(&buf, order, h); err != nil {
		return err
	}
	buf.Write(m.Body)
	_, err := w.Write(buf.Bytes())
	return err
}

func readMessage(r io.Reader) (Message, error) {
	var raw [headerSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return Message{}, err
	}

	var order binary.ByteOrder = binary.LittleEndian
	clientType := raw[14]
	if clientType&flagBigEndian != 0 {
		order = binary.BigEndian
	}
	if clientType&flagCompressed != 0 {
		return Message{}, fmt.Errorf("%w: compressed messages are not supported", ErrProtocol)
	}

	var h header
	if err := binary.Read(bytes.NewReader(raw[:]), order, &h); err != nil {
		return Message{}, err
	}
	if h.MsgLen < headerSize || h.MsgLen > maxMessageSize || h.NDims > maxDims {
		return Message{}, fmt.Errorf("%w: bad header (length %d, %d dims)", ErrProtocol, h.MsgLen, h.NDims)
	}

	body := make([]byte, h.MsgLen-headerSize)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, err
	}

	dims := make([]int32, h.NDims)
	copy(dims, h.Dims[:h.NDims])
	return Message{
		Status:  h.Status,
		DType:   DType(h.DType),
		Length:  h.Length,
		NArgs:   h.NArgs,
		DescIdx: h.DescIdx,
		ID:      h.MessageID,
		Dims:    dims,
		Body:    body,
		Order:   order,
	}, nil
}
