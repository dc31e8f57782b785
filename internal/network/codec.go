package network

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

const (
	// maxFrameSize caps a single wire frame. A full shard of a 16 MiB
	// block fits comfortably; anything larger is hostile.
	maxFrameSize = 64 * 1024 * 1024

	// writeTimeout is the maximum time to wait for a frame write.
	writeTimeout = 30 * time.Second
)

// Codec frames messages over a stream connection: a 32-bit big-endian
// byte count followed by the serialized body.
type Codec struct {
	conn net.Conn
}

// NewCodec wraps a connection.
func NewCodec(conn net.Conn) *Codec {
	return &Codec{conn: conn}
}

// ReadMessage reads and decodes one frame.
func (c *Codec) ReadMessage() (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.conn, lenBuf[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	if size == 0 || size > maxFrameSize {
		return nil, fmt.Errorf("frame size %d out of bounds", size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(c.conn, body); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return Decode(body)
}

// WriteMessage encodes and writes one frame.
func (c *Codec) WriteMessage(msg Message) error {
	body, err := Encode(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return c.WriteRaw(body)
}

// WriteRaw writes an already-encoded body as one frame.
func (c *Codec) WriteRaw(body []byte) error {
	if len(body) > maxFrameSize {
		return fmt.Errorf("frame size %d out of bounds", len(body))
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := c.conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := c.conn.Write(body)
	return err
}

// Close closes the underlying connection.
func (c *Codec) Close() error {
	return c.conn.Close()
}
