package rcp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/threadkit/threadkit-go/pkg/log"
)

// Framing constants.
const (
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 2

	// MaxMessageSize bounds one host-link message. It leaves room for a full
	// PSDU plus the message envelope.
	MaxMessageSize = 512
)

// Framing errors.
var (
	// ErrMessageTooLarge indicates the message exceeds MaxMessageSize.
	ErrMessageTooLarge = errors.New("message too large")

	// ErrMessageEmpty indicates an empty message.
	ErrMessageEmpty = errors.New("message is empty")

	// ErrFrameTruncated indicates the stream ended inside a frame.
	ErrFrameTruncated = errors.New("frame truncated")
)

// FrameWriter writes length-prefixed frames to an underlying writer.
type FrameWriter struct {
	w  io.Writer
	mu sync.Mutex

	logger log.Logger
	peer   string
}

// NewFrameWriter creates a new frame writer.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// SetLogger captures every written frame to logger, tagged with peer.
// Pass nil to disable capture.
func (fw *FrameWriter) SetLogger(logger log.Logger, peer string) {
	fw.logger = logger
	fw.peer = peer
}

// WriteFrame writes one frame. Safe for concurrent use.
func (fw *FrameWriter) WriteFrame(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if len(data) > MaxMessageSize {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(data), MaxMessageSize)
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	// A single write keeps the prefix and payload together on the line.
	buf := make([]byte, LengthPrefixSize, LengthPrefixSize+len(data))
	binary.BigEndian.PutUint16(buf, uint16(len(data)))
	buf = append(buf, data...)
	if _, err := fw.w.Write(buf); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	if fw.logger != nil {
		fw.logger.Log(frameEvent(fw.peer, data, log.DirectionOut))
	}
	return nil
}

// FrameReader reads length-prefixed frames from an underlying reader.
type FrameReader struct {
	r         io.Reader
	lengthBuf [LengthPrefixSize]byte

	logger log.Logger
	peer   string
}

// NewFrameReader creates a new frame reader.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// SetLogger captures every read frame to logger, tagged with peer.
// Pass nil to disable capture.
func (fr *FrameReader) SetLogger(logger log.Logger, peer string) {
	fr.logger = logger
	fr.peer = peer
}

// ReadFrame reads one frame and returns its payload. It returns io.EOF only
// when the stream ends between frames.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(fr.r, fr.lengthBuf[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("failed to read length prefix: %w", err)
	}

	length := int(binary.BigEndian.Uint16(fr.lengthBuf[:]))
	if length == 0 {
		return nil, ErrMessageEmpty
	}
	if length > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, length, MaxMessageSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	if fr.logger != nil {
		fr.logger.Log(frameEvent(fr.peer, payload, log.DirectionIn))
	}
	return payload, nil
}

func frameEvent(peer string, data []byte, dir log.Direction) log.Event {
	return log.Event{
		Timestamp: time.Now(),
		Direction: dir,
		Layer:     log.LayerRadio,
		Category:  log.CategoryControl,
		Peer:      peer,
		Frame:     log.NewFrameEvent(data),
	}
}

// Framer combines frame reading and writing.
type Framer struct {
	*FrameReader
	*FrameWriter
}

// NewFramer creates a framer for bidirectional communication.
func NewFramer(rw io.ReadWriter) *Framer {
	return &Framer{
		FrameReader: NewFrameReader(rw),
		FrameWriter: NewFrameWriter(rw),
	}
}

// SetLogger configures capture for both directions.
func (f *Framer) SetLogger(logger log.Logger, peer string) {
	f.FrameReader.SetLogger(logger, peer)
	f.FrameWriter.SetLogger(logger, peer)
}
