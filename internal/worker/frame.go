package worker

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// ProtocolVersion is bumped whenever a message layout changes. Parent and
// worker are the same binary, so a mismatch means a stale executable.
const ProtocolVersion = 1

const (
	frameMagic   = "CLVW"
	headerSize   = len(frameMagic) + 2 + 4
	maxFrameSize = 64 << 20
)

// Kind identifies the message carried by a frame.
type Kind uint8

const (
	// KindRun asks the worker to execute one test. Payload: harness.Request.
	KindRun Kind = iota + 1
	// KindScan asks the worker to scan a module. Payload: ScanRequest.
	KindScan
	// KindProgress reports the stage a test reached. Payload: Progress.
	KindProgress
	// KindResult carries the outcome of a run. Payload: result.Outcome.
	KindResult
	// KindScanResult carries the plugins of a module. Payload:
	// harness.ScanResult.
	KindScanResult
	// KindError reports a request the worker could not serve. Payload:
	// ErrorMessage.
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindRun:
		return "run"
	case KindScan:
		return "scan"
	case KindProgress:
		return "progress"
	case KindResult:
		return "result"
	case KindScanResult:
		return "scan_result"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

var (
	// ErrBadMagic means the stream does not carry worker frames.
	ErrBadMagic = errors.New("worker: bad frame magic")
	// ErrVersionMismatch means the peer speaks another protocol version.
	ErrVersionMismatch = errors.New("worker: protocol version mismatch")
	// ErrFrameTooLarge means a frame header announced an oversized payload.
	ErrFrameTooLarge = errors.New("worker: frame too large")
)

// ScanRequest is the payload of a KindScan frame.
type ScanRequest struct {
	Path string `msgpack:"path"`
}

// Progress is the payload of a KindProgress frame.
type Progress struct {
	Stage string `msgpack:"stage"`
}

// ErrorMessage is the payload of a KindError frame. SetupKind is set when
// the failure was an *abi.SetupError.
type ErrorMessage struct {
	SetupKind string `msgpack:"setup_kind"`
	Path      string `msgpack:"path"`
	Message   string `msgpack:"message"`
}

// Frame is one decoded message.
type Frame struct {
	Kind    Kind
	Payload []byte
}

// Decode unmarshals the payload into v.
func (f Frame) Decode(v any) error {
	if err := msgpack.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("decode %s frame: %w", f.Kind, err)
	}
	return nil
}

// WriteFrame encodes v with msgpack and writes it as a single frame:
//
//	"CLVW" | version (1 byte) | kind (1 byte) | length (uint32 BE) | payload
func WriteFrame(w io.Writer, kind Kind, v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", kind, err)
	}
	if len(payload) > maxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	buf := make([]byte, headerSize, headerSize+len(payload))
	copy(buf, frameMagic)
	buf[4] = ProtocolVersion
	buf[5] = byte(kind)
	binary.BigEndian.PutUint32(buf[6:], uint32(len(payload)))
	buf = append(buf, payload...)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write %s frame: %w", kind, err)
	}
	return nil
}

// ReadFrame reads the next frame. It returns io.EOF only when the stream
// ends cleanly between frames.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, err
	}
	if string(header[:4]) != frameMagic {
		return Frame{}, ErrBadMagic
	}
	if header[4] != ProtocolVersion {
		return Frame{}, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, header[4], ProtocolVersion)
	}
	size := binary.BigEndian.Uint32(header[6:])
	if size > maxFrameSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, fmt.Errorf("read %s frame payload: %w", Kind(header[5]), err)
	}
	return Frame{Kind: Kind(header[5]), Payload: payload}, nil
}

// frameWriter serializes concurrent frame writes. Progress is reported
// from both the main and the audio thread.
type frameWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (fw *frameWriter) write(kind Kind, v any) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return WriteFrame(fw.w, kind, v)
}
