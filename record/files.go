package record

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/opd-ai/rgbdstream/wire"
)

// DefaultName is the recording name that may be overwritten.
const DefaultName = "default"

const metaSuffix = ".oi.meta"

var streamSuffix = [wire.NumStreams]string{
	wire.StreamRGBD:      ".oi.rgbd",
	wire.StreamAudio:     ".oi.audio",
	wire.StreamBody:      ".oi.body",
	wire.StreamBodyIndex: ".oi.bidx",
	wire.StreamHD:        ".oi.mjpg",
}

// StreamPath returns the log path of stream s for recording name in dir.
func StreamPath(dir, name string, s wire.Stream) string {
	return filepath.Join(dir, name+streamSuffix[s])
}

// MetaPath returns the index path for recording name in dir.
func MetaPath(dir, name string) string {
	return filepath.Join(dir, name+metaSuffix)
}

// ValidateName checks that name fits the config descriptor and is a plain
// file name.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if len(name) > wire.FilenameLength {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidName, name, wire.FilenameLength)
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// logWriter appends to one recording file and tracks the write position.
type logWriter struct {
	f   *os.File
	w   *bufio.Writer
	pos uint64
}

func createLog(path string) (*logWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return &logWriter{f: f, w: bufio.NewWriterSize(f, 1<<16)}, nil
}

func (l *logWriter) Write(p []byte) (int, error) {
	n, err := l.w.Write(p)
	l.pos += uint64(n)
	return n, err
}

func (l *logWriter) Close() error {
	ferr := l.w.Flush()
	cerr := l.f.Close()
	if ferr != nil {
		return ferr
	}
	return cerr
}

// logReader reads one recording file sequentially from a seekable position.
type logReader struct {
	f    *os.File
	r    *bufio.Reader
	pos  uint64
	size uint64
}

func openLog(path string) (*logReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &logReader{f: f, r: bufio.NewReaderSize(f, 1<<16), size: uint64(st.Size())}, nil
}

func (l *logReader) Seek(pos uint64) error {
	if _, err := l.f.Seek(int64(pos), io.SeekStart); err != nil {
		return err
	}
	l.r.Reset(l.f)
	l.pos = pos
	return nil
}

func (l *logReader) ReadFull(p []byte) error {
	n, err := io.ReadFull(l.r, p)
	l.pos += uint64(n)
	return err
}

func (l *logReader) Close() error {
	return l.f.Close()
}
