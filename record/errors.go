package record

import (
	"errors"
	"fmt"
)

var (
	// ErrRecordingConflict indicates a record or replay request that clashes
	// with the current session state. No state is changed.
	ErrRecordingConflict = errors.New("recording conflict")

	// ErrAlreadyRecording indicates a recording is already open
	ErrAlreadyRecording = fmt.Errorf("%w: already recording", ErrRecordingConflict)

	// ErrNameExists indicates a recording with the requested name already exists
	ErrNameExists = fmt.Errorf("%w: name already exists", ErrRecordingConflict)

	// ErrRecordingInUse indicates a replay of the recording currently being written
	ErrRecordingInUse = fmt.Errorf("%w: cannot replay a recording while writing it", ErrRecordingConflict)

	// ErrRange indicates a replay slice or seek outside the recorded duration
	ErrRange = errors.New("time out of recording range")

	// ErrIO indicates a recording file could not be opened, read or written
	ErrIO = errors.New("recording i/o failure")

	// ErrNotFound indicates no index exists for the requested name
	ErrNotFound = errors.New("recording not found")

	// ErrEmptyRecording indicates an index without any frames
	ErrEmptyRecording = errors.New("recording has no frames")

	// ErrInvalidName indicates a recording name that cannot be used as a file name
	ErrInvalidName = errors.New("invalid recording name")

	// ErrVersion indicates an index written with an unsupported version tag
	ErrVersion = errors.New("unsupported index version")
)
