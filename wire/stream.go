package wire

// Stream identifies one per-stream recording log.
type Stream int

const (
	StreamRGBD Stream = iota
	StreamAudio
	StreamBody
	StreamBodyIndex
	StreamHD

	NumStreams
)

// Streams lists every stream in log order.
var Streams = [NumStreams]Stream{StreamRGBD, StreamAudio, StreamBody, StreamBodyIndex, StreamHD}

func (s Stream) String() string {
	switch s {
	case StreamRGBD:
		return "rgbd"
	case StreamAudio:
		return "audio"
	case StreamBody:
		return "body"
	case StreamBodyIndex:
		return "bidx"
	case StreamHD:
		return "mjpg"
	default:
		return "unknown"
	}
}

// Flag returns the data flag that enables s.
func (s Stream) Flag() DataFlags {
	switch s {
	case StreamRGBD:
		return FlagRGBD
	case StreamAudio:
		return FlagAudio
	case StreamBody:
		return FlagBody
	case StreamBodyIndex:
		return FlagBodyIndex
	case StreamHD:
		return FlagHD
	default:
		return 0
	}
}

const (
	// AudioSampleRate is the sample rate of recorded audio logs.
	AudioSampleRate = 16000
	// AudioSamplesPerMilli is the number of recorded samples per millisecond.
	AudioSamplesPerMilli = AudioSampleRate / 1000
	// AudioSampleSize is the size of one float32 sample.
	AudioSampleSize = 4
)
