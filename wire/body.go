package wire

import "math"

const (
	// JointCount is the number of tracked joints per body.
	JointCount = 25
	// BodySize is the encoded size of a Body record.
	BodySize = 344
)

// Body is one tracked skeleton.
type Body struct {
	TrackingID        uint32
	LeftHandState     uint8
	RightHandState    uint8
	LeanTrackingState uint8
	LeanX, LeanY      float32
	Joints            [JointCount][3]float32
	JointsTracked     [JointCount]uint8
}

// Put encodes b into the first BodySize bytes of dst.
func (b *Body) Put(dst []byte) (int, error) {
	if len(dst) < BodySize {
		return 0, shortBuffer("body", len(dst), BodySize)
	}
	ByteOrder.PutUint32(dst[0:4], b.TrackingID)
	dst[4] = b.LeftHandState
	dst[5] = b.RightHandState
	dst[6] = 0
	dst[7] = b.LeanTrackingState
	ByteOrder.PutUint32(dst[8:12], math.Float32bits(b.LeanX))
	ByteOrder.PutUint32(dst[12:16], math.Float32bits(b.LeanY))
	off := 16
	for _, j := range b.Joints {
		for _, v := range j {
			ByteOrder.PutUint32(dst[off:off+4], math.Float32bits(v))
			off += 4
		}
	}
	dst[316], dst[317], dst[318] = 0, 0, 0
	copy(dst[319:BodySize], b.JointsTracked[:])
	return BodySize, nil
}

// ParseBody decodes a Body from the start of src.
func ParseBody(src []byte) (Body, error) {
	var b Body
	if len(src) < BodySize {
		return b, shortBuffer("body", len(src), BodySize)
	}
	b.TrackingID = ByteOrder.Uint32(src[0:4])
	b.LeftHandState = src[4]
	b.RightHandState = src[5]
	b.LeanTrackingState = src[7]
	b.LeanX = math.Float32frombits(ByteOrder.Uint32(src[8:12]))
	b.LeanY = math.Float32frombits(ByteOrder.Uint32(src[12:16]))
	off := 16
	for i := range b.Joints {
		for k := range b.Joints[i] {
			b.Joints[i][k] = math.Float32frombits(ByteOrder.Uint32(src[off : off+4]))
			off += 4
		}
	}
	copy(b.JointsTracked[:], src[319:BodySize])
	return b, nil
}
