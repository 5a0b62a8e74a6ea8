package wire

const (
	// MetaRecordSize is the encoded size of a MetaRecord.
	MetaRecordSize = 56

	// IndexVersion is the version tag written at the start of every index file.
	IndexVersion uint16 = 1
	// IndexVersionSize is the encoded size of the version tag.
	IndexVersionSize = 2
	// IndexHeaderSize is the size of the index preamble preceding the meta records.
	IndexHeaderSize = IndexVersionSize + ConfigSize
)

// MetaRecord indexes one recorded frame: its capture time and the byte
// offset of the frame's data in each per-stream log.
type MetaRecord struct {
	Timestamp   int64 // Unix milliseconds
	RGBD        uint64
	Audio       uint64
	Body        uint64
	HD          uint64
	BodyIndex   uint64
	FrameNr     uint32
	PayloadSize uint32 // bytes of opaque payload following the record
}

// Put encodes m into the first MetaRecordSize bytes of b.
func (m *MetaRecord) Put(b []byte) (int, error) {
	if len(b) < MetaRecordSize {
		return 0, shortBuffer("meta record", len(b), MetaRecordSize)
	}
	ByteOrder.PutUint64(b[0:8], uint64(m.Timestamp))
	ByteOrder.PutUint64(b[8:16], m.RGBD)
	ByteOrder.PutUint64(b[16:24], m.Audio)
	ByteOrder.PutUint64(b[24:32], m.Body)
	ByteOrder.PutUint64(b[32:40], m.HD)
	ByteOrder.PutUint64(b[40:48], m.BodyIndex)
	ByteOrder.PutUint32(b[48:52], m.FrameNr)
	ByteOrder.PutUint32(b[52:56], m.PayloadSize)
	return MetaRecordSize, nil
}

// ParseMetaRecord decodes a MetaRecord from the start of b.
func ParseMetaRecord(b []byte) (MetaRecord, error) {
	if len(b) < MetaRecordSize {
		return MetaRecord{}, shortBuffer("meta record", len(b), MetaRecordSize)
	}
	return MetaRecord{
		Timestamp:   int64(ByteOrder.Uint64(b[0:8])),
		RGBD:        ByteOrder.Uint64(b[8:16]),
		Audio:       ByteOrder.Uint64(b[16:24]),
		Body:        ByteOrder.Uint64(b[24:32]),
		HD:          ByteOrder.Uint64(b[32:40]),
		BodyIndex:   ByteOrder.Uint64(b[40:48]),
		FrameNr:     ByteOrder.Uint32(b[48:52]),
		PayloadSize: ByteOrder.Uint32(b[52:56]),
	}, nil
}
