package wire

// ChunkHeaderSize is the size of the prefix of each row chunk in an RGBD log.
const ChunkHeaderSize = 8

// ChunkHeader prefixes one color or depth chunk in an RGBD log:
// startRow(2) endRow(2) size(4).
type ChunkHeader struct {
	StartRow uint16
	EndRow   uint16
	Size     uint32
}

// Put encodes h into the first ChunkHeaderSize bytes of b.
func (h *ChunkHeader) Put(b []byte) (int, error) {
	if len(b) < ChunkHeaderSize {
		return 0, shortBuffer("chunk header", len(b), ChunkHeaderSize)
	}
	ByteOrder.PutUint16(b[0:2], h.StartRow)
	ByteOrder.PutUint16(b[2:4], h.EndRow)
	ByteOrder.PutUint32(b[4:8], h.Size)
	return ChunkHeaderSize, nil
}

// ParseChunkHeader decodes a ChunkHeader from the start of b.
func ParseChunkHeader(b []byte) (ChunkHeader, error) {
	if len(b) < ChunkHeaderSize {
		return ChunkHeader{}, shortBuffer("chunk header", len(b), ChunkHeaderSize)
	}
	return ChunkHeader{
		StartRow: ByteOrder.Uint16(b[0:2]),
		EndRow:   ByteOrder.Uint16(b[2:4]),
		Size:     ByteOrder.Uint32(b[4:8]),
	}, nil
}
