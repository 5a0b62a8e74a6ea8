// Package wire defines the byte-exact structures exchanged between an RGBD
// streamer and its consumers, and persisted in recordings.
//
// Every structure has a fixed size and a fixed field order. Multi-byte
// header fields are little-endian; depth sample arrays carried in depth
// packets are big-endian. None of the layouts may change without bumping
// [IndexVersion].
//
// # Message Kinds
//
// The first byte of every datagram identifies its kind:
//
//	KindConfig    0x01  config descriptor, 132 bytes
//	KindDepth     0x03  frame header + big-endian uint16 rows
//	KindColor     0x04  frame header + compressed color image
//	KindBody      0x05  body header + N×344 byte body records
//	KindAudio     0x07  audio header + little-endian float32 samples
//	KindBodyIndex 0x33  frame header + compressed body-index image
//	KindControl   'd'   JSON control or rendezvous message
//
// # Layouts
//
//	Frame header  msgType(1) deviceID(1) deltaT(2) startRow(2) endRow(2) timestamp(8)
//	Audio header  msgType(1) unused(1) frequency(2) channels(2) samples(2) timestamp(8)
//	Body header   msgType(1) unused(1) bodyCount(2) unused(4) timestamp(8)
//	Meta record   timestamp(8) rgbd(8) audio(8) body(8) hd(8) bidx(8) frameNr(4) payloadSize(4)
//
// Encoding writes into caller-provided slices so packet buffers taken from
// the transport arena can be filled in place:
//
//	hdr := wire.FrameHeader{Kind: wire.KindDepth, StartRow: 0, EndRow: 32}
//	n, err := hdr.Put(buf.Bytes())
package wire
