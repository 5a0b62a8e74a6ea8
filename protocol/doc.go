// Package protocol splits device frames into MTU-bounded packets and emits
// them through a transport.Sender.
//
// A color frame is one packet covering rows [0, height). A depth frame is
// split into consecutive row ranges of LinesPerMessage rows, each carrying
// big-endian uint16 samples. Audio, body and body-index frames are one packet
// each; high-definition color is recorded but never sent.
//
// When a Recorder is attached and recording, every packet payload is also
// appended to the matching per-stream log and one index record is written per
// RGBD frame. While the Recorder is replaying, live packets are still
// recorded but not sent.
package protocol
