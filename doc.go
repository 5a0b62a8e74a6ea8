// Package rgbdstream streams an RGBD camera over UDP.
//
// A sender captures color, depth, audio and body tracking from a device,
// splits every frame into datagrams that fit the path MTU and sends them to
// one receiver. The receiver is either configured directly or discovered
// through a matchmaking server that coordinates UDP hole punching. The
// receiver drives the sender with JSON commands: it can ask for the stream
// configuration, update the camera pose, toggle the device, and record or
// replay sessions on the sender's disk.
//
// # Packages
//
//   - wire: datagram headers, the stream configuration and byte order
//   - transport: the buffer arena and the UDP socket goroutines
//   - rendezvous: matchmaking registration, hole punching and heartbeats
//   - protocol: frame packetization and the sequence counter
//   - scheduler: command parsing and the time-ordered command queue
//   - record: recording files, seekable indices and replay
//   - device: the camera abstraction and a synthetic camera
//   - stats: rolling stream statistics
//   - config: the TOML configuration file
//   - streamer: the main loop tying the pieces together
//
// The rgbdstreamer command under cmd/ runs a complete sender:
//
//	rgbdstreamer -config streamer.toml
//
// Wire integers are little-endian except depth samples, which are sent
// big-endian.
package rgbdstream
