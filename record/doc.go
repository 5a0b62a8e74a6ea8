// Package record persists live streams to disk and replays them onto the
// network.
//
// # Recording Layout
//
// A recording named NAME in directory DIR consists of one log per stream
// flagged in the config descriptor plus an index:
//
//	DIR/NAME.oi.rgbd   per frame: color chunk, npackets(2), depth chunks
//	DIR/NAME.oi.audio  little-endian float32 samples, 16 kHz mono
//	DIR/NAME.oi.body   per frame: count(2) + count*344 byte bodies
//	DIR/NAME.oi.bidx   per frame: size(4) + compressed body-index image
//	DIR/NAME.oi.mjpg   per frame: size(4) + compressed HD color image
//	DIR/NAME.oi.meta   version(2) + config(132) + 56 byte meta records
//
// A chunk is startRow(2) endRow(2) size(4) followed by size bytes. Each meta
// record holds the byte offset at which its frame starts in every log, so a
// lookup by time yields seek positions for all streams at once.
//
// # Engine
//
// Engine implements protocol.Recorder, so a Packetizer tees live frames into
// the open recording. StopRecording re-reads the finished index from disk;
// that parsed FileMeta is the only table replays use.
//
//	eng := record.NewEngine(record.Options{Dir: "/var/lib/rgbd"})
//	if err := eng.StartRecording("session1", cfg); err != nil { ... }
//	...
//	eng.StopRecording()
//	eng.StartReplaying("session1", record.ReplayOptions{Loop: true})
//	for eng.Replaying() {
//	    res, err := eng.ReplayNextFrame(sender, seq)
//	    if res.Restarted { /* resend the replay config */ }
//	}
//
// The engine is driven from the application loop; its methods are safe to
// call from other goroutines but replay pacing assumes a single caller.
package record
