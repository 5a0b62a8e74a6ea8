// Package streamer is the application loop that ties the transport, the
// capture device, the packetizer, the command scheduler and the
// record/replay engine together.
//
// Each Iterate call runs one pass on the calling goroutine:
//
//  1. drain received datagrams and queue the control commands they carry
//  2. execute every command whose due time has passed
//  3. replay the next recorded frame when one is due
//  4. poll the device and packetize a new live frame
//  5. log throughput statistics once per interval
//
// Nothing in a pass blocks on the network. Running out of send buffers, or
// a closed transport, ends the loop with an error; a malformed command or a
// single oversized frame is logged and skipped.
//
// Run wraps Iterate in a ticker loop and, when a rendezvous client is
// configured, runs its state machine alongside under one errgroup:
//
//	s, err := streamer.New(conn, dev, engine, streamer.Options{Rendezvous: client})
//	if err != nil {
//	    return err
//	}
//	return s.Run(ctx)
package streamer
