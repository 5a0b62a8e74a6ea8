// Package transport moves datagrams between a UDP socket and the application
// through a fixed arena of reusable buffers.
//
// # Architecture
//
// Every buffer is allocated once by NewArena and recycled for the arena's
// lifetime. A buffer lives in exactly one place at a time:
//
//   - FreeReceive: waiting for the listener goroutine to fill it
//   - QueuedReceive: a received datagram waiting for the application loop
//   - FreeSend: available to build an outgoing packet
//   - QueuedSend: waiting for the sender goroutine
//   - held: checked out by a caller after Acquire or Pop
//
// Each pool has its own mutex. Transfers use an atomic state tag per buffer,
// so releasing or queueing a buffer twice fails with ErrNotHeld instead of
// corrupting the pools.
//
// # UDP Transport
//
//	opts := transport.DefaultOptions()
//	opts.ListenAddr = ":0"
//	t, err := transport.NewUDPTransport(opts)
//	if err != nil {
//	    return err
//	}
//	defer t.Close()
//
//	b, err := t.AcquireSend()
//	if errors.Is(err, transport.ErrPoolExhausted) {
//	    // backpressure: drop or fail
//	}
//	n := copy(b.Bytes(), packet)
//	_ = b.SetLen(n)
//	err = t.Enqueue(b, nil) // nil means the default destination
//
// The application never blocks on the socket. The listener goroutine parses
// the first byte of each datagram to locate its payload and either hands the
// buffer to the installed ReceiveHook or queues it for Dequeue. The sender
// goroutine sleeps on the QueuedSend condition variable and consults the
// optional SendGate before writing.
//
// SendBlocking bypasses the pools entirely and is used for small descriptors
// such as stream configuration.
//
// # Shutdown
//
// Close closes the socket, wakes the sender, waits for both goroutines and
// returns every queued buffer to its free pool. Later acquisitions report
// ErrTransportClosed.
//
// # Testing
//
// MemorySender implements Sender without a socket and captures a copy of
// every datagram, which lets packetizer and replay code be tested without
// the network.
package transport
