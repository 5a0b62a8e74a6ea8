// Package rendezvous connects two NAT-bound endpoints through a matchmaking
// server.
//
// A Client shares its socket and send pool with a transport.UDPTransport.
// While disconnected it registers with the server every RegisterInterval.
// The server answers with the address of a candidate peer; the client then
// makes that address the transport's default destination and sends two
// hole-punch probes. Any probe received from the peer marks the client
// connected. While connected, a probe is sent every HeartbeatInterval and a
// silence longer than ConnectionTimeout returns the client to registration.
//
// Messages are JSON prefixed with the control byte 'd':
//
//	d{"packageType":"register","socketID":"...","isSender":true,"localIP":"...","UID":"..."}
//	d{"type":"answer","address":"203.0.113.7","port":1911}
//	d{"type":"punch"}
//
// Until the client is connected its send gate drops media datagrams bound
// for anything other than the server.
package rendezvous
