// Package limits provides centralized size constants and validation functions
// for RGBD streaming datagrams.
//
// # Size Hierarchy
//
//   - MaxUDPReceiveSize (65507 bytes): the largest IPv4 UDP payload; receive
//     buffers are sized to it so no datagram is ever truncated.
//
//   - MaxUDPPacketSize (65506 bytes): the default MTU of the packetizer.
//     Depth frames are split into row ranges so that every packet stays
//     below this bound.
//
//   - MinMTU (576 bytes): the smallest MTU accepted by configuration.
//
//   - MaxControlMessage (8192 bytes): the bound for JSON control and
//     rendezvous messages.
//
// # Validation Functions
//
//	if err := limits.ValidateDatagram(packet); err != nil {
//	    // ErrMessageEmpty or ErrMessageTooLarge
//	}
//
// The transport validates every outbound datagram and the scheduler and
// rendezvous client validate every inbound control message. Both are thin
// wrappers over ValidateMessageSize.
package limits
