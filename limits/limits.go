// Package limits provides centralized datagram and payload size limits for RGBD streaming.
// This ensures consistent validation across the transport, packetizer and replay engine.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxUDPPacketSize is the largest datagram the streamer emits.
	// This is the IPv4 UDP payload limit (65507) minus one byte of slack.
	MaxUDPPacketSize = 65506

	// MaxUDPReceiveSize is the largest datagram that can arrive on an IPv4 socket.
	MaxUDPReceiveSize = 65507

	// SocketSendBufferSize is the kernel send buffer requested for streaming sockets.
	SocketSendBufferSize = 65507

	// MinMTU is the smallest MTU the packetizer accepts.
	// It must leave room for a 16 byte header and at least one depth row of a small frame.
	MinMTU = 576

	// MaxControlMessage bounds JSON control and rendezvous messages.
	MaxControlMessage = 8192
)

var (
	// ErrMessageEmpty indicates an empty message was provided
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")

	// ErrMTUOutOfRange indicates an MTU outside [MinMTU, MaxUDPPacketSize]
	ErrMTUOutOfRange = errors.New("mtu out of range")
)

// ValidateMessageSize validates a message against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateMessageSize(message []byte, maxSize int) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrMessageTooLarge, len(message), maxSize)
	}
	return nil
}

// ValidateDatagram validates an outbound datagram against MaxUDPPacketSize.
// The transport applies it to every send.
func ValidateDatagram(datagram []byte) error {
	return ValidateMessageSize(datagram, MaxUDPPacketSize)
}

// ValidateControlMessage validates an inbound JSON control or rendezvous
// message against MaxControlMessage.
func ValidateControlMessage(message []byte) error {
	return ValidateMessageSize(message, MaxControlMessage)
}

// ValidateMTU checks that mtu can carry a datagram produced by the packetizer.
func ValidateMTU(mtu int) error {
	if mtu < MinMTU || mtu > MaxUDPPacketSize {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrMTUOutOfRange, mtu, MinMTU, MaxUDPPacketSize)
	}
	return nil
}
