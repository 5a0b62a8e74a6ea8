package limits

import (
	"errors"
	"testing"
)

func TestValidateMessageSize(t *testing.T) {
	tests := []struct {
		name    string
		message []byte
		maxSize int
		wantErr error
	}{
		{"empty", nil, 10, ErrMessageEmpty},
		{"at limit", make([]byte, 10), 10, nil},
		{"over limit", make([]byte, 11), 10, ErrMessageTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessageSize(tt.message, tt.maxSize)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateMessageSize() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDatagram(t *testing.T) {
	if err := ValidateDatagram(make([]byte, MaxUDPPacketSize)); err != nil {
		t.Errorf("datagram at MaxUDPPacketSize rejected: %v", err)
	}
	if err := ValidateDatagram(make([]byte, MaxUDPPacketSize+1)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("oversized datagram error = %v, want ErrMessageTooLarge", err)
	}
	if err := ValidateDatagram(nil); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("empty datagram error = %v, want ErrMessageEmpty", err)
	}
}

func TestValidateControlMessage(t *testing.T) {
	if err := ValidateControlMessage([]byte(`{"cmd":"application"}`)); err != nil {
		t.Errorf("small control message rejected: %v", err)
	}
	if err := ValidateControlMessage(make([]byte, MaxControlMessage+1)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("oversized control message error = %v, want ErrMessageTooLarge", err)
	}
}

func TestValidateMTU(t *testing.T) {
	for _, mtu := range []int{MinMTU, 1400, MaxUDPPacketSize} {
		if err := ValidateMTU(mtu); err != nil {
			t.Errorf("ValidateMTU(%d) = %v, want nil", mtu, err)
		}
	}
	for _, mtu := range []int{0, MinMTU - 1, MaxUDPPacketSize + 1} {
		if err := ValidateMTU(mtu); !errors.Is(err, ErrMTUOutOfRange) {
			t.Errorf("ValidateMTU(%d) = %v, want ErrMTUOutOfRange", mtu, err)
		}
	}
}

func TestSizeHierarchy(t *testing.T) {
	if MaxUDPPacketSize >= MaxUDPReceiveSize {
		t.Errorf("MaxUDPPacketSize (%d) must be below MaxUDPReceiveSize (%d)", MaxUDPPacketSize, MaxUDPReceiveSize)
	}
	if MinMTU >= MaxUDPPacketSize {
		t.Errorf("MinMTU (%d) must be below MaxUDPPacketSize (%d)", MinMTU, MaxUDPPacketSize)
	}
}
