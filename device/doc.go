// Package device defines the contract between a capture device and the
// streamer.
//
// A Device reports its geometry, intrinsics and optional streams once, as a
// Capabilities value, when it is opened. The streamer caches that value in
// the config descriptor instead of querying the device per frame. Frames are
// then pulled with Poll, which never blocks: it returns a frame when one is
// ready and reports false otherwise.
//
// The package ships a Synthetic device that renders a moving test pattern.
// It exercises the full pipeline without hardware and backs the package
// tests of everything downstream.
//
//	dev := device.NewSynthetic(device.SyntheticOptions{Width: 512, Height: 424, FPS: 30})
//	if err := dev.Open(); err != nil {
//	    return err
//	}
//	defer dev.Close()
//	caps := dev.Capabilities()
//	cfg := caps.Config(0, maxLines)
//	for {
//	    f, ok, err := dev.Poll(time.Now())
//	    ...
//	}
//
// Color images are compressed with JPEGEncoder at the default quality of 40.
// Device GUIDs are 32 hexadecimal characters so they fit the descriptor:
// GUIDFromSerial derives a stable one from a hardware serial and NewGUID
// makes a random one.
package device
