//go:build linux && (amd64 || arm64)

package alsa

// sndPcmUframesT is an unsigned long in the ALSA headers.
type sndPcmUframesT = uint64

// sndPcmSframesT is a signed long in the ALSA headers.
type sndPcmSframesT = int64
