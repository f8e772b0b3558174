//go:build linux && (386 || arm)

package alsa

// sndPcmUframesT is an unsigned long in the ALSA headers.
type sndPcmUframesT = uint32

// sndPcmSframesT is a signed long in the ALSA headers.
type sndPcmSframesT = int32
