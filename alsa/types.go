package alsa

// sndMask is a bitmask for hardware parameters.
type sndMask struct {
	Bits [8]uint32
}

// sndInterval represents a range of values for a hardware parameter.
type sndInterval struct {
	MinVal uint32
	MaxVal uint32
	Flags  uint32
}

// sndXferi is for interleaved read/write operations.
type sndXferi struct {
	Result sndPcmSframesT
	Buf    uintptr // void*
	Frames sndPcmUframesT
}

// sndPcmHwParams contains hardware parameters for a PCM device.
// Go aligns FifoSize the same way the C compiler does on every supported architecture.
type sndPcmHwParams struct {
	Flags     uint32
	Masks     [3]sndMask
	Mres      [5]sndMask
	Intervals [12]sndInterval
	Ires      [9]sndInterval
	Rmask     uint32
	Cmask     uint32
	Info      uint32
	Msbits    uint32
	RateNum   uint32
	RateDen   uint32
	FifoSize  sndPcmUframesT
	Reserved  [64]byte
}

// sndPcmSwParams contains software parameters for a PCM device.
// On 64-bit targets the compiler pads SleepMin to align AvailMin, as C does.
type sndPcmSwParams struct {
	TstampMode       int32
	PeriodStep       uint32
	SleepMin         uint32
	AvailMin         sndPcmUframesT
	XferAlign        sndPcmUframesT
	StartThreshold   sndPcmUframesT
	StopThreshold    sndPcmUframesT
	SilenceThreshold sndPcmUframesT
	SilenceSize      sndPcmUframesT
	Boundary         sndPcmUframesT
	Proto            uint32
	TstampType       uint32
	Reserved         [56]byte
}

// pcmParam identifies a hardware parameter (SNDRV_PCM_HW_PARAM_*).
type pcmParam int

const (
	paramAccess      pcmParam = 0
	paramFormat      pcmParam = 1
	paramSubformat   pcmParam = 2
	paramSampleBits  pcmParam = 8
	paramChannels    pcmParam = 10
	paramRate        pcmParam = 11
	paramPeriodSize  pcmParam = 13
	paramPeriods     pcmParam = 15
	paramBufferSize  pcmParam = 17
	paramLastInteger pcmParam = 19

	accessRWInterleaved = 3
	intervalInteger     = 1 << 2
)

// newHwParams returns parameters with every mask and interval fully open.
func newHwParams() *sndPcmHwParams {
	p := &sndPcmHwParams{}

	for n := range p.Masks {
		for i := range p.Masks[n].Bits {
			p.Masks[n].Bits[i] = ^uint32(0)
		}
	}

	for n := range p.Mres {
		for i := range p.Mres[n].Bits {
			p.Mres[n].Bits[i] = ^uint32(0)
		}
	}

	for n := range p.Intervals {
		p.Intervals[n].MaxVal = ^uint32(0)
	}

	for n := range p.Ires {
		p.Ires[n].MaxVal = ^uint32(0)
	}

	p.Rmask = ^uint32(0)
	p.Info = ^uint32(0)

	return p
}

func (p *sndPcmHwParams) setMask(param pcmParam, bit uint32) {
	if param < paramAccess || param > paramSubformat || bit >= 256 {
		return
	}

	mask := &p.Masks[param-paramAccess]
	mask.Bits = [8]uint32{}
	mask.Bits[bit>>5] |= 1 << (bit & 31)
}

func (p *sndPcmHwParams) interval(param pcmParam) *sndInterval {
	if param < paramSampleBits || param > paramLastInteger {
		return nil
	}

	return &p.Intervals[param-paramSampleBits]
}

func (p *sndPcmHwParams) setInt(param pcmParam, val uint32) {
	if iv := p.interval(param); iv != nil {
		iv.MinVal = val
		iv.MaxVal = val
		iv.Flags = intervalInteger
	}
}

func (p *sndPcmHwParams) setMin(param pcmParam, val uint32) {
	if iv := p.interval(param); iv != nil {
		iv.MinVal = val
	}
}

// getInt reads back a refined parameter. The driver narrows intervals to a single value.
func (p *sndPcmHwParams) getInt(param pcmParam) uint32 {
	if iv := p.interval(param); iv != nil {
		return iv.MinVal
	}

	return 0
}
