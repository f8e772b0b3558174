package alsa

import (
	"syscall"
	"unsafe"
)

// ioctl performs a generic ioctl syscall.
func ioctl(fd uintptr, req uintptr, arg uintptr) error {
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, fd, req, arg)
	if errno != 0 {
		return errno
	}

	return nil
}

const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	iocNrbits    = 8
	iocTypebits  = 8
	iocSizebits  = 14
	iocNrshift   = 0
	iocTypeshift = iocNrshift + iocNrbits
	iocSizeshift = iocTypeshift + iocTypebits
	iocDirshift  = iocSizeshift + iocSizebits
)

// ioc builds an ioctl request code the way the kernel _IOC macro does.
func ioc(dir, typ, nr, size uintptr) uintptr {
	return (dir << iocDirshift) | (typ << iocTypeshift) | (nr << iocNrshift) | (size << iocSizeshift)
}

// PCM ioctls used by the driver ('A' for ALSA).
var (
	SNDRV_PCM_IOCTL_HW_PARAMS     = ioc(iocRead|iocWrite, 'A', 0x11, unsafe.Sizeof(sndPcmHwParams{}))
	SNDRV_PCM_IOCTL_SW_PARAMS     = ioc(iocRead|iocWrite, 'A', 0x13, unsafe.Sizeof(sndPcmSwParams{}))
	SNDRV_PCM_IOCTL_PREPARE       = ioc(iocNone, 'A', 0x40, 0)
	SNDRV_PCM_IOCTL_START         = ioc(iocNone, 'A', 0x42, 0)
	SNDRV_PCM_IOCTL_DROP          = ioc(iocNone, 'A', 0x43, 0)
	SNDRV_PCM_IOCTL_DRAIN         = ioc(iocNone, 'A', 0x44, 0)
	SNDRV_PCM_IOCTL_PAUSE         = ioc(iocWrite, 'A', 0x45, unsafe.Sizeof(int32(0)))
	SNDRV_PCM_IOCTL_RESUME        = ioc(iocNone, 'A', 0x47, 0)
	SNDRV_PCM_IOCTL_WRITEI_FRAMES = ioc(iocWrite, 'A', 0x50, unsafe.Sizeof(sndXferi{}))
	SNDRV_PCM_IOCTL_READI_FRAMES  = ioc(iocRead, 'A', 0x51, unsafe.Sizeof(sndXferi{}))
)
