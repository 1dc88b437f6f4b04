//go:build linux

package regmap

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"
)

// DefaultDevMemPath is the physical memory device used to reach SoC registers.
const DefaultDevMemPath = "/dev/mem"

// DevMem is a register region mapped from a memory device, usually /dev/mem.
type DevMem struct {
	f     *os.File
	mem   []byte
	delta int
	size  uint32
}

// OpenDevMem maps size bytes of the device at path starting at physical address base.
// The base does not need to be page aligned.
func OpenDevMem(path string, base int64, size uint32) (*DevMem, error) {
	if size == 0 || size%4 != 0 {
		return nil, fmt.Errorf("register region size %#x must be a non-zero multiple of 4", size)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	page := int64(unix.Getpagesize())
	aligned := base &^ (page - 1)
	delta := int(base - aligned)
	mem, err := unix.Mmap(int(f.Fd()), aligned, delta+int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s at %#x: %w", path, base, err)
	}
	glog.Infof("Mapped %#x bytes of %s at physical address %#x", size, path, base)
	return &DevMem{f: f, mem: mem, delta: delta, size: size}, nil
}

// Size implements Sized.
func (d *DevMem) Size() uint32 {
	return d.size
}

func (d *DevMem) word(offset uint32) *uint32 {
	if offset%4 != 0 || offset >= d.size {
		panic(fmt.Sprintf("register offset %#x outside mapped region of %#x bytes", offset, d.size))
	}
	return (*uint32)(unsafe.Pointer(&d.mem[d.delta+int(offset)]))
}

// Read32 implements Port.
func (d *DevMem) Read32(offset uint32) uint32 {
	return atomic.LoadUint32(d.word(offset))
}

// Write32 implements Port.
func (d *DevMem) Write32(offset, value uint32) {
	atomic.StoreUint32(d.word(offset), value)
}

// Close unmaps the region and closes the device.
func (d *DevMem) Close() error {
	if d.mem == nil {
		return nil
	}
	if err := unix.Munmap(d.mem); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	d.mem = nil
	return d.f.Close()
}
