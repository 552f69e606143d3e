//go:build linux || darwin || freebsd || netbsd || openbsd
// +build linux darwin freebsd netbsd openbsd

package buddy

import "golang.org/x/sys/unix"

// mmapSlab maps an anonymous region of size bytes, mirroring the way a real
// guest's physical address space is backed by host memory.
func mmapSlab(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

// munmapSlab unmaps a slab previously returned by mmapSlab.
func munmapSlab(b []byte) error {
	return unix.Munmap(b)
}
