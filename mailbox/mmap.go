package mailbox

import (
	"fmt"
	"os"
	"unsafe"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// Mapping is a region backed by a shared file mapping, so the writer and the
// reader can live in different processes.
type Mapping struct {
	f    *os.File
	data []byte
}

// Map maps the file at path as a shared region, creating it and growing it
// to Size when needed.
func Map(path string) (*Mapping, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("mailbox: could not open %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("mailbox: could not stat %s: %w", path, err), f.Close())
	}
	if fi.Size() < Size {
		if err := f.Truncate(Size); err != nil {
			return nil, multierr.Append(fmt.Errorf("mailbox: could not size %s: %w", path, err), f.Close())
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("mailbox: could not map %s: %w", path, err), f.Close())
	}

	return &Mapping{f: f, data: data}, nil
}

// Region returns the mapped record.
func (m *Mapping) Region() Region {
	return unsafe.Slice((*uint32)(unsafe.Pointer(&m.data[0])), Words)
}

// Close unmaps the region and closes the file. The Region must not be used
// afterwards.
func (m *Mapping) Close() error {
	return multierr.Append(unix.Munmap(m.data), m.f.Close())
}
