//go:build windows

package keyscan

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// winMemory reads a process's address space via ReadProcessMemory.
type winMemory struct {
	handle windows.Handle
}

// OpenProcessMemory opens the process for memory inspection.
func OpenProcessMemory(pid int32) (Memory, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION|windows.PROCESS_VM_READ, false, uint32(pid))
	if err != nil {
		return nil, fmt.Errorf("open process %d: %w", pid, err)
	}
	return &winMemory{handle: h}, nil
}

func (m *winMemory) Regions() ([]Region, error) {
	var regions []Region
	var addr uintptr
	for {
		var mbi windows.MemoryBasicInformation
		err := windows.VirtualQueryEx(m.handle, addr, &mbi, unsafe.Sizeof(mbi))
		if err != nil {
			break
		}
		if mbi.State == windows.MEM_COMMIT && readableProtection(mbi.Protect) {
			regions = append(regions, Region{Base: mbi.BaseAddress, Size: uint64(mbi.RegionSize)})
		}
		next := mbi.BaseAddress + mbi.RegionSize
		if next <= addr {
			break
		}
		addr = next
	}
	return regions, nil
}

func readableProtection(protect uint32) bool {
	switch protect {
	case windows.PAGE_READONLY,
		windows.PAGE_READWRITE,
		windows.PAGE_EXECUTE_READ,
		windows.PAGE_EXECUTE_READWRITE:
		return true
	}
	return false
}

func (m *winMemory) ReadAt(p []byte, addr uintptr) error {
	if len(p) == 0 {
		return nil
	}
	var read uintptr
	err := windows.ReadProcessMemory(m.handle, addr, &p[0], uintptr(len(p)), &read)
	if err != nil {
		return fmt.Errorf("read %#x: %w", addr, err)
	}
	if int(read) != len(p) {
		return fmt.Errorf("read %#x: short read (%d of %d)", addr, read, len(p))
	}
	return nil
}

func (m *winMemory) Close() error {
	return windows.CloseHandle(m.handle)
}
