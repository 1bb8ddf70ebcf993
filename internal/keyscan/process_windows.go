//go:build windows

package keyscan

import (
	"fmt"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

// coreModuleNames are the modules holding the key material per client
// generation.
var coreModuleNames = []string{"WeChatWin.dll", "Weixin.dll"}

// fillModuleInfo locates the client core module in the target process
// and reads its build identifier from the version resource.
func fillModuleInfo(t *Target) error {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, uint32(t.PID))
	if err != nil {
		return fmt.Errorf("module snapshot pid %d: %w", t.PID, err)
	}
	defer windows.CloseHandle(snapshot)

	var module windows.ModuleEntry32
	module.Size = uint32(unsafe.Sizeof(module))
	for err = windows.Module32First(snapshot, &module); err == nil; err = windows.Module32Next(snapshot, &module) {
		name := windows.UTF16ToString(module.Module[:])
		if !isCoreModule(name) {
			continue
		}
		t.ModuleBase = module.ModBaseAddr
		t.Build, err = moduleBuild(windows.UTF16ToString(module.ExePath[:]))
		if err != nil {
			return err
		}
		t.PointerSize = pointerSize(t.PID)
		return nil
	}
	return fmt.Errorf("core module not found in pid %d", t.PID)
}

func isCoreModule(name string) bool {
	for _, m := range coreModuleNames {
		if strings.EqualFold(name, m) {
			return true
		}
	}
	return false
}

// moduleBuild reads the four-part file version from the module's
// version resource.
func moduleBuild(path string) (string, error) {
	var zero windows.Handle
	size, err := windows.GetFileVersionInfoSize(path, &zero)
	if err != nil {
		return "", fmt.Errorf("version info size: %w", err)
	}
	buf := make([]byte, size)
	if err := windows.GetFileVersionInfo(path, 0, size, unsafe.Pointer(&buf[0])); err != nil {
		return "", fmt.Errorf("version info: %w", err)
	}
	var info *windows.VS_FIXEDFILEINFO
	infoLen := uint32(unsafe.Sizeof(*info))
	if err := windows.VerQueryValue(unsafe.Pointer(&buf[0]), `\`, unsafe.Pointer(&info), &infoLen); err != nil {
		return "", fmt.Errorf("query version value: %w", err)
	}
	return fmt.Sprintf("%d.%d.%d.%d",
		info.FileVersionMS>>16, info.FileVersionMS&0xffff,
		info.FileVersionLS>>16, info.FileVersionLS&0xffff), nil
}

func pointerSize(pid int32) int {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return 8
	}
	defer windows.CloseHandle(handle)
	var wow64 bool
	if err := windows.IsWow64Process(handle, &wow64); err != nil {
		return 8
	}
	if wow64 {
		return 4
	}
	return 8
}
