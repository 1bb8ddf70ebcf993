package keyscan

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// clientExeNames are the executable names of the two supported client
// generations.
var clientExeNames = []string{"WeChat.exe", "Weixin.exe"}

// Target describes one running, logged-in client account.
type Target struct {
	PID  int32
	Exe  string
	Wxid string
	Name string

	// Dir is the account's profile directory (the parent of Msg/ or
	// db_storage/).
	Dir string

	// Build is the client build identifier used to resolve the
	// decryption profile.
	Build string

	// ModuleBase is the load address of the client core module,
	// needed for the v3 pointer chase.
	ModuleBase uintptr

	// PointerSize is 8 for 64-bit clients, 4 for 32-bit ones.
	PointerSize int
}

// FindTargets enumerates running client processes and infers each
// account's profile directory from the database files the process
// holds open.
func FindTargets(ctx context.Context) ([]Target, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	var targets []Target
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || !isClientExe(name) {
			continue
		}
		t := Target{PID: p.Pid, Exe: name, PointerSize: 8}

		files, err := p.OpenFilesWithContext(ctx)
		if err == nil {
			t.Dir, t.Wxid = profileDirFromOpenFiles(files)
		}
		if err := fillModuleInfo(&t); err != nil {
			// Without module info the v3 pointer chase is off the
			// table, but a v4 pattern scan can still work.
			t.ModuleBase = 0
		}
		targets = append(targets, t)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no client process running", ErrKeyNotFound)
	}
	return targets, nil
}

func isClientExe(name string) bool {
	for _, exe := range clientExeNames {
		if strings.EqualFold(name, exe) {
			return true
		}
	}
	return false
}

// profileDirFromOpenFiles finds the account directory from the open
// database handles: a v3 client keeps <dir>/Msg/Media.db open, a v4
// client keeps files under <dir>/db_storage open.
func profileDirFromOpenFiles(files []process.OpenFilesStat) (dir, wxid string) {
	for _, f := range files {
		p := filepath.ToSlash(strings.TrimPrefix(f.Path, `\\?\`))
		for _, marker := range []string{"/Msg/", "/db_storage/"} {
			idx := strings.Index(p, marker)
			if idx <= 0 {
				continue
			}
			dir = filepath.FromSlash(p[:idx])
			return dir, filepath.Base(dir)
		}
	}
	return "", ""
}
