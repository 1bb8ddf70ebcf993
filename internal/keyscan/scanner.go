package keyscan

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/matheus3301/wxvault/internal/account"
	"github.com/matheus3301/wxvault/internal/cipher"
	"github.com/matheus3301/wxvault/internal/version"
)

const (
	// v3ScanWindow is how many bytes around the profile's key offset
	// are tried for aligned pointer candidates.
	v3ScanWindow = 0x80

	// Marker-relative pointer slots for the v4 pattern scan.
	keyPtrOffset64 = 0x60
	keyPtrOffset32 = 0x3C
)

// Scanner extracts and validates database keys from running client
// processes.
type Scanner struct {
	Table  *version.Table
	Logger *zap.Logger

	// OpenMemory returns the memory capability for a process.
	// Defaults to the platform implementation; tests inject fakes.
	OpenMemory func(pid int32) (Memory, error)
}

// NewScanner creates a scanner over the given compatibility table.
func NewScanner(table *version.Table, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{Table: table, Logger: logger, OpenMemory: OpenProcessMemory}
}

// Scan extracts a validated key for every target it can. A target
// whose build is missing from the compatibility table or whose key
// cannot be validated is skipped; if no target yields an account the
// first such error is returned (ErrKeyNotFound when keys were simply
// not found). The scan is bounded by ctx: on expiry the accounts
// validated so far are returned.
func (s *Scanner) Scan(ctx context.Context, targets []Target) ([]*account.Account, error) {
	var accounts []*account.Account
	var firstErr error

	for _, t := range targets {
		acct, err := s.scanTarget(ctx, t)
		if err != nil {
			s.Logger.Warn("scan failed for target",
				zap.Int32("pid", t.PID), zap.String("wxid", t.Wxid), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.Logger.Info("key validated",
			zap.Int32("pid", t.PID), zap.String("wxid", acct.Wxid), zap.String("scheme", acct.Version.String()))
		accounts = append(accounts, acct)
		if ctx.Err() != nil {
			break
		}
	}

	if len(accounts) == 0 {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, ErrKeyNotFound
	}
	return accounts, nil
}

func (s *Scanner) scanTarget(ctx context.Context, t Target) (*account.Account, error) {
	p, err := s.Table.Resolve(t.Build)
	if err != nil {
		return nil, err
	}

	open := s.OpenMemory
	if open == nil {
		open = OpenProcessMemory
	}
	mem, err := open(t.PID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = mem.Close() }()

	switch p.Version {
	case version.V3:
		return s.scanV3(ctx, mem, t, p)
	case version.V4:
		return s.scanV4(ctx, mem, t, p)
	default:
		return nil, version.ErrUnsupportedVersion
	}
}

// scanV3 chases the module-relative key pointer: aligned slots in a
// window around the profile's offset are dereferenced and each
// 32-byte candidate is validated by trial header decryption of the
// account's contacts database. The trial is the sole trust anchor.
func (s *Scanner) scanV3(ctx context.Context, mem Memory, t Target, p version.Profile) (*account.Account, error) {
	if t.ModuleBase == 0 {
		return nil, fmt.Errorf("%w: core module location unknown", ErrKeyNotFound)
	}
	offset := p.KeyOffset64
	if t.PointerSize == 4 {
		offset = p.KeyOffset32
	}
	if offset == 0 {
		return nil, fmt.Errorf("%w: no key offset for build %q", version.ErrUnsupportedVersion, t.Build)
	}

	window := make([]byte, v3ScanWindow+t.PointerSize)
	if err := mem.ReadAt(window, t.ModuleBase+uintptr(offset)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyNotFound, err)
	}

	probe := validationDB(t.Dir, p.Version)
	for off := 0; off+t.PointerSize <= len(window); off += t.PointerSize {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: scan budget exceeded", ErrKeyNotFound)
		}
		ptr := readPointer(window[off : off+t.PointerSize])
		if ptr == 0 {
			continue
		}
		key := make([]byte, cipher.KeySize)
		if err := mem.ReadAt(key, ptr); err != nil {
			continue // unreadable candidate, skip
		}
		if err := cipher.CheckKey(probe, p, key); err != nil {
			continue
		}
		return &account.Account{
			Wxid:    t.Wxid,
			Name:    t.Name,
			Dir:     t.Dir,
			Key:     key,
			Version: version.V3,
			Build:   t.Build,
			Profile: p,
		}, nil
	}
	return nil, ErrKeyNotFound
}

// scanV4 derives the auxiliary XOR code first (a v4 account without a
// derivable code fails closed before any message file is touched),
// then pattern-scans readable memory for the account marker and
// validates the pointer-slot candidates next to each hit.
func (s *Scanner) scanV4(ctx context.Context, mem Memory, t Target, p version.Profile) (*account.Account, error) {
	var code byte
	if p.NeedsXOR {
		datPath, err := findAuxDat(t.Dir)
		if err != nil {
			return nil, err
		}
		code, err = DeriveXORCode(datPath, p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", version.ErrUnsupportedVersion, err)
		}
	}

	if t.Wxid == "" {
		return nil, fmt.Errorf("%w: no account marker to scan for", ErrKeyNotFound)
	}
	marker := []byte(t.Wxid)
	ptrOffset := keyPtrOffset64
	if t.PointerSize == 4 {
		ptrOffset = keyPtrOffset32
	}

	regions, err := mem.Regions()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyNotFound, err)
	}

	probe := validationDB(t.Dir, p.Version)
	for _, r := range regions {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: scan budget exceeded", ErrKeyNotFound)
		}
		buf := make([]byte, r.Size)
		if err := mem.ReadAt(buf, r.Base); err != nil {
			continue // unreadable region, never fatal
		}
		for idx := bytes.Index(buf, marker); idx != -1; {
			if key := s.tryCandidate(mem, buf, idx, ptrOffset, t.PointerSize, probe, p); key != nil {
				return &account.Account{
					Wxid:    t.Wxid,
					Name:    t.Name,
					Dir:     t.Dir,
					Key:     key,
					XORKey:  code,
					Version: version.V4,
					Build:   t.Build,
					Profile: p,
				}, nil
			}
			next := bytes.Index(buf[idx+1:], marker)
			if next == -1 {
				break
			}
			idx += 1 + next
		}
	}
	return nil, ErrKeyNotFound
}

func (s *Scanner) tryCandidate(mem Memory, buf []byte, hit, ptrOffset, ptrSize int, probe string, p version.Profile) []byte {
	slot := hit - ptrOffset
	if slot < 0 || slot+ptrSize > len(buf) {
		return nil
	}
	ptr := readPointer(buf[slot : slot+ptrSize])
	if ptr == 0 {
		return nil
	}
	key := make([]byte, cipher.KeySize)
	if err := mem.ReadAt(key, ptr); err != nil {
		return nil
	}
	if err := cipher.CheckKey(probe, p, key); err != nil {
		return nil
	}
	return key
}

// validationDB is the known-structure database used for trial
// decryption of key candidates.
func validationDB(dir string, v version.Version) string {
	if v == version.V4 {
		return filepath.Join(dir, "db_storage", "message", "message_0.db")
	}
	return filepath.Join(dir, "Msg", "MicroMsg.db")
}

func readPointer(b []byte) uintptr {
	if len(b) == 8 {
		return uintptr(binary.LittleEndian.Uint64(b))
	}
	return uintptr(binary.LittleEndian.Uint32(b))
}
