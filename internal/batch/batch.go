// Package batch walks an encrypted source tree and decrypts every
// database file into a staging tree mirroring the source layout.
// Per-file failures are recorded in the manifest and never abort the
// run.
package batch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/matheus3301/wxvault/internal/cipher"
	"github.com/matheus3301/wxvault/internal/version"
)

// DefaultMinSize filters out empty placeholder databases the client
// creates but never writes to.
const DefaultMinSize = 1024

// Options tunes one batch run.
type Options struct {
	// Workers bounds parallelism; one worker handles one file at a
	// time, so no two workers ever target the same destination.
	// Defaults to the CPU count.
	Workers int

	// Force re-decrypts destinations that already pass the header
	// probe.
	Force bool

	// MinSize skips source files smaller than this many bytes.
	// Defaults to DefaultMinSize.
	MinSize int64

	// Ext selects source files by extension. Defaults to ".db".
	Ext string
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.MinSize == 0 {
		o.MinSize = DefaultMinSize
	}
	if o.Ext == "" {
		o.Ext = ".db"
	}
	return o
}

// Run decrypts every eligible file under src into dst, mirroring the
// relative directory layout. Cancellation is cooperative and
// file-granular: files already being decrypted finish (preserving the
// no-partial-output guarantee), files not yet started are not
// scheduled.
func Run(ctx context.Context, src, dst string, p version.Profile, key []byte, opts Options, logger *zap.Logger) (*Manifest, error) {
	opts = opts.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	files, err := collect(src, opts)
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", src, err)
	}

	manifest := NewManifest()
	logger.Info("batch decrypt starting",
		zap.String("run_id", manifest.RunID),
		zap.String("source", src),
		zap.Int("files", len(files)),
		zap.Int("workers", opts.Workers))

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rel := range jobs {
				manifest.Append(decryptOne(src, dst, rel, p, key, opts, logger))
			}
		}()
	}

feed:
	for i, rel := range files {
		select {
		case jobs <- rel:
		case <-ctx.Done():
			// Every selected file maps to an outcome: the ones never
			// scheduled are recorded as skipped.
			for _, rest := range files[i:] {
				logger.Debug("not scheduled, run cancelled", zap.String("file", rest))
				manifest.Append(Entry{
					Source:  filepath.Join(src, rest),
					Dest:    filepath.Join(dst, rest),
					Outcome: OutcomeSkipped,
				})
			}
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	d, s, f := manifest.Counts()
	logger.Info("batch decrypt finished",
		zap.String("run_id", manifest.RunID),
		zap.Int("decrypted", d), zap.Int("skipped", s), zap.Int("failed", f))
	return manifest, ctx.Err()
}

// collect walks src and returns the relative paths of eligible files.
func collect(src string, opts Options) ([]string, error) {
	var files []string
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), opts.Ext) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() < opts.MinSize {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	return files, err
}

func decryptOne(src, dst, rel string, p version.Profile, key []byte, opts Options, logger *zap.Logger) Entry {
	srcPath := filepath.Join(src, rel)
	dstPath := filepath.Join(dst, rel)

	if !opts.Force {
		if _, err := os.Stat(dstPath); err == nil && cipher.HasHeader(dstPath) {
			logger.Debug("destination already decrypted", zap.String("file", rel))
			return Entry{Source: srcPath, Dest: dstPath, Outcome: OutcomeSkipped}
		}
	}

	if err := cipher.Decrypt(srcPath, dstPath, p, key); err != nil {
		logger.Warn("decrypt failed", zap.String("file", rel), zap.Error(err))
		return Entry{Source: srcPath, Dest: dstPath, Outcome: OutcomeFailed, Err: err}
	}
	logger.Debug("decrypted", zap.String("file", rel))
	return Entry{Source: srcPath, Dest: dstPath, Outcome: OutcomeDecrypted}
}
