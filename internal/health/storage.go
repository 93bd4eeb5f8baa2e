package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/keithlinneman/linnemanlabs-docs/internal/xerrors"
)

// probePrefix is shared with the document store's temp files so List skips
// leftovers of a crashed probe.
const probePrefix = ".docstore-probe-"

// WritableDir passes when dir is an existing directory that accepts a new
// file. The probe file is removed again before returning.
func WritableDir(dir string) CheckFunc {
	return func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		fi, err := os.Stat(dir)
		if err != nil {
			return xerrors.Wrapf(err, "storage: stat %s", filepath.Base(dir))
		}
		if !fi.IsDir() {
			return xerrors.Newf("storage: %s is not a directory", filepath.Base(dir))
		}
		f, err := os.CreateTemp(dir, probePrefix+"*")
		if err != nil {
			return xerrors.Wrap(err, "storage: not writable")
		}
		name := f.Name()
		return errors.Join(f.Close(), os.Remove(name))
	}
}
