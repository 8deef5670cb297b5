// Package files stores the uploaded CVs on the local disk.
package files

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/sauvini/onboarding/core"
	"github.com/sauvini/onboarding/core/registration"
)

// LocalStore keeps every file under dir as `<id>`. The file metadata lives in the FileRef.
type LocalStore struct {
	dir string
}

var _ registration.FileStore = (*LocalStore)(nil)

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrap(err, "creating uploads dir")
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) Save(ctx context.Context, name, contentType string, r io.Reader) (registration.FileRef, error) {
	ref := registration.FileRef{
		ID:          uuid.New().String(),
		Name:        filepath.Base(name),
		ContentType: contentType,
	}

	f, err := os.OpenFile(s.path(ref.ID), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		if _, statErr := os.Stat(s.dir); os.IsNotExist(statErr) {
			return registration.FileRef{}, core.NewShutdownError("uploads dir " + s.dir + " is gone")
		}
		return registration.FileRef{}, errors.Wrap(err, "creating file")
	}
	ref.Size, err = io.Copy(f, r)
	if cErr := f.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		_ = os.Remove(s.path(ref.ID))
		return registration.FileRef{}, errors.Wrap(err, "writing file")
	}
	return ref, nil
}

func (s *LocalStore) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	if !validID(id) {
		return nil, registration.ErrFileNotFound
	}
	f, err := os.Open(s.path(id))
	if os.IsNotExist(err) {
		return nil, registration.ErrFileNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "opening file")
	}
	return f, nil
}

func (s *LocalStore) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return registration.ErrFileNotFound
	}
	err := os.Remove(s.path(id))
	if os.IsNotExist(err) {
		return registration.ErrFileNotFound
	}
	return errors.Wrap(err, "deleting file")
}

func (s *LocalStore) path(id string) string {
	return filepath.Join(s.dir, id)
}

// ids are uuids: anything else could escape dir.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
