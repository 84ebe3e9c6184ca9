package history

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/m-mizutani/cryptochat/pkg/adapter"
	"github.com/m-mizutani/cryptochat/pkg/memory"
	"github.com/m-mizutani/cryptochat/pkg/model"
	"github.com/m-mizutani/cryptochat/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

var ErrSessionNotFound = goerr.New("session not found")

// UseCase provides read-only operations over past sessions in a data directory
type UseCase struct {
	dataDir string
	storage adapter.Storage
}

type Option func(*UseCase)

// WithStorage enables Archive
func WithStorage(storage adapter.Storage) Option {
	return func(uc *UseCase) {
		uc.storage = storage
	}
}

func New(dataDir string, opts ...Option) *UseCase {
	uc := &UseCase{dataDir: dataDir}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Summary describes one stored session
type Summary struct {
	ID        model.SessionID
	CreatedAt time.Time
	Exchanges int
}

// List returns the sessions found in the data directory, newest first
func (u *UseCase) List(ctx context.Context) ([]*Summary, error) {
	entries, err := os.ReadDir(u.dataDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read data directory", goerr.V("dir", u.dataDir))
	}

	var summaries []*Summary
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sess, err := model.OpenSession(u.dataDir, model.SessionID(entry.Name()))
		if err != nil {
			continue
		}

		exchanges, err := memory.ReadLog(sess.LogPath())
		if err != nil {
			logging.From(ctx).Warn("skip unreadable session", "session_id", sess.ID, "error", err)
			continue
		}

		summaries = append(summaries, &Summary{
			ID:        sess.ID,
			CreatedAt: sess.CreatedAt,
			Exchanges: len(exchanges),
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})

	return summaries, nil
}

// Show returns every exchange of a session in insertion order
func (u *UseCase) Show(ctx context.Context, id model.SessionID) ([]*model.Exchange, error) {
	sess, err := u.open(id)
	if err != nil {
		return nil, err
	}

	return memory.ReadLog(sess.LogPath())
}

// Archive uploads the files of a session to storage and returns the uploaded keys
func (u *UseCase) Archive(ctx context.Context, id model.SessionID) ([]string, error) {
	if u.storage == nil {
		return nil, goerr.New("storage is not configured")
	}

	sess, err := u.open(id)
	if err != nil {
		return nil, err
	}

	var keys []string
	err = filepath.WalkDir(sess.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(sess.Dir, path)
		if err != nil {
			return goerr.Wrap(err, "failed to resolve relative path", goerr.V("path", path))
		}
		key := string(sess.ID) + "/" + filepath.ToSlash(rel)

		if err := u.upload(ctx, path, key); err != nil {
			return err
		}
		keys = append(keys, key)
		logging.From(ctx).Info("archived session file", "key", key)
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to archive session", goerr.V("session_id", id))
	}

	return keys, nil
}

func (u *UseCase) upload(ctx context.Context, path, key string) error {
	src, err := os.Open(path)
	if err != nil {
		return goerr.Wrap(err, "failed to open session file", goerr.V("path", path))
	}
	defer src.Close()

	dst, err := u.storage.Put(ctx, key)
	if err != nil {
		return goerr.Wrap(err, "failed to open storage writer", goerr.V("key", key))
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return goerr.Wrap(err, "failed to upload session file", goerr.V("key", key))
	}
	if err := dst.Close(); err != nil {
		return goerr.Wrap(err, "failed to finalize upload", goerr.V("key", key))
	}
	return nil
}

func (u *UseCase) open(id model.SessionID) (*model.Session, error) {
	sess, err := model.OpenSession(u.dataDir, id)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(sess.LogPath()); err != nil {
		return nil, goerr.Wrap(ErrSessionNotFound, "no exchange log", goerr.V("session_id", id), goerr.V("dir", sess.Dir))
	}
	return sess, nil
}
