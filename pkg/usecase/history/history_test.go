package history_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/m-mizutani/cryptochat/pkg/memory"
	"github.com/m-mizutani/cryptochat/pkg/model"
	"github.com/m-mizutani/cryptochat/pkg/repository"
	"github.com/m-mizutani/cryptochat/pkg/usecase/history"
	"github.com/m-mizutani/gt"
)

type constEmbedder struct{}

func (constEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, float32(len(text))}, nil
}

type memoryStorage struct {
	objects map[string][]byte
}

type objectWriter struct {
	bytes.Buffer
	key     string
	storage *memoryStorage
}

func (w *objectWriter) Close() error {
	w.storage.objects[w.key] = w.Bytes()
	return nil
}

func (s *memoryStorage) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	return &objectWriter{key: key, storage: s}, nil
}

func (s *memoryStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func createSession(t *testing.T, dataDir string, createdAt time.Time, queries ...string) *model.Session {
	t.Helper()
	ctx := context.Background()
	sess := model.NewSession(dataDir, createdAt)
	index, err := repository.NewSQLite(sess.IndexDir())
	gt.NoError(t, err)
	defer index.Close()

	store, err := memory.New(ctx, sess, constEmbedder{}, index)
	gt.NoError(t, err)
	for _, q := range queries {
		_, err := store.Append(ctx, q, "answer to "+q)
		gt.NoError(t, err)
	}
	return sess
}

func TestList(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()

	older := createSession(t, dataDir, time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local), "bitcoin")
	newer := createSession(t, dataDir, time.Date(2024, 2, 1, 0, 0, 0, 0, time.Local), "a", "b")
	gt.NoError(t, os.MkdirAll(filepath.Join(dataDir, "not-a-session"), 0700))

	summaries, err := history.New(dataDir).List(ctx)
	gt.NoError(t, err)
	gt.A(t, summaries).Length(2)
	gt.Equal(t, summaries[0].ID, newer.ID)
	gt.Equal(t, summaries[0].Exchanges, 2)
	gt.Equal(t, summaries[1].ID, older.ID)
	gt.Equal(t, summaries[1].Exchanges, 1)
}

func TestListMissingDir(t *testing.T) {
	summaries, err := history.New(filepath.Join(t.TempDir(), "none")).List(context.Background())
	gt.NoError(t, err)
	gt.A(t, summaries).Length(0)
}

func TestShow(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()
	sess := createSession(t, dataDir, time.Now(), "price of bitcoin", "and ethereum?")

	uc := history.New(dataDir)
	exchanges, err := uc.Show(ctx, sess.ID)
	gt.NoError(t, err)
	gt.A(t, exchanges).Length(2)
	gt.Equal(t, exchanges[1].Query, "and ethereum?")
	gt.Equal(t, exchanges[1].Response, "answer to and ethereum?")

	_, err = uc.Show(ctx, "session_20000101000000_deadbeef")
	gt.True(t, errors.Is(err, history.ErrSessionNotFound))

	_, err = uc.Show(ctx, "../etc")
	gt.True(t, errors.Is(err, model.ErrInvalidSessionID))
}

func TestArchive(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()
	sess := createSession(t, dataDir, time.Now(), "bitcoin")

	storage := &memoryStorage{objects: map[string][]byte{}}
	keys, err := history.New(dataDir, history.WithStorage(storage)).Archive(ctx, sess.ID)
	gt.NoError(t, err)

	sort.Strings(keys)
	gt.A(t, keys).Equal([]string{
		string(sess.ID) + "/exchanges.csv",
		string(sess.ID) + "/index/index.db",
	})

	r, err := storage.Get(ctx, string(sess.ID)+"/exchanges.csv")
	gt.NoError(t, err)
	raw, err := io.ReadAll(r)
	gt.NoError(t, err)
	gt.Equal(t, string(raw), "query,response\nbitcoin,answer to bitcoin\n")
}

func TestArchiveWithoutStorage(t *testing.T) {
	dataDir := t.TempDir()
	sess := createSession(t, dataDir, time.Now())
	_, err := history.New(dataDir).Archive(context.Background(), sess.ID)
	gt.Error(t, err)
}
