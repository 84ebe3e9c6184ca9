package memory

import (
	"context"
	"os"

	"github.com/m-mizutani/cryptochat/pkg/adapter"
	"github.com/m-mizutani/cryptochat/pkg/model"
	"github.com/m-mizutani/cryptochat/pkg/repository"
	"github.com/m-mizutani/cryptochat/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Store keeps the exchanges of one session: the CSV log is the record of truth and
// the similarity index maps query embeddings back to log rows.
type Store struct {
	session  *model.Session
	embedder adapter.Embedder
	index    repository.Index
	log      *exchangeLog
}

// New prepares the session directory and writes a fresh log header
func New(ctx context.Context, session *model.Session, embedder adapter.Embedder, index repository.Index) (*Store, error) {
	if err := os.MkdirAll(session.Dir, 0700); err != nil {
		return nil, goerr.Wrap(err, "failed to create session directory", goerr.V("dir", session.Dir))
	}

	log, err := createLog(session.LogPath())
	if err != nil {
		return nil, err
	}

	logging.From(ctx).Debug("session memory initialized",
		"session_id", session.ID,
		"log", session.LogPath())

	return &Store{
		session:  session,
		embedder: embedder,
		index:    index,
		log:      log,
	}, nil
}

// Append records one exchange. Any failure is returned to the caller and leaves
// no row behind in the log.
func (x *Store) Append(ctx context.Context, query, response string) (*model.Exchange, error) {
	embedding, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query", goerr.V("session_id", x.session.ID))
	}

	seq, err := x.log.append(query, response)
	if err != nil {
		return nil, err
	}

	if err := x.index.Put(ctx, model.IndexID(seq), query, embedding); err != nil {
		if rmErr := x.log.removeLast(seq); rmErr != nil {
			logging.From(ctx).Error("failed to roll back exchange log", "error", rmErr)
		}
		return nil, goerr.Wrap(err, "failed to index exchange",
			goerr.V("session_id", x.session.ID),
			goerr.V("seq", seq))
	}

	logging.From(ctx).Debug("exchange stored", "seq", seq)

	return &model.Exchange{Seq: seq, Query: query, Response: response}, nil
}

// Retrieve returns up to topK prior exchanges most similar to query, best first.
// Failures are logged and result in an empty slice.
func (x *Store) Retrieve(ctx context.Context, query string, topK int) []*model.Exchange {
	logger := logging.From(ctx)
	if topK <= 0 || x.log.len() == 0 {
		return nil
	}

	embedding, err := x.embedder.Embed(ctx, query)
	if err != nil {
		logger.Error("failed to embed query for retrieval", "error", err)
		return nil
	}

	matches, err := x.index.Search(ctx, embedding, topK)
	if err != nil {
		logger.Error("failed to search similar exchanges", "error", err)
		return nil
	}
	if len(matches) == 0 {
		return nil
	}

	exchanges, err := ReadLog(x.session.LogPath())
	if err != nil {
		logger.Error("failed to read exchange log", "error", err)
		return nil
	}

	seen := make(map[int]struct{}, len(matches))
	var results []*model.Exchange
	for _, m := range matches {
		seq, ok := model.ParseIndexID(m.ID)
		if !ok || seq > len(exchanges) {
			logger.Warn("index entry has no log row", "id", m.ID)
			continue
		}
		if _, dup := seen[seq]; dup {
			continue
		}
		seen[seq] = struct{}{}
		results = append(results, exchanges[seq-1])
		if len(results) == topK {
			break
		}
	}

	logger.Debug("retrieved context", "count", len(results))
	return results
}

// Len returns the number of exchanges appended in this session
func (x *Store) Len() int {
	return x.log.len()
}

// Exchanges reads the whole log in insertion order
func (x *Store) Exchanges(ctx context.Context) ([]*model.Exchange, error) {
	return ReadLog(x.session.LogPath())
}

// Session returns the session the store belongs to
func (x *Store) Session() *model.Session {
	return x.session
}
