package memory

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/m-mizutani/cryptochat/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

var logHeader = []string{"query", "response"}

// ErrBrokenLog is returned when the exchange log cannot be parsed
var ErrBrokenLog = goerr.New("broken exchange log")

// exchangeLog is the append-only CSV file of a session. The first row is the header.
type exchangeLog struct {
	path  string
	mu    sync.Mutex
	count int
	// offset of the last appended row, used by removeLast
	lastOffset int64
}

func createLog(path string) (*exchangeLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create exchange log", goerr.V("path", path))
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(logHeader); err != nil {
		return nil, goerr.Wrap(err, "failed to write log header", goerr.V("path", path))
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, goerr.Wrap(err, "failed to flush log header", goerr.V("path", path))
	}

	return &exchangeLog{path: path}, nil
}

// append writes one row and returns its 1-based sequence number
func (x *exchangeLog) append(query, response string) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	f, err := os.OpenFile(x.path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to open exchange log", goerr.V("path", x.path))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, goerr.Wrap(err, "failed to stat exchange log", goerr.V("path", x.path))
	}
	offset := info.Size()

	w := csv.NewWriter(f)
	if err := w.Write([]string{query, response}); err != nil {
		return 0, goerr.Wrap(err, "failed to write exchange", goerr.V("path", x.path))
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = os.Truncate(x.path, offset)
		return 0, goerr.Wrap(err, "failed to flush exchange", goerr.V("path", x.path))
	}

	x.count++
	x.lastOffset = offset
	return x.count, nil
}

// removeLast drops the row appended as seq. Only the most recent row can be removed.
func (x *exchangeLog) removeLast(seq int) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if seq != x.count || seq == 0 {
		return goerr.New("only the last row can be removed", goerr.V("seq", seq), goerr.V("count", x.count))
	}
	if err := os.Truncate(x.path, x.lastOffset); err != nil {
		return goerr.Wrap(err, "failed to remove exchange", goerr.V("path", x.path), goerr.V("seq", seq))
	}

	x.count--
	return nil
}

func (x *exchangeLog) len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.count
}

// ReadLog loads every exchange of a log file in insertion order
func ReadLog(path string) ([]*model.Exchange, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open exchange log", goerr.V("path", path))
	}
	defer f.Close()

	return parseLog(f, path)
}

func parseLog(r io.Reader, path string) ([]*model.Exchange, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(logHeader)

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, goerr.Wrap(ErrBrokenLog, "missing header", goerr.V("path", path))
	}
	if err != nil {
		return nil, goerr.Wrap(ErrBrokenLog, err.Error(), goerr.V("path", path))
	}
	if header[0] != logHeader[0] || header[1] != logHeader[1] {
		return nil, goerr.Wrap(ErrBrokenLog, "unexpected header", goerr.V("path", path), goerr.V("header", header))
	}

	var exchanges []*model.Exchange
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(ErrBrokenLog, err.Error(), goerr.V("path", path), goerr.V("row", len(exchanges)+1))
		}
		exchanges = append(exchanges, &model.Exchange{
			Seq:      len(exchanges) + 1,
			Query:    row[0],
			Response: row[1],
		})
	}

	return exchanges, nil
}
