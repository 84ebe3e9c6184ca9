package model

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

const (
	sessionPrefix     = "session_"
	sessionTimeLayout = "20060102150405"

	logFileName  = "exchanges.csv"
	indexDirName = "index"
)

var ErrInvalidSessionID = goerr.New("invalid session id")

type SessionID string

// NewSessionID generates a session id from the creation time and a random suffix
func NewSessionID(now time.Time) SessionID {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return SessionID(sessionPrefix + now.Format(sessionTimeLayout) + "_" + suffix)
}

// Validate rejects ids that cannot be used as a directory name
func (x SessionID) Validate() error {
	s := string(x)
	if !strings.HasPrefix(s, sessionPrefix) {
		return goerr.Wrap(ErrInvalidSessionID, "missing prefix", goerr.V("session_id", s))
	}
	if strings.ContainsAny(s, `/\`) || strings.Contains(s, "..") {
		return goerr.Wrap(ErrInvalidSessionID, "contains path separator", goerr.V("session_id", s))
	}
	return nil
}

// Session is one continuous conversation. It owns the storage under Dir exclusively.
type Session struct {
	ID        SessionID
	CreatedAt time.Time
	Dir       string
}

// NewSession creates a session rooted under baseDir/<session id>
func NewSession(baseDir string, now time.Time) *Session {
	id := NewSessionID(now)
	return &Session{
		ID:        id,
		CreatedAt: now,
		Dir:       filepath.Join(baseDir, string(id)),
	}
}

// OpenSession refers to an existing session directory without creating anything
func OpenSession(baseDir string, id SessionID) (*Session, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	sess := &Session{
		ID:  id,
		Dir: filepath.Join(baseDir, string(id)),
	}

	parts := strings.SplitN(strings.TrimPrefix(string(id), sessionPrefix), "_", 2)
	if t, err := time.ParseInLocation(sessionTimeLayout, parts[0], time.Local); err == nil {
		sess.CreatedAt = t
	}
	return sess, nil
}

// LogPath is the append-only exchange log of the session
func (s *Session) LogPath() string {
	return filepath.Join(s.Dir, logFileName)
}

// IndexDir is the directory for the local similarity index
func (s *Session) IndexDir() string {
	return filepath.Join(s.Dir, indexDirName)
}
