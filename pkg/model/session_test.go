package model_test

import (
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/m-mizutani/cryptochat/pkg/model"
	"github.com/m-mizutani/gt"
)

func TestNewSessionID(t *testing.T) {
	now := time.Date(2024, 5, 1, 13, 4, 5, 0, time.Local)
	id := model.NewSessionID(now)

	gt.True(t, regexp.MustCompile(`^session_20240501130405_[0-9a-f]{8}$`).MatchString(string(id)))
	gt.NoError(t, id.Validate())
	gt.True(t, id != model.NewSessionID(now))
}

func TestSessionIDValidate(t *testing.T) {
	testCases := []struct {
		id    model.SessionID
		valid bool
	}{
		{"session_20240501130405_abcdef01", true},
		{"20240501130405_abcdef01", false},
		{"session_../../etc", false},
		{"session_a/b", false},
		{"", false},
	}

	for _, tc := range testCases {
		t.Run(string(tc.id), func(t *testing.T) {
			err := tc.id.Validate()
			if tc.valid {
				gt.NoError(t, err)
			} else {
				gt.True(t, errors.Is(err, model.ErrInvalidSessionID))
			}
		})
	}
}

func TestSessionPaths(t *testing.T) {
	base := t.TempDir()
	now := time.Date(2024, 5, 1, 13, 4, 5, 0, time.Local)
	sess := model.NewSession(base, now)

	gt.Equal(t, sess.Dir, filepath.Join(base, string(sess.ID)))
	gt.Equal(t, sess.LogPath(), filepath.Join(sess.Dir, "exchanges.csv"))
	gt.Equal(t, sess.IndexDir(), filepath.Join(sess.Dir, "index"))

	opened, err := model.OpenSession(base, sess.ID)
	gt.NoError(t, err)
	gt.Equal(t, opened.Dir, sess.Dir)
	gt.True(t, opened.CreatedAt.Equal(now))

	_, err = model.OpenSession(base, "../escape")
	gt.Error(t, err)
}

func TestIndexID(t *testing.T) {
	gt.Equal(t, model.IndexID(1), "query_1")
	gt.Equal(t, model.IndexID(42), "query_42")

	testCases := []struct {
		id   string
		seq  int
		isOK bool
	}{
		{"query_1", 1, true},
		{"query_42", 42, true},
		{"query_0", 0, false},
		{"query_", 0, false},
		{"query_x", 0, false},
		{"answer_1", 0, false},
	}
	for _, tc := range testCases {
		t.Run(tc.id, func(t *testing.T) {
			seq, ok := model.ParseIndexID(tc.id)
			gt.Equal(t, ok, tc.isOK)
			gt.Equal(t, seq, tc.seq)
		})
	}
}
