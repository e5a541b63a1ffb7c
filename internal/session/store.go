// Package session persists walk sessions: the recorded path, the loops
// detected on it and which of them were claimed.
package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type Store interface {
	Create(ctx context.Context, userID string, mask *Mask) (WalkSession, error)
	Get(ctx context.Context, id string) (WalkSession, error)
	List(ctx context.Context) ([]WalkSession, error)
	AppendPoint(ctx context.Context, id string, p PathPoint) error
	AppendLoop(ctx context.Context, id string, l Loop) error
	// Record appends p and, when l is set, the loop p closed, in one write.
	// On error neither is stored.
	Record(ctx context.Context, id string, p PathPoint, l *Loop) error
	End(ctx context.Context, id string) (WalkSession, error)
	MarkSubmitted(ctx context.Context, id, loopID, territoryID string) error
	Delete(ctx context.Context, id string) error
}

var syncFile = (*os.File).Sync

type document struct {
	Sessions []WalkSession `json:"sessions"`
}

// FileStore keeps every session in one JSON file. Each mutation reloads the
// file, applies the change and replaces the file through a rename.
type FileStore struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Create(ctx context.Context, userID string, mask *Mask) (WalkSession, error) {
	sess := WalkSession{
		ID:          uuid.NewString(),
		UserID:      userID,
		StartedAtMs: s.now().UnixMilli(),
		Points:      []PathPoint{},
		Loops:       []Loop{},
		Mask:        mask,
	}
	err := s.update(func(doc *document) error {
		doc.Sessions = append(doc.Sessions, sess)
		return nil
	})
	if err != nil {
		return WalkSession{}, err
	}
	return sess, nil
}

func (s *FileStore) Get(ctx context.Context, id string) (WalkSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return WalkSession{}, err
	}
	i := indexOf(&doc, id)
	if i < 0 {
		return WalkSession{}, ErrSessionNotFound
	}
	return doc.Sessions[i], nil
}

// List returns all sessions, newest first.
func (s *FileStore) List(ctx context.Context) ([]WalkSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(doc.Sessions, func(i, j int) bool {
		return doc.Sessions[i].StartedAtMs > doc.Sessions[j].StartedAtMs
	})
	return doc.Sessions, nil
}

func (s *FileStore) AppendPoint(ctx context.Context, id string, p PathPoint) error {
	return s.mutate(id, true, func(sess *WalkSession) error {
		sess.Points = append(sess.Points, p)
		return nil
	})
}

func (s *FileStore) AppendLoop(ctx context.Context, id string, l Loop) error {
	return s.mutate(id, true, func(sess *WalkSession) error {
		sess.Loops = append(sess.Loops, l)
		return nil
	})
}

func (s *FileStore) Record(ctx context.Context, id string, p PathPoint, l *Loop) error {
	return s.mutate(id, true, func(sess *WalkSession) error {
		sess.Points = append(sess.Points, p)
		if l != nil {
			sess.Loops = append(sess.Loops, *l)
		}
		return nil
	})
}

// End marks the session finished. Ending twice keeps the first end time.
func (s *FileStore) End(ctx context.Context, id string) (WalkSession, error) {
	var out WalkSession
	err := s.mutate(id, false, func(sess *WalkSession) error {
		if sess.EndedAtMs == nil {
			ended := s.now().UnixMilli()
			sess.EndedAtMs = &ended
		}
		out = *sess
		return nil
	})
	return out, err
}

func (s *FileStore) MarkSubmitted(ctx context.Context, id, loopID, territoryID string) error {
	return s.mutate(id, false, func(sess *WalkSession) error {
		for i := range sess.Loops {
			if sess.Loops[i].ID == loopID {
				sess.Loops[i].TerritoryID = territoryID
				sess.Loops[i].SubmittedAtMs = s.now().UnixMilli()
				return nil
			}
		}
		return ErrLoopNotFound
	})
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	return s.update(func(doc *document) error {
		i := indexOf(doc, id)
		if i < 0 {
			return ErrSessionNotFound
		}
		doc.Sessions = append(doc.Sessions[:i], doc.Sessions[i+1:]...)
		return nil
	})
}

func (s *FileStore) mutate(id string, requireOpen bool, fn func(*WalkSession) error) error {
	return s.update(func(doc *document) error {
		i := indexOf(doc, id)
		if i < 0 {
			return ErrSessionNotFound
		}
		if requireOpen && doc.Sessions[i].Ended() {
			return ErrSessionEnded
		}
		return fn(&doc.Sessions[i])
	})
}

func (s *FileStore) update(fn func(*document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(&doc); err != nil {
		return err
	}
	return s.save(doc)
}

func (s *FileStore) load() (document, error) {
	var doc document
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("read session store: %w", err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("decode session store: %w", err)
	}
	return doc, nil
}

func (s *FileStore) save(doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session store: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".sessions-*.json")
	if err != nil {
		return fmt.Errorf("write session store: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write session store: %w", err)
	}
	if err := syncFile(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("sync session store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write session store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace session store: %w", err)
	}
	return nil
}

func indexOf(doc *document, id string) int {
	for i := range doc.Sessions {
		if doc.Sessions[i].ID == id {
			return i
		}
	}
	return -1
}
