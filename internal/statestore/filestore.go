package statestore

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/turphai/boomwatch/internal/apperrors"
	"github.com/turphai/boomwatch/internal/domain"
)

// FileStore is the local file-backed State Store binding used for dev
// (spec §6): one append-only JSON-lines file per (dataSource, metricName)
// key. Writes never rewrite history, only append, mirroring the teacher's
// event-log discipline in internal/store/store.go.
type FileStore struct {
	baseDir string
	ttl     time.Duration

	mu     sync.Mutex
	points map[string][]domain.MetricPoint // keyed by domain.Key.String()
	loaded map[string]bool
	now    func() time.Time
}

func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindStateStore, "filestore", "create base dir")
	}
	return &FileStore{
		baseDir: baseDir,
		ttl:     DefaultTTL,
		points:  make(map[string][]domain.MetricPoint),
		loaded:  make(map[string]bool),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *FileStore) filePath(key domain.Key) string {
	name := fmt.Sprintf("%s__%s.jsonl", key.DataSource, sanitize(key.MetricName))
	return filepath.Join(s.baseDir, name)
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '/' || r == filepath.Separator {
			out = append(out, '_')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// ensureLoaded lazily reads a key's file into memory; mu must be held.
func (s *FileStore) ensureLoaded(key domain.Key) error {
	k := key.String()
	if s.loaded[k] {
		return nil
	}
	path := s.filePath(key)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		s.loaded[k] = true
		return nil
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindStateStore, "filestore", "open "+path)
	}
	defer f.Close()

	var pts []domain.MetricPoint
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var p domain.MetricPoint
		if err := json.Unmarshal(scanner.Bytes(), &p); err != nil {
			return apperrors.Wrap(err, apperrors.KindStateStore, "filestore", "decode line")
		}
		pts = append(pts, p)
	}
	if err := scanner.Err(); err != nil {
		return apperrors.Wrap(err, apperrors.KindStateStore, "filestore", "scan "+path)
	}
	s.points[k] = pts
	s.loaded[k] = true
	return nil
}

func (s *FileStore) Put(_ context.Context, point domain.MetricPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(point.Key()); err != nil {
		return err
	}
	k := point.Key().String()
	existing := s.points[k]

	if len(existing) > 0 {
		for i := len(existing) - 1; i >= 0 && sameDay(existing[i].Timestamp, point.Timestamp); i-- {
			if existing[i].Checksum == point.Checksum {
				return nil // idempotent by checksum within a (key, day) window
			}
		}
		last := existing[len(existing)-1]
		if point.Timestamp.Before(last.Timestamp) {
			return apperrors.New(apperrors.KindStateStore, "filestore", "timestamp must be monotonic per (dataSource, metricName)")
		}
	}

	b, err := json.Marshal(point)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindStateStore, "filestore", "encode point")
	}
	f, err := os.OpenFile(s.filePath(point.Key()), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindStateStore, "filestore", "open for append")
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return apperrors.Wrap(err, apperrors.KindStateStore, "filestore", "append point")
	}

	s.points[k] = append(existing, point)
	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func (s *FileStore) GetLatest(_ context.Context, key domain.Key) (*domain.MetricPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(key); err != nil {
		return nil, err
	}
	pts := s.points[key.String()]
	now := s.now()
	for i := len(pts) - 1; i >= 0; i-- {
		if !expired(pts[i], s.ttl, now) {
			p := pts[i]
			return &p, nil
		}
	}
	return nil, nil
}

func (s *FileStore) GetRange(_ context.Context, key domain.Key, from, to time.Time) ([]domain.MetricPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(key); err != nil {
		return nil, err
	}
	pts := s.points[key.String()]
	now := s.now()

	out := make([]domain.MetricPoint, 0, len(pts))
	for _, p := range pts {
		if expired(p, s.ttl, now) {
			continue
		}
		if (p.Timestamp.Equal(from) || p.Timestamp.After(from)) && (p.Timestamp.Equal(to) || p.Timestamp.Before(to)) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *FileStore) GetLastKnownGood(_ context.Context, key domain.Key) (*domain.MetricPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(key); err != nil {
		return nil, err
	}
	pts := s.points[key.String()]
	for i := len(pts) - 1; i >= 0; i-- {
		if pts[i].ValidationStatus == domain.StatusValid {
			p := pts[i]
			return &p, nil
		}
	}
	return nil, nil
}

func expired(p domain.MetricPoint, ttl time.Duration, now time.Time) bool {
	return now.After(p.Timestamp.Add(ttl))
}
