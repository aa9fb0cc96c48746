package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/racing-tournament/brackets"
	"github.com/Dosada05/racing-tournament/models"
	"github.com/Dosada05/racing-tournament/repositories"
	"github.com/Dosada05/racing-tournament/storage"
)

type fakeRepo struct {
	mu          sync.Mutex
	nextID      int
	tournaments map[int]models.Tournament
	saveErr     error
	saves       int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{tournaments: map[int]models.Tournament{}}
}

func (r *fakeRepo) Create(_ context.Context, t *models.Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tournaments {
		if existing.Name == t.Name {
			return repositories.ErrTournamentNameConflict
		}
	}
	r.nextID++
	t.ID = r.nextID
	t.CreatedAt = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	t.UpdatedAt = t.CreatedAt
	r.tournaments[t.ID] = *t
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id int) (*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	return &t, nil
}

func (r *fakeRepo) List(_ context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Tournament
	for id := 1; id <= r.nextID; id++ {
		t, ok := r.tournaments[id]
		if !ok {
			continue
		}
		if len(filter.Phases) > 0 && !containsPhase(filter.Phases, t.Phase) {
			continue
		}
		t.Snapshot = nil
		out = append(out, t)
	}
	return out, nil
}

func containsPhase(phases []models.TournamentPhase, p models.TournamentPhase) bool {
	for _, candidate := range phases {
		if candidate == p {
			return true
		}
	}
	return false
}

func (r *fakeRepo) SaveSnapshot(_ context.Context, _ repositories.SQLExecutor, id int, phase models.TournamentPhase, snapshot []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Phase = phase
	t.Snapshot = append([]byte(nil), snapshot...)
	r.tournaments[id] = t
	r.saves++
	return nil
}

func (r *fakeRepo) UpdateArchiveKey(_ context.Context, id int, key *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.ArchiveKey = key
	r.tournaments[id] = t
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tournaments[id]; !ok {
		return repositories.ErrTournamentNotFound
	}
	delete(r.tournaments, id)
	return nil
}

func (r *fakeRepo) stored(id int) models.Tournament {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tournaments[id]
}

type fakeArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{objects: map[string][]byte{}}
}

func (a *fakeArchive) Put(_ context.Context, key, _ string, body io.Reader) (*storage.UploadResult, error) {
	if a.putErr != nil {
		return nil, a.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[key] = data
	return &storage.UploadResult{Key: key, Location: a.GetPublicURL(key)}, nil
}

func (a *fakeArchive) Get(_ context.Context, key string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, key)
	}
	return data, nil
}

func (a *fakeArchive) Delete(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.objects, key)
	return nil
}

func (a *fakeArchive) GetPublicURL(key string) string {
	return "https://archive.test/" + key
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(_ int, eventType string, _ interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == eventType {
			n++
		}
	}
	return n
}

var errDiskFull = errors.New("disk full")

type serviceFixture struct {
	svc     TournamentService
	repo    *fakeRepo
	archive *fakeArchive
	pub     *recordingPublisher
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEngineFactory(id int) *brackets.Engine {
	return brackets.New(brackets.Options{
		Rand:   rand.New(rand.NewSource(int64(id))),
		Logger: discardLogger(),
		Now:    func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) },
	})
}

func newFixture(t *testing.T, withArchive bool) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		repo: newFakeRepo(),
		pub:  &recordingPublisher{},
	}
	var archive storage.SnapshotArchive
	if withArchive {
		f.archive = newFakeArchive()
		archive = f.archive
	}
	f.svc = NewTournamentService(f.repo, archive, f.pub, testEngineFactory, discardLogger())
	return f
}
