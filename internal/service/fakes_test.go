package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"reviso/internal/domain"
	"reviso/internal/domain/models"
	"reviso/internal/domain/repositories"
	"reviso/internal/domain/services"
	"reviso/internal/policy"
)

// fakeStore is an in-memory stand-in for the postgres repositories. The
// transaction manager snapshots and restores its state so rolled-back writes
// really disappear, which the CAS retry paths depend on.
type fakeStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	docs     map[uuid.UUID]models.Document
	revs     map[uuid.UUID]models.Revision
	active   map[uuid.UUID]models.ActiveRevision
	blocks   map[uuid.UUID]models.Block
	versions []models.BlockVersion
	ops      []models.EditOperation

	// onSwap runs at the start of every Swap, before the guard check.
	onSwap func(docID uuid.UUID)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:   make(map[uuid.UUID]models.Document),
		revs:   make(map[uuid.UUID]models.Revision),
		active: make(map[uuid.UUID]models.ActiveRevision),
		blocks: make(map[uuid.UUID]models.Block),
	}
}

type storeSnapshot struct {
	docs     map[uuid.UUID]models.Document
	revs     map[uuid.UUID]models.Revision
	active   map[uuid.UUID]models.ActiveRevision
	blocks   map[uuid.UUID]models.Block
	versions []models.BlockVersion
	ops      []models.EditOperation
}

func (s *fakeStore) snapshot() storeSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := storeSnapshot{
		docs:     make(map[uuid.UUID]models.Document, len(s.docs)),
		revs:     make(map[uuid.UUID]models.Revision, len(s.revs)),
		active:   make(map[uuid.UUID]models.ActiveRevision, len(s.active)),
		blocks:   make(map[uuid.UUID]models.Block, len(s.blocks)),
		versions: append([]models.BlockVersion(nil), s.versions...),
		ops:      append([]models.EditOperation(nil), s.ops...),
	}
	for k, v := range s.docs {
		snap.docs[k] = v
	}
	for k, v := range s.revs {
		snap.revs[k] = v
	}
	for k, v := range s.active {
		snap.active[k] = v
	}
	for k, v := range s.blocks {
		snap.blocks[k] = v
	}
	return snap
}

func (s *fakeStore) restore(snap storeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = snap.docs
	s.revs = snap.revs
	s.active = snap.active
	s.blocks = snap.blocks
	s.versions = snap.versions
	s.ops = snap.ops
}

// fakeTxManager serializes transactions and rolls the store back on error.
type fakeTxManager struct{ store *fakeStore }

func (m *fakeTxManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	m.store.txMu.Lock()
	defer m.store.txMu.Unlock()
	snap := m.store.snapshot()
	if err := fn(ctx); err != nil {
		m.store.restore(snap)
		return err
	}
	return nil
}

type fakeDocRepo struct{ store *fakeStore }

func (r *fakeDocRepo) Create(ctx context.Context, doc *models.Document) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.docs[doc.ID]; ok {
		return domain.ErrConflict
	}
	d := *doc
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	r.store.docs[doc.ID] = d
	return nil
}

func (r *fakeDocRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	d, ok := r.store.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return &d, nil
}

func (r *fakeDocRepo) UpdateCounts(ctx context.Context, id uuid.UUID, totalBlocks, totalChars int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	d, ok := r.store.docs[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	d.TotalBlocks = totalBlocks
	d.TotalChars = totalChars
	d.UpdatedAt = time.Now()
	r.store.docs[id] = d
	return nil
}

type fakeRevRepo struct{ store *fakeStore }

func (r *fakeRevRepo) Create(ctx context.Context, rev *models.Revision) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	v := *rev
	v.CreatedAt = time.Now()
	r.store.revs[rev.ID] = v
	return nil
}

func (r *fakeRevRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Revision, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	rev, ok := r.store.revs[id]
	if !ok {
		return nil, fmt.Errorf("revision %s: %w", id, domain.ErrNotFound)
	}
	return &rev, nil
}

func (r *fakeRevRepo) NextRevNo(ctx context.Context, docID uuid.UUID) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var max int64
	for _, rev := range r.store.revs {
		if rev.DocID == docID && rev.RevNo > max {
			max = rev.RevNo
		}
	}
	return max + 1, nil
}

func (r *fakeRevRepo) ListByDocument(ctx context.Context, docID uuid.UUID, limit, offset int) ([]models.Revision, int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var all []models.Revision
	for _, rev := range r.store.revs {
		if rev.DocID == docID {
			all = append(all, rev)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].RevNo > all[j].RevNo })
	total := len(all)
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

type fakeActiveRepo struct{ store *fakeStore }

func (r *fakeActiveRepo) Init(ctx context.Context, docID, revID uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.active[docID]; ok {
		return domain.ErrConflict
	}
	r.store.active[docID] = models.ActiveRevision{
		DocID:     docID,
		RevID:     revID,
		Version:   1,
		UpdatedAt: time.Now(),
	}
	return nil
}

func (r *fakeActiveRepo) Get(ctx context.Context, docID uuid.UUID) (*models.ActiveRevision, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	a, ok := r.store.active[docID]
	if !ok {
		return nil, fmt.Errorf("active revision for %s: %w", docID, domain.ErrNotFound)
	}
	return &a, nil
}

func (r *fakeActiveRepo) Swap(ctx context.Context, docID, newRevID uuid.UUID, expectedVersion int64) (int64, error) {
	if r.store.onSwap != nil {
		r.store.onSwap(docID)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	a, ok := r.store.active[docID]
	if !ok || a.Version != expectedVersion {
		return 0, fmt.Errorf("swap active revision for %s: %w", docID, domain.ErrStaleVersion)
	}
	a.RevID = newRevID
	a.Version++
	a.UpdatedAt = time.Now()
	r.store.active[docID] = a
	return a.Version, nil
}

type fakeBlockRepo struct{ store *fakeStore }

func (r *fakeBlockRepo) CreateBlocks(ctx context.Context, blocks []models.Block) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, b := range blocks {
		b.CreatedAt = time.Now()
		r.store.blocks[b.ID] = b
	}
	return nil
}

func (r *fakeBlockRepo) CreateVersions(ctx context.Context, versions []models.BlockVersion) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for i := range versions {
		v := versions[i]
		hasContent := v.ContentMD != ""
		hasParent := v.ParentVersionID != nil
		if hasContent == hasParent {
			return fmt.Errorf("%w: block version must set exactly one of content and parent", domain.ErrValidation)
		}
		v.CreatedAt = time.Now()
		r.store.versions = append(r.store.versions, v)
	}
	return nil
}

func (r *fakeBlockRepo) ListByRevision(ctx context.Context, revID uuid.UUID) ([]models.BlockVersion, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []models.BlockVersion
	for _, v := range r.store.versions {
		if v.RevID == revID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (r *fakeBlockRepo) GetVersion(ctx context.Context, blockID, revID uuid.UUID) (*models.BlockVersion, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, v := range r.store.versions {
		if v.BlockID == blockID && v.RevID == revID {
			return &v, nil
		}
	}
	return nil, fmt.Errorf("block version %s@%s: %w", blockID, revID, domain.ErrNotFound)
}

func (r *fakeBlockRepo) Tombstone(ctx context.Context, blockID, revID uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	b, ok := r.store.blocks[blockID]
	if !ok {
		return fmt.Errorf("block %s: %w", blockID, domain.ErrNotFound)
	}
	if b.DeletedAt == nil {
		now := time.Now()
		rid := revID
		b.DeletedAt = &now
		b.DeletedInRevID = &rid
		r.store.blocks[blockID] = b
	}
	return nil
}

type fakeOpRepo struct{ store *fakeStore }

func (r *fakeOpRepo) CreateAll(ctx context.Context, ops []models.EditOperation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.ops = append(r.store.ops, ops...)
	return nil
}

// fakeTokenStore is an in-memory TokenStore with TTL honored at read time.
type fakeTokenStore struct {
	mu      sync.Mutex
	entries map[string]fakeTokenEntry
}

type fakeTokenEntry struct {
	payload   []byte
	expiresAt time.Time
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{entries: make(map[string]fakeTokenEntry)}
}

func (s *fakeTokenStore) key(sessionID, tokenID string) string {
	return sessionID + ":" + tokenID
}

func (s *fakeTokenStore) Put(ctx context.Context, sessionID, tokenID string, payload []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[s.key(sessionID, tokenID)] = fakeTokenEntry{
		payload:   append([]byte(nil), payload...),
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (s *fakeTokenStore) Get(ctx context.Context, sessionID, tokenID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[s.key(sessionID, tokenID)]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, fmt.Errorf("confirm token %s: %w", tokenID, domain.ErrNotFound)
	}
	return append([]byte(nil), e.payload...), nil
}

func (s *fakeTokenStore) Delete(ctx context.Context, sessionID, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, s.key(sessionID, tokenID))
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPolicy() *policy.Policy {
	p, err := policy.Load()
	if err != nil {
		panic(err)
	}
	return p
}

// testEnv wires every service against one shared fake store.
type testEnv struct {
	store   *fakeStore
	tokens  *fakeTokenStore
	docs    *fakeDocRepo
	revs    *fakeRevRepo
	active  *fakeActiveRepo
	blocks  *fakeBlockRepo
	ops     *fakeOpRepo
	tx      *fakeTxManager
	policy  *policy.Policy
	docSvc  services.DocumentService
	editor  services.EditorService
	preview services.PreviewService
}

func newTestEnv() *testEnv {
	store := newFakeStore()
	pol := testPolicy()
	logger := testLogger()

	env := &testEnv{
		store:  store,
		tokens: newFakeTokenStore(),
		docs:   &fakeDocRepo{store: store},
		revs:   &fakeRevRepo{store: store},
		active: &fakeActiveRepo{store: store},
		blocks: &fakeBlockRepo{store: store},
		ops:    &fakeOpRepo{store: store},
		tx:     &fakeTxManager{store: store},
		policy: pol,
	}
	env.docSvc = NewDocumentService(env.docs, env.revs, env.active, env.blocks, env.tx, pol, logger)
	env.editor = NewEditorService(env.docs, env.revs, env.active, env.blocks, env.ops, env.tx, pol, logger)
	env.preview = NewPreviewService(env.active, env.blocks, env.tokens, env.editor, pol, logger)
	return env
}
