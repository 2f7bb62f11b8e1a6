package reconcile_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/stupid-simple/patchwatch/database"
	"github.com/stupid-simple/patchwatch/expansion"
	"github.com/stupid-simple/patchwatch/notify"
	"github.com/stupid-simple/patchwatch/patchlist"
	"github.com/stupid-simple/patchwatch/reconcile"
	"github.com/stupid-simple/patchwatch/version"
)

const (
	gameRepo = uint(2)
	ex1Repo  = uint(3)
	ex2Repo  = uint(4)
)

// Helper to set up a seeded SQLite database
func setupTestDB(t *testing.T) *database.Database {
	gormDB, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(gormDB))

	db := &database.Database{
		Cli:    gormDB,
		Logger: zerolog.Nop(),
	}

	require.NoError(t, db.Seed(context.Background(), &database.SeedData{
		Repositories: []database.SeedRepository{
			{ID: 1, Name: "ffxivneo/win32/release/boot", Slug: "2b5cbc63"},
			{ID: gameRepo, Name: "ffxivneo/win32/release/game", Slug: "4e9a232b"},
			{ID: ex1Repo, Name: "ffxivneo/win32/release/ex1", Slug: "6b936f08"},
			{ID: ex2Repo, Name: "ffxivneo/win32/release/ex2", Slug: "f29a3eb2"},
		},
		Mappings: []database.SeedMapping{
			{GameRepositoryID: gameRepo, ExpansionID: 0, ExpansionRepositoryID: gameRepo},
			{GameRepositoryID: gameRepo, ExpansionID: 1, ExpansionRepositoryID: ex1Repo},
			{GameRepositoryID: gameRepo, ExpansionID: 2, ExpansionRepositoryID: ex2Repo},
		},
	}))

	return db
}

func getRepository(t *testing.T, db *database.Database, slug string) database.Repository {
	repo, err := db.GetRepository(context.Background(), slug)
	require.NoError(t, err)
	return *repo
}

// clock returns a new minute on every call.
func clock() func() time.Time {
	now := time.Date(2023, 9, 26, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
}

func gameEntry(v string) patchlist.Entry {
	return patchlist.Entry{
		Version:       v,
		URL:           "http://patch-dl.ffxiv.com/game/4e9a232b/D" + v + ".patch",
		Length:        1536,
		HashType:      "sha1",
		HashBlockSize: 50000000,
		Hashes:        []string{"aaaa", "bbbb"},
	}
}

func ex1Entry(v string) patchlist.Entry {
	return patchlist.Entry{
		Version: v,
		URL:     "http://patch-dl.ffxiv.com/game/ex1/6b936f08/D" + v + ".patch",
		Length:  2048,
	}
}

func countRows(t *testing.T, db *database.Database, model any) int64 {
	var count int64
	require.NoError(t, db.Cli.Model(model).Count(&count).Error)
	return count
}

func findPatch(t *testing.T, db *database.Database, repositoryID uint, v string) database.Patch {
	patches, err := db.FindPatches(context.Background(), []uint{repositoryID})
	require.NoError(t, err)
	for _, p := range patches {
		if p.Version.VersionString == v {
			return p
		}
	}
	t.Fatalf("patch %s of repository %d not found", v, repositoryID)
	return database.Patch{}
}

func TestReconcile_NewPatches(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	r := reconcile.New(db, zerolog.New(zerolog.NewTestWriter(t)), reconcile.WithClock(clock()))

	remote := []patchlist.Entry{
		gameEntry("2023.09.26.0000.0000"),
		gameEntry("2023.08.01.0000.0000"),
		ex1Entry("2023.09.26.0000.0000"),
	}

	alerts, err := r.Reconcile(ctx, getRepository(t, db, "4e9a232b"), remote, patchlist.Offered)
	require.NoError(t, err)
	require.Len(t, alerts, 3)
	assert.Equal(t, "2023.09.26.0000.0000", alerts[0].Version.VersionString)
	assert.Equal(t, "2023.08.01.0000.0000", alerts[1].Version.VersionString)
	assert.Equal(t, ex1Repo, alerts[2].RepositoryID)

	assert.Equal(t, int64(3), countRows(t, db, &database.Patch{}))
	assert.Equal(t, int64(3), countRows(t, db, &database.Version{}))

	p := findPatch(t, db, gameRepo, "2023.09.26.0000.0000")
	assert.Equal(t, version.MustEncode("2023.09.26.0000.0000"), p.Version.SortKey)
	assert.Equal(t, int64(1536), p.Size)
	require.NotNil(t, p.HashType)
	assert.Equal(t, "sha1", *p.HashType)
	require.NotNil(t, p.HashBlockSize)
	assert.Equal(t, int64(50000000), *p.HashBlockSize)
	assert.Equal(t, []string{"aaaa", "bbbb"}, []string(p.Hashes))
	require.NotNil(t, p.FirstSeen)
	require.NotNil(t, p.FirstOffered)
	assert.WithinDuration(t, *p.FirstSeen, *p.FirstOffered, 0)
	assert.WithinDuration(t, *p.FirstSeen, *p.LastSeen, 0)
}

func TestReconcile_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	r := reconcile.New(db, zerolog.New(zerolog.NewTestWriter(t)), reconcile.WithClock(clock()))
	repo := getRepository(t, db, "4e9a232b")

	remote := []patchlist.Entry{
		gameEntry("2023.08.01.0000.0000"),
		gameEntry("2023.09.26.0000.0000"),
		ex1Entry("2023.09.26.0000.0000"),
	}

	_, err := r.Reconcile(ctx, repo, remote, patchlist.Offered)
	require.NoError(t, err)
	before := findPatch(t, db, gameRepo, "2023.09.26.0000.0000")
	chainsBefore, err := db.FindChains(ctx, gameRepo)
	require.NoError(t, err)

	alerts, err := r.Reconcile(ctx, repo, remote, patchlist.Offered)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	assert.Equal(t, int64(3), countRows(t, db, &database.Patch{}))
	assert.Equal(t, int64(3), countRows(t, db, &database.Version{}))
	assert.Equal(t, int64(3), countRows(t, db, &database.PatchChain{}))

	after := findPatch(t, db, gameRepo, "2023.09.26.0000.0000")
	assert.Equal(t, before.ID, after.ID)
	assert.WithinDuration(t, *before.FirstSeen, *after.FirstSeen, 0)
	assert.WithinDuration(t, *before.FirstOffered, *after.FirstOffered, 0)
	assert.True(t, after.LastSeen.After(*before.LastSeen))
	assert.True(t, after.LastOffered.After(*before.LastOffered))
	assert.Equal(t, before.Hashes, after.Hashes)

	chainsAfter, err := db.FindChains(ctx, gameRepo)
	require.NoError(t, err)
	require.Len(t, chainsAfter, len(chainsBefore))
	for i := range chainsAfter {
		assert.Equal(t, chainsBefore[i].PreviousPatchID, chainsAfter[i].PreviousPatchID)
		assert.Equal(t, chainsBefore[i].HasPrerequisitePatch, chainsAfter[i].HasPrerequisitePatch)
		assert.WithinDuration(t, chainsBefore[i].FirstOffered, chainsAfter[i].FirstOffered, 0)
		assert.True(t, chainsAfter[i].LastOffered.After(chainsBefore[i].LastOffered))
	}
}

func TestReconcile_DuplicateEntries(t *testing.T) {
	db := setupTestDB(t)
	r := reconcile.New(db, zerolog.New(zerolog.NewTestWriter(t)), reconcile.WithClock(clock()))

	remote := []patchlist.Entry{
		gameEntry("2023.09.26.0000.0000"),
		gameEntry("2023.09.26.0000.0000"),
	}

	alerts, err := r.Reconcile(context.Background(), getRepository(t, db, "4e9a232b"), remote, patchlist.Offered)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
	assert.Equal(t, int64(1), countRows(t, db, &database.Patch{}))
	assert.Equal(t, int64(1), countRows(t, db, &database.PatchChain{}))
}

func TestReconcile_VersionSpellings(t *testing.T) {
	db := setupTestDB(t)
	r := reconcile.New(db, zerolog.New(zerolog.NewTestWriter(t)), reconcile.WithClock(clock()))

	remote := []patchlist.Entry{
		gameEntry("D2023.09.26.0000.0000"),
		gameEntry("2023.9.26.0.0"),
		gameEntry("2023.09.26.0000.0000"),
	}

	alerts, err := r.Reconcile(context.Background(), getRepository(t, db, "4e9a232b"), remote, patchlist.Offered)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "2023.09.26.0000.0000", alerts[0].Version.VersionString)
	assert.Equal(t, int64(1), countRows(t, db, &database.Version{}))
	assert.Equal(t, int64(1), countRows(t, db, &database.Patch{}))
	assert.Equal(t, int64(1), countRows(t, db, &database.PatchChain{}))

	p := findPatch(t, db, gameRepo, "2023.09.26.0000.0000")
	assert.Equal(t, version.MustEncode("2023.09.26.0000.0000"), p.Version.SortKey)
}

func TestReconcile_ExpansionAttribution(t *testing.T) {
	db := setupTestDB(t)
	r := reconcile.New(db, zerolog.New(zerolog.NewTestWriter(t)), reconcile.WithClock(clock()))

	_, err := r.Reconcile(context.Background(), getRepository(t, db, "4e9a232b"),
		[]patchlist.Entry{ex1Entry("2023.09.26.0000.0000")}, patchlist.Offered)
	require.NoError(t, err)

	p := findPatch(t, db, ex1Repo, "2023.09.26.0000.0000")
	assert.Equal(t, ex1Repo, p.RepositoryID)
	assert.Equal(t, ex1Repo, p.Version.RepositoryID)

	patches, err := db.FindPatches(context.Background(), []uint{gameRepo})
	require.NoError(t, err)
	assert.Empty(t, patches)
}

func TestReconcile_UnknownExpansion(t *testing.T) {
	db := setupTestDB(t)
	r := reconcile.New(db, zerolog.New(zerolog.NewTestWriter(t)), reconcile.WithClock(clock()))

	remote := []patchlist.Entry{
		gameEntry("2023.09.26.0000.0000"),
		{Version: "2023.09.26.0000.0000", URL: "http://patch-dl.ffxiv.com/game/ex3/859d0e24/D2023.09.26.0000.0000.patch"},
	}

	_, err := r.Reconcile(context.Background(), getRepository(t, db, "4e9a232b"), remote, patchlist.Offered)
	require.Error(t, err)
	assert.True(t, errors.Is(err, expansion.ErrUnknownMapping))
	assert.Equal(t, int64(0), countRows(t, db, &database.Patch{}))
}

func TestReconcile_InvalidVersion(t *testing.T) {
	db := setupTestDB(t)
	r := reconcile.New(db, zerolog.New(zerolog.NewTestWriter(t)), reconcile.WithClock(clock()))

	remote := []patchlist.Entry{
		gameEntry("2023.09.26.0000.0000"),
		gameEntry("2023.09.26"),
	}

	_, err := r.Reconcile(context.Background(), getRepository(t, db, "4e9a232b"), remote, patchlist.Offered)
	require.Error(t, err)
	assert.True(t, errors.Is(err, version.ErrInvalidFormat))
	assert.Equal(t, int64(0), countRows(t, db, &database.Patch{}))
	assert.Equal(t, int64(0), countRows(t, db, &database.Version{}))
}

func TestReconcile_HashNormalization(t *testing.T) {
	db := setupTestDB(t)
	r := reconcile.New(db, zerolog.New(zerolog.NewTestWriter(t)), reconcile.WithClock(clock()))

	echoed := gameEntry("2023.09.26.0000.0000")
	echoed.HashType = echoed.URL
	zeroBlock := gameEntry("2023.09.27.0000.0000")
	zeroBlock.HashBlockSize = 0

	_, err := r.Reconcile(context.Background(), getRepository(t, db, "4e9a232b"),
		[]patchlist.Entry{echoed, zeroBlock}, patchlist.Offered)
	require.NoError(t, err)

	p := findPatch(t, db, gameRepo, "2023.09.26.0000.0000")
	assert.Nil(t, p.HashType)
	assert.NotNil(t, p.HashBlockSize)

	p = findPatch(t, db, gameRepo, "2023.09.27.0000.0000")
	require.NotNil(t, p.HashType)
	assert.Equal(t, "sha1", *p.HashType)
	assert.Nil(t, p.HashBlockSize)
}

func TestReconcile_FirstOfferPromotion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	r := reconcile.New(db, zerolog.New(zerolog.NewTestWriter(t)), reconcile.WithClock(clock()))
	repo := getRepository(t, db, "4e9a232b")

	scraped := gameEntry("2023.09.26.0000.0000")
	scraped.HashType = ""
	scraped.HashBlockSize = 0
	scraped.Hashes = nil
	scraped.Length = 1000

	alerts, err := r.Reconcile(ctx, repo, []patchlist.Entry{scraped}, patchlist.Scraped)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)

	p := findPatch(t, db, gameRepo, "2023.09.26.0000.0000")
	assert.Nil(t, p.FirstOffered)
	assert.Nil(t, p.LastOffered)
	assert.Nil(t, p.HashType)
	assert.Empty(t, p.Hashes)
	assert.Equal(t, int64(1000), p.Size)
	firstSeen := *p.FirstSeen

	// scraped again: nothing to alert about
	alerts, err = r.Reconcile(ctx, repo, []patchlist.Entry{scraped}, patchlist.Scraped)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	offered := gameEntry("2023.09.26.0000.0000")
	alerts, err = r.Reconcile(ctx, repo, []patchlist.Entry{offered}, patchlist.Offered)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, p.ID, alerts[0].ID)

	p = findPatch(t, db, gameRepo, "2023.09.26.0000.0000")
	require.NotNil(t, p.FirstOffered)
	firstOffered := *p.FirstOffered
	assert.WithinDuration(t, firstSeen, *p.FirstSeen, 0)
	assert.True(t, firstOffered.After(firstSeen))
	require.NotNil(t, p.HashType)
	assert.Equal(t, "sha1", *p.HashType)
	assert.Equal(t, []string{"aaaa", "bbbb"}, []string(p.Hashes))
	assert.Equal(t, int64(1536), p.Size)

	// offered again: first offer is kept
	alerts, err = r.Reconcile(ctx, repo, []patchlist.Entry{offered}, patchlist.Offered)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	p = findPatch(t, db, gameRepo, "2023.09.26.0000.0000")
	assert.WithinDuration(t, firstOffered, *p.FirstOffered, 0)
	assert.True(t, p.LastOffered.After(firstOffered))
	assert.Equal(t, int64(1), countRows(t, db, &database.Patch{}))
}

func TestReconcile_ChainOrdering(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	r := reconcile.New(db, zerolog.New(zerolog.NewTestWriter(t)), reconcile.WithClock(clock()))

	remote := []patchlist.Entry{
		gameEntry("2023.09.26.0000.0000"),
		ex1Entry("2023.01.10.0000.0000"),
		gameEntry("2012.09.19.0000.0000"),
		gameEntry("2023.09.26.0000.0001"),
		ex1Entry("2022.12.01.0000.0000"),
		gameEntry("2019.07.02.0000.0000"),
	}

	_, err := r.Reconcile(ctx, getRepository(t, db, "4e9a232b"), remote, patchlist.Offered)
	require.NoError(t, err)

	assertChainShape(t, db, gameRepo, 4)
	assertChainShape(t, db, ex1Repo, 2)

	chains, err := db.FindChains(ctx, ex2Repo)
	require.NoError(t, err)
	assert.Empty(t, chains)

	root := findPatch(t, db, gameRepo, "2012.09.19.0000.0000")
	chain, err := db.GetChain(ctx, root.ID)
	require.NoError(t, err)
	require.NotNil(t, chain)
	assert.False(t, chain.HasPrerequisitePatch)
	assert.Nil(t, chain.PreviousPatchID)

	latest := findPatch(t, db, gameRepo, "2023.09.26.0000.0001")
	previous := findPatch(t, db, gameRepo, "2023.09.26.0000.0000")
	chain, err = db.GetChain(ctx, latest.ID)
	require.NoError(t, err)
	require.NotNil(t, chain.PreviousPatchID)
	assert.Equal(t, previous.ID, *chain.PreviousPatchID)
}

// assertChainShape checks that a repository has exactly one root and
// that following links never goes to a later version.
func assertChainShape(t *testing.T, db *database.Database, repositoryID uint, expectedLinks int) {
	t.Helper()
	ctx := context.Background()

	chains, err := db.FindChains(ctx, repositoryID)
	require.NoError(t, err)
	require.Len(t, chains, expectedLinks)

	patches, err := db.FindPatches(ctx, []uint{repositoryID})
	require.NoError(t, err)
	keyByPatch := map[uint]int64{}
	for _, p := range patches {
		keyByPatch[p.ID] = p.Version.SortKey
	}

	roots := 0
	for _, c := range chains {
		if !c.HasPrerequisitePatch {
			roots++
			assert.Nil(t, c.PreviousPatchID)
			continue
		}
		require.NotNil(t, c.PreviousPatchID)
		prevKey, ok := keyByPatch[*c.PreviousPatchID]
		require.True(t, ok, "previous patch must belong to the same repository")
		assert.Less(t, prevKey, keyByPatch[c.PatchID])
	}
	assert.Equal(t, 1, roots)
}

func TestReconcile_ChainImmutable(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	r := reconcile.New(db, zerolog.New(zerolog.NewTestWriter(t)), reconcile.WithClock(clock()))
	repo := getRepository(t, db, "4e9a232b")

	_, err := r.Reconcile(ctx, repo, []patchlist.Entry{
		gameEntry("2023.01.01.0000.0000"),
		gameEntry("2023.02.01.0000.0000"),
		gameEntry("2023.03.01.0000.0000"),
	}, patchlist.Offered)
	require.NoError(t, err)

	third := findPatch(t, db, gameRepo, "2023.03.01.0000.0000")
	second := findPatch(t, db, gameRepo, "2023.02.01.0000.0000")
	before, err := db.GetChain(ctx, third.ID)
	require.NoError(t, err)
	require.NotNil(t, before.PreviousPatchID)
	require.Equal(t, second.ID, *before.PreviousPatchID)

	// the list no longer offers the middle patch
	_, err = r.Reconcile(ctx, repo, []patchlist.Entry{
		gameEntry("2023.01.01.0000.0000"),
		gameEntry("2023.03.01.0000.0000"),
	}, patchlist.Offered)
	require.NoError(t, err)

	after, err := db.GetChain(ctx, third.ID)
	require.NoError(t, err)
	require.NotNil(t, after.PreviousPatchID)
	assert.Equal(t, second.ID, *after.PreviousPatchID)
	assert.True(t, after.HasPrerequisitePatch)
	assert.WithinDuration(t, before.FirstOffered, after.FirstOffered, 0)
	assert.True(t, after.LastOffered.After(before.LastOffered))

	middle, err := db.GetChain(ctx, second.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, before.LastOffered, middle.LastOffered, 0)
}

func TestReconcile_EmptyList(t *testing.T) {
	db := setupTestDB(t)
	r := reconcile.New(db, zerolog.New(zerolog.NewTestWriter(t)), reconcile.WithClock(clock()))

	alerts, err := r.Reconcile(context.Background(), getRepository(t, db, "4e9a232b"), nil, patchlist.Offered)
	require.NoError(t, err)
	assert.Empty(t, alerts)
	assert.Equal(t, int64(0), countRows(t, db, &database.PatchChain{}))
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, patches []notify.Patch, mode patchlist.Mode) error {
	return m.Called(ctx, patches, mode).Error(0)
}

func TestReconcile_Notifies(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	notifier := new(MockNotifier)
	notifier.On("Notify", mock.Anything, []notify.Patch{
		{
			RepositoryName: "ffxivneo/win32/release/game",
			RepositorySlug: "4e9a232b",
			Version:        "2023.09.26.0000.0000",
			URL:            "http://patch-dl.ffxiv.com/game/4e9a232b/D2023.09.26.0000.0000.patch",
			Size:           1536,
		},
		{
			RepositoryName: "ffxivneo/win32/release/ex1",
			RepositorySlug: "6b936f08",
			Version:        "2023.09.26.0000.0000",
			URL:            "http://patch-dl.ffxiv.com/game/ex1/6b936f08/D2023.09.26.0000.0000.patch",
			Size:           2048,
		},
	}, patchlist.Scraped).Return(errors.New("sink down")).Once()

	var discovered []string
	r := reconcile.New(db, zerolog.New(zerolog.NewTestWriter(t)),
		reconcile.WithClock(clock()),
		reconcile.WithNotifier(notifier),
		reconcile.WithDiscoveredFunc(func(p database.Patch) {
			discovered = append(discovered, p.RemoteOriginPath)
		}),
	)
	repo := getRepository(t, db, "4e9a232b")
	remote := []patchlist.Entry{gameEntry("2023.09.26.0000.0000"), ex1Entry("2023.09.26.0000.0000")}

	// a failing notifier does not fail the pass
	alerts, err := r.Reconcile(ctx, repo, remote, patchlist.Scraped)
	require.NoError(t, err)
	assert.Len(t, alerts, 2)
	assert.Len(t, discovered, 2)

	// nothing new: notifier is not called again
	alerts, err = r.Reconcile(ctx, repo, remote, patchlist.Scraped)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	notifier.AssertExpectations(t)
	notifier.AssertNumberOfCalls(t, "Notify", 1)
}

func TestReconcile_Cancelled(t *testing.T) {
	db := setupTestDB(t)
	r := reconcile.New(db, zerolog.New(zerolog.NewTestWriter(t)), reconcile.WithClock(clock()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Reconcile(ctx, getRepository(t, db, "4e9a232b"),
		[]patchlist.Entry{gameEntry("2023.09.26.0000.0000")}, patchlist.Offered)
	assert.Error(t, err)
	assert.Equal(t, int64(0), countRows(t, db, &database.Patch{}))
}
