package standings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"circuit-ytd/internal/cache"
	"circuit-ytd/internal/logger"
	"circuit-ytd/internal/model"
	"circuit-ytd/internal/points"
	"circuit-ytd/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails selected operations and counts replace calls.
type flakyStore struct {
	store.Store
	mu              sync.Mutex
	failResults     bool
	failPoints      bool
	failReplace     bool
	replaceCalls    int
	listResultCalls int

	onListResults      func()
	onReplace          func(ctx context.Context)
	afterListStandings func()
}

var errBoom = errors.New("boom")

func (f *flakyStore) ListResults(ctx context.Context, tournamentID string) ([]model.TournamentResult, error) {
	f.mu.Lock()
	f.listResultCalls++
	fail := f.failResults
	hook := f.onListResults
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if fail {
		return nil, errBoom
	}
	return f.Store.ListResults(ctx, tournamentID)
}

func (f *flakyStore) ListPointsRows(ctx context.Context) ([]model.PointsRow, error) {
	if f.failPoints {
		return nil, errBoom
	}
	return f.Store.ListPointsRows(ctx)
}

func (f *flakyStore) ReplaceStandings(ctx context.Context, yearConfigID string, standings []model.YTDStanding) error {
	f.mu.Lock()
	f.replaceCalls++
	hook := f.onReplace
	f.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
	if f.failReplace {
		return errBoom
	}
	return f.Store.ReplaceStandings(ctx, yearConfigID, standings)
}

func (f *flakyStore) ListStandings(ctx context.Context, yearConfigID string) ([]model.YTDStanding, error) {
	rows, err := f.Store.ListStandings(ctx, yearConfigID)
	f.mu.Lock()
	hook := f.afterListStandings
	f.afterListStandings = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return rows, err
}

type fixture struct {
	store   *flakyStore
	service *Service
	year    model.YearConfig
	gold    model.Tournament
	silver  model.Tournament
	players []model.Player
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemoryStore()
	require.NoError(t, store.Seed(ctx, mem, store.SeedOptions{}))

	year, err := mem.SaveYearConfig(ctx, model.YearConfig{Name: "2024", StartDate: season.StartDate, EndDate: season.EndDate, IsActive: true})
	require.NoError(t, err)
	gold, err := mem.CreateTournament(ctx, model.Tournament{WespaID: 1, Name: "Gold Open", Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Category: model.CategoryGold})
	require.NoError(t, err)
	silver, err := mem.CreateTournament(ctx, model.Tournament{WespaID: 2, Name: "Silver Cup", Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Category: model.CategorySilver})
	require.NoError(t, err)
	players, err := mem.UpsertPlayers(ctx, []model.Player{{WespaID: 10, Name: "Ann"}, {WespaID: 11, Name: "Bo"}})
	require.NoError(t, err)
	require.NoError(t, mem.InsertResults(ctx, []model.TournamentResult{
		{TournamentID: gold.ID, PlayerID: players[0].ID, Position: 1},
		{TournamentID: gold.ID, PlayerID: players[1].ID, Position: 2},
	}))

	flaky := &flakyStore{Store: mem}
	svc := NewService(flaky, Options{
		Cache:    cache.NewMemoryCache(),
		CacheTTL: time.Minute,
		Logger:   logger.Discard(),
		Now:      func() time.Time { return calculatedAt },
	})
	return &fixture{store: flaky, service: svc, year: year, gold: gold, silver: silver, players: players}
}

func TestRecalculate_ReplacesSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	summary, err := f.service.Recalculate(ctx, f.year.ID)
	require.NoError(t, err)

	assert.Equal(t, f.year.ID, summary.YearConfigID)
	assert.Equal(t, 2, summary.PlayerCount)
	assert.Equal(t, 2, summary.TournamentCount)
	assert.Equal(t, 1, summary.ProcessedCount)
	require.Len(t, summary.MissingTournaments, 1)
	assert.Equal(t, f.silver.ID, summary.MissingTournaments[0].ID)
	assert.Equal(t, "Successfully calculated YTD standings for 2 players. Note: 1 tournament(s) have no cached results and were skipped.", summary.Message)
	assert.Equal(t, calculatedAt, summary.CalculatedAt)

	rows, err := f.service.Standings(ctx, f.year.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Ann", rows[0].PlayerName)
	assert.Equal(t, 8000, rows[0].TotalPoints)
	assert.Equal(t, 7000, rows[1].TotalPoints)
}

func TestRecalculate_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.service.Recalculate(ctx, f.year.ID)
	require.NoError(t, err)
	first, err := f.store.ListStandings(ctx, f.year.ID)
	require.NoError(t, err)

	_, err = f.service.Recalculate(ctx, f.year.ID)
	require.NoError(t, err)
	second, err := f.store.ListStandings(ctx, f.year.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRecalculate_NoMissingNote(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.InsertResults(ctx, []model.TournamentResult{
		{TournamentID: f.silver.ID, PlayerID: f.players[1].ID, Position: 1},
	}))

	summary, err := f.service.Recalculate(ctx, f.year.ID)
	require.NoError(t, err)
	assert.Equal(t, "Successfully calculated YTD standings for 2 players", summary.Message)
	assert.Empty(t, summary.MissingTournaments)

	rows, err := f.service.Standings(ctx, f.year.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bo", rows[0].PlayerName)
	assert.Equal(t, 7000+6000, rows[0].TotalPoints)
}

func TestRecalculate_EmptySeasonClearsSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.service.Recalculate(ctx, f.year.ID)
	require.NoError(t, err)

	require.NoError(t, f.store.SetTournamentCategory(ctx, f.gold.ID, ""))
	require.NoError(t, f.store.SetTournamentCategory(ctx, f.silver.ID, ""))

	summary, err := f.service.Recalculate(ctx, f.year.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.PlayerCount)
	assert.Equal(t, 0, summary.TournamentCount)

	rows, err := f.service.Standings(ctx, f.year.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRecalculate_YearNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Recalculate(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrYearNotFound)
	assert.Equal(t, 0, f.store.replaceCalls)
}

func TestRecalculate_ReadFailureLeavesSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.service.Recalculate(ctx, f.year.ID)
	require.NoError(t, err)
	before, err := f.store.ListStandings(ctx, f.year.ID)
	require.NoError(t, err)

	f.store.failResults = true
	_, err = f.service.Recalculate(ctx, f.year.ID)
	assert.ErrorIs(t, err, ErrUpstreamRead)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, f.store.replaceCalls)

	after, err := f.store.ListStandings(ctx, f.year.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRecalculate_EmptyPointsTable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.ReplacePointsRows(ctx, nil))

	_, err := f.service.Recalculate(ctx, f.year.ID)
	assert.ErrorIs(t, err, ErrUpstreamRead)
	assert.Equal(t, 0, f.store.replaceCalls)
}

func TestRecalculate_PersistenceFailure(t *testing.T) {
	f := newFixture(t)
	f.store.failReplace = true

	_, err := f.service.Recalculate(context.Background(), f.year.ID)
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestStandings_CacheInvalidatedByRecalculate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rows, err := f.service.Standings(ctx, f.year.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = f.service.Recalculate(ctx, f.year.ID)
	require.NoError(t, err)

	rows, err = f.service.Standings(ctx, f.year.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestStandings_YearNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Standings(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrYearNotFound)
}

func TestMissingResults(t *testing.T) {
	f := newFixture(t)

	missing, err := f.service.MissingResults(context.Background(), f.year.ID)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "Silver Cup", missing[0].Name)
}

func TestPointsTable_CachedUntilReplaced(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	table, err := f.service.PointsTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, table.Len())

	f.store.failPoints = true
	table, err = f.service.PointsTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, table.Len())
	f.store.failPoints = false

	err = f.service.ReplacePointsTable(ctx, []model.PointsRow{{PositionRange: "1", Gold: 10}, {PositionRange: "2+", Gold: 1}})
	require.NoError(t, err)
	table, err = f.service.PointsTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, 1, table.PointsFor(40, model.CategoryGold))
}

func TestReplacePointsTable_RejectsInvalid(t *testing.T) {
	f := newFixture(t)
	err := f.service.ReplacePointsTable(context.Background(), []model.PointsRow{{PositionRange: "ten", Gold: 1}})
	assert.Error(t, err)

	table, err := f.service.PointsTable(context.Background())
	require.NoError(t, err)
	assert.Equal(t, points.NewTable(points.DefaultRows()).Len(), table.Len())
}

func TestRecalculate_ConcurrentCallsAgree(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var wg sync.WaitGroup
	summaries := make([]Summary, 4)
	errs := make([]error, 4)
	for i := range summaries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			summaries[i], errs[i] = f.service.Recalculate(ctx, f.year.ID)
		}(i)
	}
	wg.Wait()

	for i := range summaries {
		require.NoError(t, errs[i])
		assert.Equal(t, summaries[0], summaries[i])
	}
	rows, err := f.store.ListStandings(ctx, f.year.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestRecalculate_CallerCancelDoesNotAbortRun(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	replaced := make(chan error, 1)
	f.store.onListResults = cancel
	f.store.onReplace = func(ctx context.Context) { replaced <- ctx.Err() }

	_, err := f.service.Recalculate(ctx, f.year.ID)
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}

	select {
	case ctxErr := <-replaced:
		assert.NoError(t, ctxErr)
	case <-time.After(5 * time.Second):
		t.Fatal("recalculation did not reach the replace step")
	}
	require.Eventually(t, func() bool {
		rows, err := f.store.Store.ListStandings(context.Background(), f.year.ID)
		return err == nil && len(rows) == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRecalculate_UsesFreshPointsTable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// a second instance with its own cache edits the shared table
	other := NewService(f.store, Options{Cache: cache.NewMemoryCache(), CacheTTL: time.Minute, Logger: logger.Discard()})

	_, err := f.service.PointsTable(ctx)
	require.NoError(t, err)
	require.NoError(t, other.ReplacePointsTable(ctx, []model.PointsRow{{PositionRange: "1", Gold: 10}, {PositionRange: "2+", Gold: 5}}))

	_, err = f.service.Recalculate(ctx, f.year.ID)
	require.NoError(t, err)

	rows, err := f.store.ListStandings(ctx, f.year.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	Sort(rows)
	assert.Equal(t, 10, rows[0].TotalPoints)
	assert.Equal(t, 5, rows[1].TotalPoints)
}

func TestStandings_ReadRacingRecalculateIsNotCached(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.service.Recalculate(ctx, f.year.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.InsertResults(ctx, []model.TournamentResult{
		{TournamentID: f.silver.ID, PlayerID: f.players[1].ID, Position: 1},
	}))

	f.store.afterListStandings = func() {
		_, err := f.service.Recalculate(ctx, f.year.ID)
		require.NoError(t, err)
	}
	stale, err := f.service.Standings(ctx, f.year.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", stale[0].PlayerName)

	rows, err := f.service.Standings(ctx, f.year.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Bo", rows[0].PlayerName)
	assert.Equal(t, 7000+6000, rows[0].TotalPoints)
}
