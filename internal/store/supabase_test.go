package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"circuit-ytd/internal/model"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type restCall struct {
	Method string
	Table  string
	Query  url.Values
	Body   []byte
}

// fakeRest answers PostgREST requests from canned table bodies and records
// every call. Handlers registered by method and table take precedence.
type fakeRest struct {
	mu       sync.Mutex
	calls    []restCall
	tables   map[string]string
	handlers map[string]func(w http.ResponseWriter, c restCall)
}

func newFakeRest(t *testing.T) (*fakeRest, *SupabaseStore) {
	t.Helper()
	f := &fakeRest{tables: map[string]string{}, handlers: map[string]func(http.ResponseWriter, restCall){}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)

	log := logrus.New()
	log.SetOutput(io.Discard)
	st, err := NewSupabaseStore(srv.URL, "service-role-key", SupabaseOptions{
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
		Logger:           log,
	})
	require.NoError(t, err)
	return f, st
}

func (f *fakeRest) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c := restCall{Method: r.Method, Table: path.Base(r.URL.Path), Query: r.URL.Query(), Body: body}

	f.mu.Lock()
	f.calls = append(f.calls, c)
	h := f.handlers[c.Method+" "+c.Table]
	canned, ok := f.tables[c.Table]
	f.mu.Unlock()

	if h != nil {
		h(w, c)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodGet:
		if !ok {
			canned = "[]"
		}
		_, _ = w.Write([]byte(canned))
	case http.MethodPost:
		w.WriteHeader(http.StatusCreated)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (f *fakeRest) on(method, table string, h func(w http.ResponseWriter, c restCall)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method+" "+table] = h
}

func (f *fakeRest) recorded(method, table string) []restCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []restCall
	for _, c := range f.calls {
		if c.Method == method && c.Table == table {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeRest) sequence() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Method+" "+c.Table)
	}
	return out
}

func restError(status int, code, msg string) func(http.ResponseWriter, restCall) {
	return func(w http.ResponseWriter, _ restCall) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "message": msg})
	}
}

const yearRow = `[{"id":"y1","name":"2024","start_date":"2024-01-01","end_date":"2024-12-31","is_active":true}]`

func standingsFixture() []model.YTDStanding {
	now := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	return []model.YTDStanding{
		{PlayerID: "p1", PlayerName: "Ann", TotalPoints: 150, TournamentsPlayed: 2, BestFinish: 1, LastUpdated: now},
		{PlayerID: "p2", PlayerName: "Bo", TotalPoints: 100, TournamentsPlayed: 1, BestFinish: 2, LastUpdated: now},
	}
}

func TestSupabaseStore_ReplaceStandings(t *testing.T) {
	t.Run("deletes then inserts", func(t *testing.T) {
		f, st := newFakeRest(t)
		f.tables["year_configs"] = yearRow

		require.NoError(t, st.ReplaceStandings(context.Background(), "y1", standingsFixture()))

		assert.Equal(t, []string{"GET year_configs", "DELETE ytd_standings", "POST ytd_standings"}, f.sequence())
		del := f.recorded(http.MethodDelete, "ytd_standings")[0]
		assert.Equal(t, "eq.y1", del.Query.Get("year_config_id"))

		var inserted []map[string]any
		require.NoError(t, json.Unmarshal(f.recorded(http.MethodPost, "ytd_standings")[0].Body, &inserted))
		require.Len(t, inserted, 2)
		assert.Equal(t, "y1", inserted[0]["year_config_id"])
		assert.Equal(t, "Ann", inserted[0]["player_name"])
	})

	t.Run("failed delete skips the insert", func(t *testing.T) {
		f, st := newFakeRest(t)
		f.tables["year_configs"] = yearRow
		f.on(http.MethodDelete, "ytd_standings", restError(http.StatusInternalServerError, "XX000", "boom"))

		err := st.ReplaceStandings(context.Background(), "y1", standingsFixture())
		assert.ErrorContains(t, err, "boom")
		assert.Empty(t, f.recorded(http.MethodPost, "ytd_standings"))
	})

	t.Run("empty snapshot only deletes", func(t *testing.T) {
		f, st := newFakeRest(t)
		f.tables["year_configs"] = yearRow

		require.NoError(t, st.ReplaceStandings(context.Background(), "y1", nil))
		assert.Len(t, f.recorded(http.MethodDelete, "ytd_standings"), 1)
		assert.Empty(t, f.recorded(http.MethodPost, "ytd_standings"))
	})

	t.Run("cancel after delete still inserts", func(t *testing.T) {
		f, st := newFakeRest(t)
		f.tables["year_configs"] = yearRow
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		f.on(http.MethodDelete, "ytd_standings", func(w http.ResponseWriter, _ restCall) {
			cancel()
			w.WriteHeader(http.StatusNoContent)
		})

		require.NoError(t, st.ReplaceStandings(ctx, "y1", standingsFixture()))
		assert.Len(t, f.recorded(http.MethodPost, "ytd_standings"), 1)
	})

	t.Run("unknown year", func(t *testing.T) {
		f, st := newFakeRest(t)
		assert.ErrorIs(t, st.ReplaceStandings(context.Background(), "nope", nil), ErrNotFound)
		assert.Empty(t, f.recorded(http.MethodDelete, "ytd_standings"))
	})
}

func TestSupabaseStore_PointsRows(t *testing.T) {
	f, st := newFakeRest(t)
	f.tables["points_config"] = `[
		{"id":"b0a1","position_range":"2","platinum":9,"gold":7,"silver":5,"bronze":3,"invitational":1},
		{"id":"a0a1","position_range":"1","platinum":10,"gold":8,"silver":6,"bronze":4,"invitational":2}
	]`
	ctx := context.Background()

	rows, err := st.ListPointsRows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2", rows[0].PositionRange)
	assert.Equal(t, 7, rows[0].Gold)
	get := f.recorded(http.MethodGet, "points_config")[0]
	assert.True(t, strings.HasPrefix(get.Query.Get("order"), "id.asc"), get.Query.Get("order"))

	require.NoError(t, st.ReplacePointsRows(ctx, []model.PointsRow{
		{ID: "old", PositionRange: "1", Gold: 10},
		{PositionRange: "2+", Gold: 5},
	}))
	del := f.recorded(http.MethodDelete, "points_config")
	require.Len(t, del, 1)
	assert.Equal(t, "gte.00000000-0000-0000-0000-000000000000", del[0].Query.Get("id"))

	var inserted []map[string]any
	require.NoError(t, json.Unmarshal(f.recorded(http.MethodPost, "points_config")[0].Body, &inserted))
	require.Len(t, inserted, 2)
	for _, row := range inserted {
		assert.NotContains(t, row, "sort_order")
		assert.NotContains(t, row, "id")
	}
	assert.Equal(t, "2+", inserted[1]["position_range"])
}

func TestSupabaseStore_UpsertPlayersSendsUniformRows(t *testing.T) {
	f, st := newFakeRest(t)
	f.on(http.MethodPost, "players", func(w http.ResponseWriter, _ restCall) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[
			{"id":"p1","wespa_id":11,"name":"Ann","country":null},
			{"id":"p2","wespa_id":12,"name":"Bo","country":"AU"}
		]`))
	})

	players, err := st.UpsertPlayers(context.Background(), []model.Player{
		{WespaID: 11, Name: "Ann", Country: "NZ"},
		{WespaID: 12, Name: "Bo"},
	})
	require.NoError(t, err)

	var sent []map[string]any
	require.NoError(t, json.Unmarshal(f.recorded(http.MethodPost, "players")[0].Body, &sent))
	require.Len(t, sent, 2)
	for _, row := range sent {
		assert.Len(t, row, 2)
		assert.Contains(t, row, "wespa_id")
		assert.Contains(t, row, "name")
	}

	patches := f.recorded(http.MethodPatch, "players")
	require.Len(t, patches, 1)
	assert.Equal(t, "eq.11", patches[0].Query.Get("wespa_id"))
	assert.JSONEq(t, `{"country":"NZ"}`, string(patches[0].Body))

	require.Len(t, players, 2)
	assert.Equal(t, "p1", players[0].ID)
	assert.Equal(t, "NZ", players[0].Country)
	assert.Equal(t, "AU", players[1].Country)
}

func TestSupabaseStore_Breaker(t *testing.T) {
	t.Run("client errors do not trip", func(t *testing.T) {
		f, st := newFakeRest(t)
		f.on(http.MethodPost, "tournaments", restError(http.StatusConflict, "23505", "duplicate key value violates unique constraint"))
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			_, err := st.CreateTournament(ctx, model.Tournament{WespaID: 9, Name: "Open", Date: day("2024-05-01")})
			assert.EqualError(t, err, "tournament already exists")
		}
		_, err := st.ListTournaments(ctx, day("2024-01-01"), day("2024-12-31"))
		assert.NoError(t, err)
	})

	t.Run("server errors trip", func(t *testing.T) {
		f, st := newFakeRest(t)
		f.on(http.MethodGet, "tournaments", restError(http.StatusServiceUnavailable, "PGRST000", "connection refused"))
		ctx := context.Background()

		for i := 0; i < 2; i++ {
			_, err := st.ListTournaments(ctx, day("2024-01-01"), day("2024-12-31"))
			require.Error(t, err)
		}
		_, err := st.ListTournaments(ctx, day("2024-01-01"), day("2024-12-31"))
		assert.True(t, errors.Is(err, gobreaker.ErrOpenState), err)
		assert.Len(t, f.recorded(http.MethodGet, "tournaments"), 2)
	})
}

func TestIsClientError(t *testing.T) {
	cases := map[string]bool{
		"(23505) duplicate key":         true,
		"(22P02) invalid input syntax":  true,
		"(42703) column does not exist": true,
		"(PGRST116) no rows":            true,
		"(PGRST301) jwt expired":        true,
		"(PGRST000) connection lost":    false,
		"(57014) statement timeout":     false,
		"dial tcp: refused":             false,
	}
	for msg, want := range cases {
		assert.Equal(t, want, isClientError(errors.New(msg)), msg)
	}
}
