package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/radieske/props-entry-platform/internal/entry-service/dto"
	"github.com/radieske/props-entry-platform/internal/entry-service/entry"
	"github.com/radieske/props-entry-platform/internal/entry-service/ledger"
	"github.com/radieske/props-entry-platform/internal/entry-service/placement"
	"github.com/radieske/props-entry-platform/internal/entry-service/repo"
	"github.com/radieske/props-entry-platform/internal/entry-service/settlement"
	"github.com/radieske/props-entry-platform/internal/testutil"
)

const adminToken = "s3cret"

func newTestServer(t *testing.T) (*Server, *repo.Store) {
	t.Helper()
	s := testutil.NewStore(t)
	testutil.SeedLine(t, s, "L1", 4.5, entry.LineOpen)
	testutil.SeedLine(t, s, "L2", 27.5, entry.LineOpen)
	testutil.SeedLine(t, s, "L3", 1.5, entry.LineFrozen)

	log := zaptest.NewLogger(t)
	l := ledger.New(0)
	p := placement.NewService(log, s, l, placement.Config{MinWagerCents: 10, MaxWagerCents: 1000}, nil, nil)
	e := settlement.NewEngine(log, s, l, nil, nil)
	return NewServer(log, s, l, p, e, HeaderIdentity{}, TokenAuthorizer{Token: adminToken}), s
}

func do(t *testing.T, h http.Handler, method, path, user string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func value(v float64) *float64 { return &v }

func placeBody(wager int64, legs ...dto.LegRequest) dto.PlaceEntryRequest {
	return dto.PlaceEntryRequest{Wager: wager, Legs: legs}
}

func TestPlaceAndSettleFlow(t *testing.T) {
	srv, store := newTestServer(t)
	testutil.SeedUser(t, store, "u1", 100)
	h := srv.Router()

	rec := do(t, h, http.MethodPost, "/entries", "u1",
		placeBody(50, dto.LegRequest{PropLineID: "L1", Pick: "MORE"}, dto.LegRequest{PropLineID: "L2", Pick: "less"}), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	placed := decode[dto.PlaceEntryResponse](t, rec)
	assert.Equal(t, "OPEN", placed.Status)
	assert.Equal(t, int64(3), placed.Multiplier)
	assert.Equal(t, int64(150), placed.PotentialPayout)

	rec = do(t, h, http.MethodGet, "/me", "u1", nil, nil)
	assert.Equal(t, int64(50), decode[dto.MeResponse](t, rec).Balance)

	admin := map[string]string{"Authorization": "Bearer " + adminToken}
	rec = do(t, h, http.MethodPost, "/settlements", "", dto.SettlementRequest{Results: []dto.OutcomeRequest{
		{PropLineID: "L1", ActualValue: value(6)},
		{PropLineID: "L2", ActualValue: value(20)},
	}}, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sum := decode[dto.SettlementResponse](t, rec)
	assert.Equal(t, 2, sum.LegsResolved)
	assert.Equal(t, 1, sum.EntriesSettled)

	rec = do(t, h, http.MethodGet, "/entries/"+placed.EntryID, "u1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[dto.EntryResponse](t, rec)
	assert.Equal(t, "WON", got.Status)
	require.Len(t, got.Legs, 2)
	require.NotNil(t, got.Legs[0].Result)
	assert.Equal(t, "WON", *got.Legs[0].Result)

	rec = do(t, h, http.MethodGet, "/me", "u1", nil, nil)
	assert.Equal(t, int64(200), decode[dto.MeResponse](t, rec).Balance)

	rec = do(t, h, http.MethodGet, "/entries?status=won", "u1", nil, nil)
	assert.Len(t, decode[[]dto.EntryResponse](t, rec), 1)
}

func TestPlaceEntry_ErrorStatuses(t *testing.T) {
	srv, store := newTestServer(t)
	testutil.SeedUser(t, store, "u1", 40)
	h := srv.Router()

	more := func(id string) dto.LegRequest { return dto.LegRequest{PropLineID: id, Pick: "MORE"} }
	cases := []struct {
		body   dto.PlaceEntryRequest
		status int
		code   string
	}{
		{placeBody(20, more("L1")), http.StatusBadRequest, "InvalidLegCount"},
		{placeBody(20, more("L1"), more("L1")), http.StatusBadRequest, "DuplicateLeg"},
		{placeBody(20, more("L1"), dto.LegRequest{PropLineID: "L2", Pick: "UNDER"}), http.StatusBadRequest, "InvalidPick"},
		{placeBody(20, more("L1"), more("L3")), http.StatusConflict, "LineUnavailable"},
		{placeBody(5000, more("L1"), more("L2")), http.StatusBadRequest, "InvalidWager"},
		{placeBody(50, more("L1"), more("L2")), http.StatusConflict, "InsufficientFunds"},
	}
	for _, tc := range cases {
		rec := do(t, h, http.MethodPost, "/entries", "u1", tc.body, nil)
		assert.Equal(t, tc.status, rec.Code, tc.code)
		assert.Equal(t, tc.code, decode[dto.ErrorResponse](t, rec).Error)
	}
	assert.Equal(t, int64(40), testutil.Balance(t, store, "u1"))
}

func TestPlaceEntry_IdempotencyHeaderReplays(t *testing.T) {
	srv, store := newTestServer(t)
	testutil.SeedUser(t, store, "u1", 100)
	h := srv.Router()

	body := placeBody(30, dto.LegRequest{PropLineID: "L1", Pick: "MORE"}, dto.LegRequest{PropLineID: "L2", Pick: "MORE"})
	hdr := map[string]string{"Idempotency-Key": "retry-1"}

	first := do(t, h, http.MethodPost, "/entries", "u1", body, hdr)
	require.Equal(t, http.StatusCreated, first.Code)
	second := do(t, h, http.MethodPost, "/entries", "u1", body, hdr)
	require.Equal(t, http.StatusOK, second.Code)

	assert.Equal(t, decode[dto.PlaceEntryResponse](t, first).EntryID, decode[dto.PlaceEntryResponse](t, second).EntryID)
	assert.Equal(t, int64(70), testutil.Balance(t, store, "u1"))
}

func TestAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router()

	rec := do(t, h, http.MethodGet, "/entries", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/settlements", "u1", dto.SettlementRequest{}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/settlements", "u1", dto.SettlementRequest{}, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodGet, "/admin/unsettled-legs", "", nil, map[string]string{"Authorization": "Bearer " + adminToken})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAutoProvisionAndNotFound(t *testing.T) {
	srv, store := newTestServer(t)
	h := srv.Router()

	rec := do(t, h, http.MethodGet, "/me", "newbie", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	srv.AutoProvisionCents = 1000
	rec = do(t, h, http.MethodGet, "/me", "newbie", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1000), decode[dto.MeResponse](t, rec).Balance)
	assert.Equal(t, int64(1000), testutil.Balance(t, store, "newbie"))

	rec = do(t, h, http.MethodGet, "/entries/missing", "newbie", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettlementWarnings(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router()

	rec := do(t, h, http.MethodPost, "/settlements", "", dto.SettlementRequest{Results: []dto.OutcomeRequest{
		{PropLineID: "ghost", ActualValue: value(3)},
	}}, map[string]string{"Authorization": "Bearer " + adminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decode[dto.SettlementResponse](t, rec)
	assert.Zero(t, sum.EntriesSettled)
	assert.Len(t, sum.Warnings, 1)
}

func TestSettlement_MalformedRecordsAreSkipped(t *testing.T) {
	srv, store := newTestServer(t)
	testutil.SeedUser(t, store, "u1", 100)
	h := srv.Router()

	rec := do(t, h, http.MethodPost, "/entries", "u1",
		placeBody(50, dto.LegRequest{PropLineID: "L1", Pick: "LESS"}, dto.LegRequest{PropLineID: "L2", Pick: "LESS"}), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	placed := decode[dto.PlaceEntryResponse](t, rec)

	admin := map[string]string{"Authorization": "Bearer " + adminToken}
	post := func(raw string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/settlements", strings.NewReader(raw))
		for k, v := range admin {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec = post(`{"results":[{"prop_line_id":"L1"},{"prop_line_id":"L2","actual_value":null}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sum := decode[dto.SettlementResponse](t, rec)
	assert.Zero(t, sum.LegsResolved)
	assert.Zero(t, sum.EntriesSettled)
	assert.Len(t, sum.Warnings, 2)
	assert.Equal(t, int64(50), testutil.Balance(t, store, "u1"))

	rec = post(`{"results":[{"prop_line_id":"L3","actual_value":"oops"},{"prop_line_id":"L1","actual_value":3}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sum = decode[dto.SettlementResponse](t, rec)
	assert.Equal(t, 1, sum.LegsResolved)
	assert.Len(t, sum.Warnings, 1)

	rec = do(t, h, http.MethodGet, "/entries/"+placed.EntryID, "u1", nil, nil)
	got := decode[dto.EntryResponse](t, rec)
	assert.Equal(t, "OPEN", got.Status)
}
