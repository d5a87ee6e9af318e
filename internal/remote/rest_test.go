package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ashfaaq98/imaging-case-console/internal/store"
)

const baseURL = "https://cases.example.test"

func newMockedStore(t *testing.T, token string) *RESTStore {
	t.Helper()
	s, err := New(Options{BaseURL: baseURL + "/", APIKey: "anon-key", AccessToken: token})
	require.NoError(t, err)
	httpmock.ActivateNonDefault(s.client.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return s
}

func TestNewValidatesBaseURL(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
	_, err = New(Options{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestQueryVisibleTo(t *testing.T) {
	s := newMockedStore(t, "token-1")

	var got *http.Request
	httpmock.RegisterResponder("GET", baseURL+"/rest/v1/cases",
		func(req *http.Request) (*http.Response, error) {
			got = req
			return httpmock.NewJsonResponse(http.StatusOK, []map[string]any{
				{"id": "c1", "user_id": "alice", "severity_rating": 8},
				{"id": "c2", "user_id": nil, "severity_rating": 3},
			})
		})

	rows, err := s.Query(context.Background(), store.VisibleTo("alice"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "c1", store.AsString(rows[0][store.ColID]))
	sev, ok := store.AsInt(rows[0][store.ColSeverityRating])
	assert.True(t, ok)
	assert.Equal(t, 8, sev)

	require.NotNil(t, got)
	q := got.URL.Query()
	assert.Equal(t, "(user_id.eq.alice,user_id.is.null)", q.Get("or"))
	assert.Equal(t, "not.is.true", q.Get("archived"))
	assert.Equal(t, "created_at.desc", q.Get("order"))
	assert.Equal(t, "anon-key", got.Header.Get("apikey"))
	assert.Equal(t, "Bearer token-1", got.Header.Get("Authorization"))
}

func TestQueryVariants(t *testing.T) {
	s := newMockedStore(t, "")
	var q map[string][]string
	httpmock.RegisterResponder("GET", baseURL+"/rest/v1/cases",
		func(req *http.Request) (*http.Response, error) {
			q = req.URL.Query()
			return httpmock.NewJsonResponse(http.StatusOK, []map[string]any{})
		})

	rows, err := s.Query(context.Background(), store.Query{Table: store.TableCases, OwnerID: "bob", IncludeArchived: true, Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, []string{"eq.bob"}, q["user_id"])
	assert.Nil(t, q["archived"])
	assert.Equal(t, []string{"5"}, q["limit"])
	assert.Equal(t, []string{"created_at.asc"}, q["order"])

	_, err = s.Query(context.Background(), store.Query{Table: store.TableCases, IncludeUnowned: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"is.null"}, q["user_id"])

	_, err = s.Query(context.Background(), store.Query{Table: store.TableCases, OrderBy: "1; drop table cases"})
	assert.True(t, store.IsStoreError(err))

	_, err = s.Query(context.Background(), store.Query{Table: "users"})
	assert.ErrorIs(t, err, store.ErrUnsupportedTable)
}

func TestQueryServerErrorIsStoreError(t *testing.T) {
	s := newMockedStore(t, "token-1")
	httpmock.RegisterResponder("GET", baseURL+"/rest/v1/cases",
		httpmock.NewJsonResponderOrPanic(http.StatusBadRequest, map[string]string{
			"code": "42703", "message": "column cases.nope does not exist",
		}))

	_, err := s.Query(context.Background(), store.VisibleTo("alice"))
	require.Error(t, err)

	var se *store.StoreError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "query", se.Op)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "42703", apiErr.Code)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestQueryTransportErrorIsStoreError(t *testing.T) {
	s := newMockedStore(t, "token-1")
	httpmock.RegisterResponder("GET", baseURL+"/rest/v1/cases",
		httpmock.NewErrorResponder(errors.New("connection refused")))

	_, err := s.Query(context.Background(), store.VisibleTo("alice"))
	assert.True(t, store.IsStoreError(err))
}

func TestInsertReturnsRepresentation(t *testing.T) {
	s := newMockedStore(t, "token-1")

	var sent map[string]any
	var prefer string
	httpmock.RegisterResponder("POST", baseURL+"/rest/v1/cases",
		func(req *http.Request) (*http.Response, error) {
			prefer = req.Header.Get("Prefer")
			body, _ := io.ReadAll(req.Body)
			_ = json.Unmarshal(body, &sent)
			return httpmock.NewJsonResponse(http.StatusCreated, []map[string]any{
				{"id": "srv-1", "patient_name": "Ana", "status": "open"},
			})
		})

	row, err := s.Insert(context.Background(), store.TableCases, store.Row{
		store.ColPatientName: "Ana",
		store.ColUserID:      nil,
		"bogus":              true,
	})
	require.NoError(t, err)
	assert.Equal(t, "srv-1", row[store.ColID])
	assert.Equal(t, "return=representation", prefer)
	assert.Equal(t, map[string]any{"patient_name": "Ana"}, sent)
}

func TestUpdateAndDelete(t *testing.T) {
	s := newMockedStore(t, "token-1")

	var patched map[string]any
	httpmock.RegisterResponder("PATCH", baseURL+"/rest/v1/cases",
		func(req *http.Request) (*http.Response, error) {
			body, _ := io.ReadAll(req.Body)
			_ = json.Unmarshal(body, &patched)
			if req.URL.Query().Get("id") != "eq.c1" {
				return httpmock.NewJsonResponse(http.StatusOK, []map[string]any{})
			}
			return httpmock.NewJsonResponse(http.StatusOK, []map[string]any{{"id": "c1"}})
		})
	httpmock.RegisterResponder("DELETE", baseURL+"/rest/v1/cases",
		func(req *http.Request) (*http.Response, error) {
			if req.URL.Query().Get("id") != "eq.c1" {
				return httpmock.NewJsonResponse(http.StatusOK, []map[string]any{})
			}
			return httpmock.NewJsonResponse(http.StatusOK, []map[string]any{{"id": "c1"}})
		})

	ctx := context.Background()
	require.NoError(t, s.Update(ctx, store.TableCases, "c1", store.Row{
		store.ColStatus: "in-progress",
		store.ColID:     "other",
	}))
	assert.Equal(t, "in-progress", patched["status"])
	assert.NotContains(t, patched, "id")
	assert.Contains(t, patched, "updated_at")

	err := s.Update(ctx, store.TableCases, "missing", store.Row{store.ColStatus: "open"})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.True(t, store.IsStoreError(err))

	require.NoError(t, s.Delete(ctx, store.TableCases, "c1"))
	assert.ErrorIs(t, s.Delete(ctx, store.TableCases, "missing"), store.ErrNotFound)
}

func TestUploadBlob(t *testing.T) {
	s := newMockedStore(t, "token-1")

	var body []byte
	var upsert string
	httpmock.RegisterResponder("POST", baseURL+"/storage/v1/object/case-images/c1/scan.png",
		func(req *http.Request) (*http.Response, error) {
			body, _ = io.ReadAll(req.Body)
			upsert = req.Header.Get("x-upsert")
			return httpmock.NewJsonResponse(http.StatusOK, map[string]string{"Key": "case-images/c1/scan.png"})
		})

	path, err := s.UploadBlob(context.Background(), store.BucketImages, "/c1/scan.png", []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, "case-images/c1/scan.png", path)
	assert.Equal(t, []byte{1, 2, 3}, body)
	assert.Equal(t, "true", upsert)

	_, err = s.UploadBlob(context.Background(), "", "x", nil)
	assert.True(t, store.IsStoreError(err))
}

func TestCurrentPrincipal(t *testing.T) {
	s := newMockedStore(t, "token-1")
	httpmock.RegisterResponder("GET", baseURL+"/auth/v1/user",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]string{"id": "alice", "email": "alice@example.test"}))

	p, err := s.CurrentPrincipal(context.Background())
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "alice", p.ID)
	assert.Equal(t, "alice@example.test", p.Email)
}

func TestCurrentPrincipalWithoutSession(t *testing.T) {
	s := newMockedStore(t, "expired")
	httpmock.RegisterResponder("GET", baseURL+"/auth/v1/user",
		httpmock.NewJsonResponderOrPanic(http.StatusUnauthorized, map[string]string{"message": "invalid JWT"}))

	p, err := s.CurrentPrincipal(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, p)

	anon := newMockedStore(t, "")
	before := httpmock.GetTotalCallCount()
	p, err = anon.CurrentPrincipal(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, before, httpmock.GetTotalCallCount(), "no token means no call")
}

func TestCurrentPrincipalServerError(t *testing.T) {
	s := newMockedStore(t, "token-1")
	httpmock.RegisterResponder("GET", baseURL+"/auth/v1/user", httpmock.NewStringResponder(http.StatusBadGateway, "upstream down"))

	_, err := s.CurrentPrincipal(context.Background())
	assert.True(t, store.IsStoreError(err))
}
