package suppliers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/clinicstock/internal/platform/httpx"
	"github.com/odyssey-erp/clinicstock/internal/shared"
)

type memoryRepo struct {
	rows   map[int64]Supplier
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: make(map[int64]Supplier)}
}

func (r *memoryRepo) List(_ context.Context, filters shared.ListFilters) ([]Supplier, int, error) {
	out := []Supplier{}
	for _, s := range r.rows {
		if filters.Search == "" || strings.Contains(strings.ToLower(s.Name), strings.ToLower(filters.Search)) {
			out = append(out, s)
		}
	}
	return out, len(out), nil
}

func (r *memoryRepo) Get(_ context.Context, id int64) (Supplier, error) {
	s, ok := r.rows[id]
	if !ok {
		return Supplier{}, ErrNotFound
	}
	return s, nil
}

func (r *memoryRepo) Create(_ context.Context, s Supplier) (Supplier, error) {
	for _, existing := range r.rows {
		if existing.Code == s.Code {
			return Supplier{}, ErrDuplicateCode
		}
	}
	r.nextID++
	s.ID = r.nextID
	r.rows[s.ID] = s
	return s, nil
}

func (r *memoryRepo) Update(_ context.Context, id int64, s Supplier) error {
	if _, ok := r.rows[id]; !ok {
		return ErrNotFound
	}
	s.ID = id
	r.rows[id] = s
	return nil
}

func (r *memoryRepo) Delete(_ context.Context, id int64) error {
	if _, ok := r.rows[id]; !ok {
		return ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func TestCreateNormalisesAndValidates(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	created, err := svc.Create(ctx, Supplier{Code: " medsup ", Name: " MedSupply Co "})
	require.NoError(t, err)
	require.Equal(t, "MEDSUP", created.Code)
	require.Equal(t, "MedSupply Co", created.Name)

	_, err = svc.Create(ctx, Supplier{Code: "X"})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Create(ctx, Supplier{Code: "Y", Name: "Y", Email: "not-an-email"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(ctx, Supplier{Code: "medsup", Name: "Again"})
	require.ErrorIs(t, err, httpx.ErrDuplicate)
}

func TestUpdateUnknownSupplier(t *testing.T) {
	svc := NewService(newMemoryRepo())
	_, err := svc.Update(context.Background(), 42, Supplier{Code: "A", Name: "A"})
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestHandlerCreateRejectsMissingName(t *testing.T) {
	h := NewHandler(nil, NewService(newMemoryRepo()))
	r := chi.NewRouter()
	h.MountRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"A1"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "supplierRequest.Name")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"A1","name":"Acme"}`))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/99", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
