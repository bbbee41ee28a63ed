package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tindahan/api/internal/platform/httpx"
	"github.com/tindahan/api/internal/services"
)

// StoreHandlers lists pickup stores.
type StoreHandlers struct {
	stores services.StoreService
}

func NewStoreHandlers(stores services.StoreService) *StoreHandlers {
	return &StoreHandlers{stores: stores}
}

// Routes wires the /stores endpoints.
func (h *StoreHandlers) Routes(r chi.Router) {
	r.Get("/", h.listStores)
	r.Get("/{storeID}", h.getStore)
}

type storePayload struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Address      string   `json:"address"`
	Phone        string   `json:"phone,omitempty"`
	OpeningHours string   `json:"opening_hours,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
}

func buildStorePayload(store services.Store) storePayload {
	return storePayload{
		ID:           store.ID,
		Name:         store.Name,
		Address:      store.Address,
		Phone:        store.Phone,
		OpeningHours: store.OpeningHours,
		Latitude:     store.Latitude,
		Longitude:    store.Longitude,
	}
}

func (h *StoreHandlers) listStores(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stores == nil {
		httpx.WriteError(ctx, w, httpx.NewError("store_service_unavailable", "store service is unavailable", http.StatusServiceUnavailable))
		return
	}
	stores, err := h.stores.List(ctx, r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]storePayload, 0, len(stores))
	for _, store := range stores {
		items = append(items, buildStorePayload(store))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *StoreHandlers) getStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stores == nil {
		httpx.WriteError(ctx, w, httpx.NewError("store_service_unavailable", "store service is unavailable", http.StatusServiceUnavailable))
		return
	}
	store, err := h.stores.Get(ctx, chi.URLParam(r, "storeID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildStorePayload(store))
}
