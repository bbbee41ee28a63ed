package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tindahan/api/internal/platform/httpx"
	"github.com/tindahan/api/internal/services"
)

func (h *MeHandlers) addressRoutes(r chi.Router) {
	r.Get("/", h.listAddresses)
	r.Post("/", h.createAddress)
	r.Route("/{addressID}", func(r chi.Router) {
		r.Get("/", h.getAddress)
		r.Put("/", h.updateAddress)
		r.Delete("/", h.deleteAddress)
	})
}

type addressPayload struct {
	ID             string   `json:"id"`
	Label          string   `json:"label,omitempty"`
	RecipientName  string   `json:"recipient_name"`
	Phone          string   `json:"phone"`
	Street         string   `json:"street"`
	AdditionalInfo string   `json:"additional_info,omitempty"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
	IsDefault      bool     `json:"is_default"`
	CreatedAt      string   `json:"created_at,omitempty"`
	UpdatedAt      string   `json:"updated_at,omitempty"`
}

type addressRequest struct {
	Label          string   `json:"label"`
	RecipientName  string   `json:"recipient_name"`
	Phone          string   `json:"phone"`
	Street         string   `json:"street"`
	AdditionalInfo string   `json:"additional_info"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	IsDefault      bool     `json:"is_default"`
}

func buildAddressPayload(addr services.Address) addressPayload {
	return addressPayload{
		ID:             addr.ID,
		Label:          addr.Label,
		RecipientName:  addr.RecipientName,
		Phone:          addr.Phone,
		Street:         addr.Street,
		AdditionalInfo: addr.AdditionalInfo,
		Latitude:       addr.Latitude,
		Longitude:      addr.Longitude,
		IsDefault:      addr.IsDefault,
		CreatedAt:      formatTime(addr.CreatedAt),
		UpdatedAt:      formatTime(addr.UpdatedAt),
	}
}

func (req addressRequest) command(accountID, addressID string) services.UpsertAddressCommand {
	return services.UpsertAddressCommand{
		AddressID:      addressID,
		AccountID:      accountID,
		Label:          req.Label,
		RecipientName:  req.RecipientName,
		Phone:          req.Phone,
		Street:         req.Street,
		AdditionalInfo: req.AdditionalInfo,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		IsDefault:      req.IsDefault,
	}
}

func (h *MeHandlers) addressesAvailable(w http.ResponseWriter, r *http.Request) bool {
	if h.addresses == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("address_service_unavailable", "address service is unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func (h *MeHandlers) listAddresses(w http.ResponseWriter, r *http.Request) {
	if !h.addressesAvailable(w, r) {
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	addresses, err := h.addresses.List(r.Context(), identity.AccountID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	payload := make([]addressPayload, 0, len(addresses))
	for _, addr := range addresses {
		payload = append(payload, buildAddressPayload(addr))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": payload})
}

func (h *MeHandlers) getAddress(w http.ResponseWriter, r *http.Request) {
	if !h.addressesAvailable(w, r) {
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	addr, err := h.addresses.Get(r.Context(), identity.AccountID, chi.URLParam(r, "addressID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildAddressPayload(addr))
}

func (h *MeHandlers) createAddress(w http.ResponseWriter, r *http.Request) {
	if !h.addressesAvailable(w, r) {
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req addressRequest
	if !decodeJSONBody(w, r, maxAddressBodySize, &req) {
		return
	}
	addr, err := h.addresses.Create(r.Context(), req.command(identity.AccountID, ""))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildAddressPayload(addr))
}

func (h *MeHandlers) updateAddress(w http.ResponseWriter, r *http.Request) {
	if !h.addressesAvailable(w, r) {
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req addressRequest
	if !decodeJSONBody(w, r, maxAddressBodySize, &req) {
		return
	}
	addr, err := h.addresses.Update(r.Context(), req.command(identity.AccountID, chi.URLParam(r, "addressID")))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildAddressPayload(addr))
}

func (h *MeHandlers) deleteAddress(w http.ResponseWriter, r *http.Request) {
	if !h.addressesAvailable(w, r) {
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if err := h.addresses.Delete(r.Context(), identity.AccountID, chi.URLParam(r, "addressID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
