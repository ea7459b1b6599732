// Package handler exposes the HTTP surface of the resource directory:
// registering and withdrawing resources, and querying the tracked view.
package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"resource-tracker/internal/apperr"
	"resource-tracker/internal/model"
	"resource-tracker/internal/registry"
	"resource-tracker/internal/resource"
	"resource-tracker/internal/tracker"
)

// Handler wires HTTP requests to the registry and the tracker.
type Handler struct {
	reg         *registry.Registry
	tr          *tracker.Tracker
	waitDefault time.Duration
}

// New returns a Handler over the given registry and tracker.
//
// It panics if either dependency is nil. If waitDefault is non-positive,
// a default wait bound is applied.
func New(reg *registry.Registry, tr *tracker.Tracker, waitDefault time.Duration) *Handler {
	if reg == nil {
		panic("handler.New: nil registry")
	}
	if tr == nil {
		panic("handler.New: nil tracker")
	}
	if waitDefault <= 0 {
		waitDefault = 10 * time.Second
	}
	return &Handler{reg: reg, tr: tr, waitDefault: waitDefault}
}

// Register adds the handler's routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /resources", h.HandleRegister)
	mux.HandleFunc("PATCH /resources/{id}", h.HandleUpdate)
	mux.HandleFunc("DELETE /resources/{id}", h.HandleUnregister)
	mux.HandleFunc("GET /tracked", h.HandleTracked)
	mux.HandleFunc("GET /tracked/best", h.HandleBest)
	mux.HandleFunc("GET /tracked/objects", h.HandleObjects)
	mux.HandleFunc("GET /tracked/wait", h.HandleWait)
	mux.HandleFunc("GET /healthz", h.HandleHealthz)
}

// HandleRegister publishes a new resource.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON")
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "name is required")
		return
	}

	obj := model.ResourceInfo{
		Name:       req.Name,
		Ranking:    req.Ranking,
		Properties: req.Properties,
	}
	ref, err := h.reg.Register(req.Name, req.Ranking, req.Properties, obj)
	if err != nil {
		writeError(w, apperr.HTTPStatus(err), apperr.Kind(err), "register failed")
		return
	}
	writeJSON(w, http.StatusCreated, refInfo(ref))
}

// HandleUpdate changes ranking and/or properties of a resource.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.refFromPath(w, r)
	if !ok {
		return
	}

	var req model.UpdateRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON")
		return
	}

	if req.Ranking != nil {
		if err := h.reg.SetRanking(ref, *req.Ranking); err != nil {
			writeError(w, apperr.HTTPStatus(err), apperr.Kind(err), "update failed")
			return
		}
	}
	if req.Properties != nil {
		if err := h.reg.Modify(ref, req.Properties); err != nil {
			writeError(w, apperr.HTTPStatus(err), apperr.Kind(err), "update failed")
			return
		}
	}
	writeJSON(w, http.StatusOK, refInfo(ref))
}

// HandleUnregister withdraws a resource.
func (h *Handler) HandleUnregister(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.refFromPath(w, r)
	if !ok {
		return
	}
	if err := h.reg.Unregister(ref); err != nil {
		writeError(w, apperr.HTTPStatus(err), apperr.Kind(err), "unregister failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleTracked returns the tracked references, best-first.
func (h *Handler) HandleTracked(w http.ResponseWriter, r *http.Request) {
	refs := h.tr.GetReferences()
	resp := model.TrackedResponse{
		Status:    "ok",
		Size:      len(refs),
		Resources: make([]model.ResourceInfo, 0, len(refs)),
	}
	for _, ref := range refs {
		resp.Resources = append(resp.Resources, refInfo(ref))
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleBest returns the preferred tracked resource with its resolved
// object.
func (h *Handler) HandleBest(w http.ResponseWriter, r *http.Request) {
	ref := h.tr.GetReference()
	if ref == nil {
		writeJSON(w, http.StatusNotFound, model.BestResponse{
			Status: "error",
			Error:  &model.ErrorPayload{Kind: apperr.Kind(apperr.ErrNoneAvailable), Message: "nothing tracked"},
		})
		return
	}
	info := refInfo(ref)
	writeJSON(w, http.StatusOK, model.BestResponse{
		Status:   "ok",
		Resource: &info,
		Object:   h.tr.GetObject(),
	})
}

// HandleObjects resolves every tracked reference concurrently.
func (h *Handler) HandleObjects(w http.ResponseWriter, r *http.Request) {
	refs := h.tr.GetReferences()
	objs := make([]any, len(refs))

	g, _ := errgroup.WithContext(r.Context())
	for i, ref := range refs {
		g.Go(func() error {
			objs[i] = h.tr.GetObjectFor(ref)
			return nil
		})
	}
	_ = g.Wait()

	writeJSON(w, http.StatusOK, model.ObjectsResponse{Status: "ok", Objects: objs})
}

// HandleWait blocks until a tracked resource is available or the
// timeout elapses. timeout_ms overrides the configured default; a
// negative value is rejected.
func (h *Handler) HandleWait(w http.ResponseWriter, r *http.Request) {
	timeout := h.waitDefault
	if raw := r.URL.Query().Get("timeout_ms"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid timeout_ms")
			return
		}
		timeout = time.Duration(ms) * time.Millisecond
	}

	obj, err := h.tr.WaitFor(timeout)
	if err != nil {
		writeError(w, apperr.HTTPStatus(err), apperr.Kind(err), "wait failed")
		return
	}
	if obj == nil {
		writeError(w, apperr.HTTPStatus(apperr.ErrNoneAvailable),
			apperr.Kind(apperr.ErrNoneAvailable), "no resource became available")
		return
	}

	resp := model.BestResponse{Status: "ok", Object: obj}
	if ref := h.tr.GetReference(); ref != nil {
		info := refInfo(ref)
		resp.Resource = &info
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleHealthz reports liveness.
func (h *Handler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// refFromPath resolves the {id} path segment to a registered reference,
// writing the error response itself when that fails.
func (h *Handler) refFromPath(w http.ResponseWriter, r *http.Request) (*resource.Reference, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid resource id")
		return nil, false
	}
	ref := h.reg.FindByID(id)
	if ref == nil {
		writeError(w, http.StatusNotFound, apperr.Kind(apperr.ErrUnknownResource), "no such resource")
		return nil, false
	}
	return ref, true
}

func refInfo(ref *resource.Reference) model.ResourceInfo {
	return model.ResourceInfo{
		ID:         ref.ID,
		Name:       ref.Name,
		Ranking:    ref.Ranking(),
		Properties: ref.Properties(),
	}
}

// writeJSON writes v as a JSON response with the given status code.
// The Content-Type is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, model.TrackedResponse{
		Status: "error",
		Error:  &model.ErrorPayload{Kind: kind, Message: msg},
	})
}
