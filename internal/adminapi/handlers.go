package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"sapphire-kv/internal/fabric"
)

type handlers struct {
	reg *fabric.Registry
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handlers) listCollections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"collections": h.reg.CollectionNames()})
}

func (h *handlers) listCollectionObjects(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	objs := h.reg.Collection(name)
	writeJSON(w, http.StatusOK, map[string]any{"objects": toDicts(objs)})
}

func (h *handlers) getObject(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	id := r.PathValue("id")
	obj, err := h.reg.Get(id)
	if err != nil || obj.Collection() != name {
		writeError(w, http.StatusNotFound, fabric.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, obj.ToDict())
}

func (h *handlers) listObjects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"objects": toDicts(h.reg.All())})
}

func (h *handlers) getObjectByID(w http.ResponseWriter, r *http.Request) {
	obj, err := h.reg.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, obj.ToDict())
}

type createObjectRequest struct {
	Collection string         `json:"collection"`
	Attrs      map[string]any `json:"attrs"`
}

func (h *handlers) createObject(w http.ResponseWriter, r *http.Request) {
	var req createObjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Collection == "" {
		writeError(w, http.StatusBadRequest, errors.New("adminapi: collection is required"))
		return
	}
	obj := h.reg.NewObject(req.Collection, req.Attrs)
	obj.Notify()
	writeJSON(w, http.StatusCreated, obj.ToDict())
}

func (h *handlers) replaceObject(w http.ResponseWriter, r *http.Request) {
	h.mutateObject(w, r, true)
}

func (h *handlers) patchObject(w http.ResponseWriter, r *http.Request) {
	h.mutateObject(w, r, false)
}

func (h *handlers) mutateObject(w http.ResponseWriter, r *http.Request, originatorOnly bool) {
	obj, err := h.reg.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if originatorOnly && !obj.IsOriginator() {
		writeError(w, http.StatusForbidden, fabric.ErrNotOriginator)
		return
	}
	var attrs map[string]any
	if err := json.NewDecoder(r.Body).Decode(&attrs); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := obj.BatchSet(attrs); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, fabric.ErrNotOriginator) {
			status = http.StatusForbidden
		}
		writeError(w, status, err)
		return
	}
	obj.Notify()
	writeJSON(w, http.StatusOK, obj.ToDict())
}

func (h *handlers) deleteObject(w http.ResponseWriter, r *http.Request) {
	if err := h.reg.Delete(r.PathValue("id")); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, fabric.ErrNotFound) {
			status = http.StatusNotFound
		} else if errors.Is(err, fabric.ErrNotOriginator) {
			status = http.StatusForbidden
		}
		writeError(w, status, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

const (
	defaultEventsTimeout = 25 * time.Second
	maxEventsTimeout     = 2 * time.Minute
)

type eventEnvelope struct {
	ObjectID string         `json:"object_id"`
	Events   []fabric.Event `json:"events"`
}

// events long-polls the in-process signal bus: it blocks until at least one
// "event sent" or "event received" batch arrives, or until the timeout query
// parameter (capped at maxEventsTimeout) elapses, then returns whatever
// accumulated.
func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	timeout := defaultEventsTimeout
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			timeout = min(d, maxEventsTimeout)
		}
	}

	collected := make(chan eventEnvelope, 64)
	handler := func(objectID string, events []fabric.Event) {
		select {
		case collected <- eventEnvelope{ObjectID: objectID, Events: events}:
		default:
		}
	}
	unsubscribeSent := h.reg.Bus().On(fabric.SignalEventSent, handler)
	unsubscribeReceived := h.reg.Bus().On(fabric.SignalEventReceived, handler)
	defer unsubscribeSent()
	defer unsubscribeReceived()

	ctx, cancel := timeoutContext(r, timeout)
	defer cancel()

	var out []eventEnvelope
	select {
	case env := <-collected:
		out = append(out, env)
	case <-ctx.Done():
		writeJSON(w, http.StatusOK, map[string]any{"events": out})
		return
	}
	for {
		select {
		case env := <-collected:
			out = append(out, env)
		default:
			writeJSON(w, http.StatusOK, map[string]any{"events": out})
			return
		}
	}
}

func timeoutContext(r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), timeout)
}

func toDicts(objs []*fabric.Object) []map[string]any {
	out := make([]map[string]any, 0, len(objs))
	for _, o := range objs {
		out = append(out, o.ToDict())
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
