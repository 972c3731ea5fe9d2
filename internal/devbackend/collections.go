package devbackend

import (
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"touradmin/internal/resource"
)

const maxUpload = 10 << 20

// CollectionHandlers serves one loosely typed collection (hotels, places...).
type CollectionHandlers struct {
	Store *Store
	Name  resource.Name
}

func (h CollectionHandlers) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Store.List(h.Name))
}

func (h CollectionHandlers) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Store.Get(h.Name, chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", string(h.Name)+" not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h CollectionHandlers) Create(w http.ResponseWriter, r *http.Request) {
	rec, ok := readRecord(w, r)
	if !ok {
		return
	}
	delete(rec, "_id")
	writeJSON(w, http.StatusCreated, h.Store.Put(h.Name, rec))
}

func (h CollectionHandlers) Update(w http.ResponseWriter, r *http.Request) {
	rec, ok := readRecord(w, r)
	if !ok {
		return
	}
	out, err := h.Store.Update(h.Name, chi.URLParam(r, "id"), rec)
	if err != nil {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", string(h.Name)+" not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h CollectionHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Delete(h.Name, chi.URLParam(r, "id")); err != nil {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", string(h.Name)+" not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Deleted successfully"})
}

// readRecord accepts a JSON object or a multipart form. Uploaded files are
// recorded by name under their field; the bytes are discarded.
func readRecord(w http.ResponseWriter, r *http.Request) (resource.Record, bool) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(mt, "multipart/") {
		var rec resource.Record
		if err := decodeJSON(w, r, &rec); err != nil || rec == nil {
			WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "expected a json object")
			return nil, false
		}
		return rec, true
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid multipart form")
		return nil, false
	}
	rec := resource.Record{}
	for k, vs := range r.MultipartForm.Value {
		if len(vs) == 1 {
			rec[k] = mustRaw(vs[0])
		} else {
			rec[k] = mustRaw(vs)
		}
	}
	for k, fhs := range r.MultipartForm.File {
		names := make([]string, 0, len(fhs))
		for _, fh := range fhs {
			names = append(names, fh.Filename)
		}
		rec[k] = mustRaw(names)
	}
	return rec, true
}

type UserHandlers struct {
	Store *Store
}

func (h UserHandlers) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Store.Users())
}

func (h UserHandlers) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.Store.User(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h UserHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if me := UserFromContext(r.Context()); me != nil && me.ID == id {
		WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "You cannot delete your own account")
		return
	}
	if err := h.Store.DeleteUser(id); err != nil {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "User removed"})
}
