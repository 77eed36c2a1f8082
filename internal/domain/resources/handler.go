package resources

import (
	"net/http"
	"strings"

	"clinic-appointments/internal/middleware"
	"clinic-appointments/internal/platform/logger"
	"clinic-appointments/internal/platform/respond"
	"clinic-appointments/internal/ports/documents"

	"github.com/go-chi/chi/v5"
)

// Handler expone un Resource como CRUD REST.
type Handler struct {
	res Resource
	log logger.Logger
}

func NewHandler(res Resource, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{res: res, log: log.With(map[string]any{"resource": res.path()})}
}

func (h *Handler) Resource() Resource    { return h.res }
func (h *Handler) Logger() logger.Logger { return h.log }

// RegisterRoutes monta /<path> con las operaciones de Resource.Ops; extra agrega rutas propias del recurso.
func (h *Handler) RegisterRoutes(r chi.Router, extra ...func(chi.Router)) {
	r.Route("/"+h.res.path(), func(rr chi.Router) {
		routes := []struct {
			op      Op
			method  string
			pattern string
			fn      http.HandlerFunc
		}{
			{OpList, http.MethodGet, "/", h.List},
			{OpCreate, http.MethodPost, "/", h.Create},
			{OpDetail, http.MethodGet, "/{key}", h.Detail},
			{OpReplace, http.MethodPut, "/{key}", h.Replace},
			{OpPatch, http.MethodPatch, "/{key}", h.Patch},
			{OpDelete, http.MethodDelete, "/{key}", h.Delete},
		}
		for _, rt := range routes {
			if h.res.serves(rt.op) {
				rr.Method(rt.method, rt.pattern, rt.fn)
			}
		}

		for _, fn := range extra {
			fn(rr)
		}
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := Authorize(w, r, h.log, h.res.gate(OpList), ""); !ok {
		return
	}

	items, err := h.res.Collection.All(r.Context())
	if err != nil {
		WriteError(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, items)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	subject, ok := Authorize(w, r, h.log, h.res.gate(OpCreate), "")
	if !ok {
		return
	}

	doc, ok := decodeDocument(w, r)
	if !ok {
		return
	}
	// la key la asigna el store (o un BeforeCreate); nunca el cliente
	delete(doc, documents.FieldKey)
	delete(doc, documents.FieldID)
	delete(doc, documents.FieldRev)

	if h.res.Edge && (doc.String(documents.FieldFrom) == "" || doc.String(documents.FieldTo) == "") {
		http.Error(w, "_from and _to are required", http.StatusBadRequest)
		return
	}
	if err := h.res.Schema.Validate(map[string]any(doc.WithoutSystemFields())); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if h.res.BeforeCreate != nil {
		next, err := h.res.BeforeCreate(ctx, subject, doc)
		if err != nil {
			WriteError(w, h.log, err)
			return
		}
		doc = next
	}

	meta, err := h.res.Collection.Save(ctx, doc)
	if err != nil {
		WriteError(w, h.log, err)
		return
	}
	saved := doc.WithoutSystemFields().ApplyMeta(meta)

	if h.res.AfterCreate != nil {
		if err := h.res.AfterCreate(ctx, subject, saved.Clone()); err != nil {
			h.log.Error("after create hook failed", map[string]any{"err": err, "id": meta.ID})
			WriteError(w, h.log, err)
			return
		}
	}

	w.Header().Set("Location", absoluteURL(r, h.res.path(), meta.Key))
	respond.JSON(w, http.StatusCreated, saved)
}

func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if _, ok := Authorize(w, r, h.log, h.res.gate(OpDetail), key); !ok {
		return
	}

	doc, err := h.res.Collection.Document(r.Context(), key)
	if err != nil {
		WriteError(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, doc)
}

func (h *Handler) Replace(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	subject, ok := Authorize(w, r, h.log, h.res.gate(OpReplace), key)
	if !ok {
		return
	}

	doc, ok := decodeDocument(w, r)
	if !ok {
		return
	}
	rev := Revision(r, doc)

	body := doc.WithoutSystemFields()
	if err := h.res.replaceSchema().Validate(map[string]any(body)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if h.res.BeforeWrite != nil {
		cur, err := h.res.Collection.Document(ctx, key)
		if err != nil {
			WriteError(w, h.log, err)
			return
		}
		body, err = h.res.BeforeWrite(ctx, subject, cur, body)
		if err != nil {
			WriteError(w, h.log, err)
			return
		}
		if rev == "" {
			rev = cur.Rev()
		}
	}

	if _, err := h.res.Collection.Replace(ctx, key, body, rev); err != nil {
		WriteError(w, h.log, err)
		return
	}
	h.respondCurrent(w, r, key)
}

func (h *Handler) Patch(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	subject, ok := Authorize(w, r, h.log, h.res.gate(OpPatch), key)
	if !ok {
		return
	}

	patch, ok := decodeDocument(w, r)
	if !ok {
		return
	}
	rev := Revision(r, patch)
	patch = patch.WithoutSystemFields()

	ctx := r.Context()
	if h.res.Schema == nil && h.res.BeforeWrite == nil {
		if _, err := h.res.Collection.Update(ctx, key, patch, rev); err != nil {
			WriteError(w, h.log, err)
			return
		}
		h.respondCurrent(w, r, key)
		return
	}

	cur, err := h.res.Collection.Document(ctx, key)
	if err != nil {
		WriteError(w, h.log, err)
		return
	}
	merged := documents.MergePatch(cur.WithoutSystemFields(), patch)
	if h.res.BeforeWrite != nil {
		if merged, err = h.res.BeforeWrite(ctx, subject, cur, merged); err != nil {
			WriteError(w, h.log, err)
			return
		}
	}
	// el resultado del merge también tiene que cumplir el schema
	if err := h.res.Schema.Validate(map[string]any(merged)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.res.BeforeWrite != nil {
		// el guard vio cur: se escribe el documento completo contra esa revisión
		if rev == "" {
			rev = cur.Rev()
		}
		_, err = h.res.Collection.Replace(ctx, key, merged, rev)
	} else {
		_, err = h.res.Collection.Update(ctx, key, patch, rev)
	}
	if err != nil {
		WriteError(w, h.log, err)
		return
	}
	h.respondCurrent(w, r, key)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if _, ok := Authorize(w, r, h.log, h.res.gate(OpDelete), key); !ok {
		return
	}

	if err := h.res.Collection.Remove(r.Context(), key); err != nil {
		WriteError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respondCurrent devuelve el documento completo tal como quedó guardado.
func (h *Handler) respondCurrent(w http.ResponseWriter, r *http.Request, key string) {
	doc, err := h.res.Collection.Document(r.Context(), key)
	if err != nil {
		WriteError(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, doc)
}

// Authorize corre el gate antes de cualquier acceso al store.
// Devuelve el subject (puede ser "" en rutas abiertas) y si el request sigue.
func Authorize(w http.ResponseWriter, r *http.Request, log logger.Logger, gate Gate, key string) (string, bool) {
	claims, _ := middleware.GetClaims(r.Context())
	subject := strings.TrimSpace(claims.UserID)
	if gate == nil {
		return subject, true
	}
	if subject == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}

	allowed, err := gate(r.Context(), subject, key)
	if err != nil {
		WriteError(w, log, err)
		return "", false
	}
	if !allowed {
		http.Error(w, "forbidden", http.StatusForbidden)
		return "", false
	}
	return subject, true
}

// Revision: If-Match gana sobre _rev del body. "" => sin chequeo.
func Revision(r *http.Request, body documents.Document) string {
	if v := strings.Trim(strings.TrimSpace(r.Header.Get("If-Match")), `"`); v != "" && v != "*" {
		return v
	}
	return strings.TrimSpace(body.Rev())
}

func decodeDocument(w http.ResponseWriter, r *http.Request) (documents.Document, bool) {
	var doc documents.Document
	if err := respond.DecodeJSON(r, &doc); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return nil, false
	}
	if doc == nil {
		http.Error(w, "body must be a JSON object", http.StatusBadRequest)
		return nil, false
	}
	return doc, true
}

func absoluteURL(r *http.Request, path, key string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); p != "" {
		scheme = p
	}

	// Bajo un prefijo (r.Mount) el path real es el del request.
	base := strings.TrimRight(r.URL.Path, "/")
	if base == "" {
		base = "/" + path
	}
	return scheme + "://" + r.Host + base + "/" + key
}
