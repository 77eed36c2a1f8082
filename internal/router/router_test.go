package router_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"clinic-appointments/internal/config"
	"clinic-appointments/internal/domain/permissions"
	"clinic-appointments/internal/router"
)

const adminID = "admin"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	h, err := router.NewRouter(router.Options{
		AuthVerifier: nil, // modo dev
		Permissions: permissions.Options{
			Superusers:    []string{adminID},
			DefaultGlobal: config.DefaultGlobalActions,
		},
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts
}

func TestHTTP_EndToEnd_AppointmentLifecycle(t *testing.T) {
	ts := newServer(t)

	patientID := "u1"
	otherID := "u2"

	// 1) El usuario se registra como paciente
	registerPatient(t, ts.URL, patientID, "north")

	// 2) Crea un turno => 201 + Location absoluto
	st, hdr, body := doReqH(t, ts.URL, "POST", "/appointments", patientID, map[string]any{
		"description": "headache",
	}, nil)
	if st != http.StatusCreated {
		t.Fatalf("expected 201 create appointment, got %d body=%s", st, string(body))
	}
	created := decodeDoc(t, body)
	key, _ := created["_key"].(string)
	if key == "" {
		t.Fatalf("create appointment: missing _key body=%s", string(body))
	}
	if want := ts.URL + "/appointments/" + key; hdr.Get("Location") != want {
		t.Fatalf("expected Location %q, got %q", want, hdr.Get("Location"))
	}
	if created["area"] != "north" || created["patient"] != "patients/"+patientID {
		t.Fatalf("expected derived fields from patient, got %v", created)
	}

	// 3) GET sobre Location => mismos campos + key/rev
	{
		path := strings.TrimPrefix(hdr.Get("Location"), ts.URL)
		st, body := doReq(t, ts.URL, "GET", path, patientID, nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 get appointment, got %d body=%s", st, string(body))
		}
		got := decodeDoc(t, body)
		for _, f := range []string{"_key", "_id", "_rev", "description", "area", "patient", "status"} {
			if got[f] != created[f] {
				t.Fatalf("field %s: expected %v, got %v", f, created[f], got[f])
			}
		}
	}

	// 4) Otro usuario no lo ve; sin grant es 403 exista o no
	{
		st, _ := doReq(t, ts.URL, "GET", "/appointments/"+key, otherID, nil)
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 for other user, got %d", st)
		}
		st, _ = doReq(t, ts.URL, "GET", "/appointments/does-not-exist", patientID, nil)
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 on ungranted missing key, got %d", st)
		}
	}

	// 5) PATCH con la revisión leída => 200; revisión vieja => 409
	rev1, _ := created["_rev"].(string)
	{
		st, body := doReq(t, ts.URL, "PATCH", "/appointments/"+key, patientID, map[string]any{
			"description": "migraine",
			"_rev":        rev1,
		})
		if st != http.StatusOK {
			t.Fatalf("expected 200 patch, got %d body=%s", st, string(body))
		}
		got := decodeDoc(t, body)
		if got["description"] != "migraine" || got["area"] != "north" {
			t.Fatalf("patch must return full merged doc, got %v", got)
		}
	}
	{
		st, _ := doReq(t, ts.URL, "PATCH", "/appointments/"+key, patientID, map[string]any{
			"description": "stale",
			"_rev":        rev1,
		})
		if st != http.StatusConflict {
			t.Fatalf("expected 409 stale patch, got %d", st)
		}
		st, _, _ = doReqH(t, ts.URL, "PUT", "/appointments/"+key, patientID, map[string]any{
			"description": "stale",
		}, map[string]string{"If-Match": rev1})
		if st != http.StatusConflict {
			t.Fatalf("expected 409 stale put, got %d", st)
		}
		_, body := doReq(t, ts.URL, "GET", "/appointments/"+key, patientID, nil)
		if got := decodeDoc(t, body); got["description"] != "migraine" {
			t.Fatalf("stale writes must not change the doc, got %v", got)
		}
	}

	// 6) Assign sin grant => 403; admin otorga assign => 200
	assignBody := map[string]any{"doctor": "doctors/7", "datetime": "2026-03-01T10:30:00Z"}
	{
		st, _ := doReq(t, ts.URL, "PUT", "/appointments/"+key+"/assign", patientID, assignBody)
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 assign without grant, got %d", st)
		}
	}
	grantPermission(t, ts.URL, patientID, "appointments/"+key, permissions.AppointmentsAssign)
	{
		st, body := doReq(t, ts.URL, "PUT", "/appointments/"+key+"/assign", patientID, assignBody)
		if st != http.StatusOK {
			t.Fatalf("expected 200 assign, got %d body=%s", st, string(body))
		}
		got := decodeDoc(t, body)
		if got["doctor"] != "doctors/7" || got["datetime"] != "2026-03-01T10:30:00Z" || got["description"] != "migraine" {
			t.Fatalf("unexpected assigned doc %v", got)
		}

		st, _, _ = doReqH(t, ts.URL, "PUT", "/appointments/"+key+"/assign", patientID, assignBody,
			map[string]string{"If-Match": rev1})
		if st != http.StatusConflict {
			t.Fatalf("expected 409 assign with stale If-Match, got %d", st)
		}

		st, _ = doReq(t, ts.URL, "PUT", "/appointments/"+key+"/assign", patientID, map[string]any{"doctor": "doctors/7"})
		if st != http.StatusBadRequest {
			t.Fatalf("expected 400 assign without datetime, got %d", st)
		}
	}

	// 7) Mis permisos: view/edit/delete del creador + assign
	{
		st, body := doReq(t, ts.URL, "GET", "/me/permissions", patientID, nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 my permissions, got %d body=%s", st, string(body))
		}
		var grants []map[string]any
		_ = json.Unmarshal(body, &grants)
		onAppointment := 0
		for _, g := range grants {
			if g["resource"] == "appointments/"+key {
				onAppointment++
			}
		}
		if onAppointment != 4 {
			t.Fatalf("expected 4 grants on the appointment, got %d (%s)", onAppointment, string(body))
		}
	}

	// 8) Delete => 204, luego 404
	{
		st, _ := doReq(t, ts.URL, "DELETE", "/appointments/"+key, patientID, nil)
		if st != http.StatusNoContent {
			t.Fatalf("expected 204 delete, got %d", st)
		}
		st, _ = doReq(t, ts.URL, "GET", "/appointments/"+key, patientID, nil)
		if st != http.StatusNotFound {
			t.Fatalf("expected 404 after delete, got %d", st)
		}
	}
}

func TestHTTP_CreateAppointment_RequiresPatient(t *testing.T) {
	ts := newServer(t)

	st, body := doReq(t, ts.URL, "POST", "/appointments", "stranger", map[string]any{"description": "x"})
	if st != http.StatusForbidden {
		t.Fatalf("expected 403 for non patient, got %d", st)
	}
	if strings.TrimSpace(string(body)) != "Not a patient!" {
		t.Fatalf("unexpected body %q", string(body))
	}

	st, _ = doReq(t, ts.URL, "POST", "/appointments", "", map[string]any{"description": "x"})
	if st != http.StatusUnauthorized {
		t.Fatalf("expected 401 anonymous, got %d", st)
	}

	// registrarse dos veces => 409
	registerPatient(t, ts.URL, "p1", "south")
	st, _ = doReq(t, ts.URL, "POST", "/patients", "p1", map[string]any{"name": "again", "residential_area": "south"})
	if st != http.StatusConflict {
		t.Fatalf("expected 409 second registration, got %d", st)
	}
	st, _ = doReq(t, ts.URL, "GET", "/patients/p1", "p1", nil)
	if st != http.StatusOK {
		t.Fatalf("expected 200 own patient record, got %d", st)
	}
	st, _ = doReq(t, ts.URL, "GET", "/patients/p1", "stranger", nil)
	if st != http.StatusForbidden {
		t.Fatalf("expected 403 foreign patient record, got %d", st)
	}
}

func TestHTTP_HomeRemedies_PatchAndDuplicate(t *testing.T) {
	ts := newServer(t)
	userID := "u1"

	st, body := doReq(t, ts.URL, "POST", "/homeremedies", userID, map[string]any{
		"name":        "Ginger tea",
		"description": "warm",
		"ingredients": []string{"ginger", "water"},
	})
	if st != http.StatusCreated {
		t.Fatalf("expected 201 create remedy, got %d body=%s", st, string(body))
	}
	key, _ := decodeDoc(t, body)["_key"].(string)

	st, body = doReq(t, ts.URL, "PATCH", "/homeremedies/"+key, userID, map[string]any{"name": "X"})
	if st != http.StatusOK {
		t.Fatalf("expected 200 patch remedy, got %d body=%s", st, string(body))
	}
	got := decodeDoc(t, body)
	if got["name"] != "X" || got["description"] != "warm" {
		t.Fatalf("expected name updated and rest unchanged, got %v", got)
	}
	if ing, _ := got["ingredients"].([]any); len(ing) != 2 {
		t.Fatalf("expected ingredients unchanged, got %v", got["ingredients"])
	}

	st, _ = doReq(t, ts.URL, "POST", "/homeremedies", userID, map[string]any{"name": "X"})
	if st != http.StatusConflict {
		t.Fatalf("expected 409 duplicate name, got %d", st)
	}

	// lectura abierta
	st, _ = doReq(t, ts.URL, "GET", "/homeremedies", "", nil)
	if st != http.StatusOK {
		t.Fatalf("expected 200 anonymous list, got %d", st)
	}
	st, _ = doReq(t, ts.URL, "GET", "/homeremedies/"+key, "", nil)
	if st != http.StatusOK {
		t.Fatalf("expected 200 anonymous detail, got %d", st)
	}
}

func TestHTTP_IsAppointed_DeleteTwice(t *testing.T) {
	ts := newServer(t)

	edge := map[string]any{"_from": "patients/u1", "_to": "appointments/1"}
	st, body := doReq(t, ts.URL, "POST", "/isappointed", adminID, edge)
	if st != http.StatusCreated {
		t.Fatalf("expected 201 create edge, got %d body=%s", st, string(body))
	}
	key, _ := decodeDoc(t, body)["_key"].(string)

	st, _ = doReq(t, ts.URL, "POST", "/isappointed", adminID, edge)
	if st != http.StatusConflict {
		t.Fatalf("expected 409 duplicate pair, got %d", st)
	}
	st, _ = doReq(t, ts.URL, "POST", "/isappointed", adminID, map[string]any{"_from": "patients/u1"})
	if st != http.StatusBadRequest {
		t.Fatalf("expected 400 edge without _to, got %d", st)
	}

	// sin appointments:delete global => 403
	st, _ = doReq(t, ts.URL, "DELETE", "/isappointed/"+key, "u1", nil)
	if st != http.StatusForbidden {
		t.Fatalf("expected 403 delete without grant, got %d", st)
	}

	st, _ = doReq(t, ts.URL, "DELETE", "/isappointed/"+key, adminID, nil)
	if st != http.StatusNoContent {
		t.Fatalf("expected 204 delete edge, got %d", st)
	}
	st, _ = doReq(t, ts.URL, "DELETE", "/isappointed/"+key, adminID, nil)
	if st != http.StatusNotFound {
		t.Fatalf("expected 404 second delete, got %d", st)
	}
}

func TestHTTP_GrantPermission_RequiresGrantPermission(t *testing.T) {
	ts := newServer(t)

	st, _ := doReq(t, ts.URL, "POST", "/permissions", "u1", map[string]any{
		"subject": "u1", "action": "appointments:delete",
	})
	if st != http.StatusForbidden {
		t.Fatalf("expected 403 non-admin grant, got %d", st)
	}

	st, _ = doReq(t, ts.URL, "POST", "/permissions", adminID, map[string]any{
		"subject": "u1", "action": "appointments:unknown",
	})
	if st != http.StatusBadRequest {
		t.Fatalf("expected 400 unknown action, got %d", st)
	}

	st, _ = doReq(t, ts.URL, "POST", "/permissions", adminID, map[string]any{"action": "appointments:delete"})
	if st != http.StatusBadRequest {
		t.Fatalf("expected 400 missing subject, got %d", st)
	}

	st, _ = doReq(t, ts.URL, "GET", "/health", "", nil)
	if st != http.StatusOK {
		t.Fatalf("expected 200 health, got %d", st)
	}
}

func TestHTTP_CreateIgnoresClientKey_ReusedKeyStaysPrivate(t *testing.T) {
	ts := newServer(t)
	registerPatient(t, ts.URL, "alice", "north")
	registerPatient(t, ts.URL, "bob", "south")

	st, hdr, body := doReqH(t, ts.URL, "POST", "/appointments", "alice", map[string]any{
		"_key":        "k1",
		"description": "headache",
	}, nil)
	if st != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", st, string(body))
	}
	aliceKey, _ := decodeDoc(t, body)["_key"].(string)
	if aliceKey == "" || aliceKey == "k1" {
		t.Fatalf("key must be server-assigned, got %q", aliceKey)
	}
	if want := ts.URL + "/appointments/" + aliceKey; hdr.Get("Location") != want {
		t.Fatalf("expected Location %q, got %q", want, hdr.Get("Location"))
	}

	st, _ = doReq(t, ts.URL, "DELETE", "/appointments/"+aliceKey, "alice", nil)
	if st != http.StatusNoContent {
		t.Fatalf("expected 204 delete, got %d", st)
	}

	// bob intenta ocupar la key que quedó libre
	st, body = doReq(t, ts.URL, "POST", "/appointments", "bob", map[string]any{
		"_key":        aliceKey,
		"description": "fever",
	})
	if st != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", st, string(body))
	}
	bobKey, _ := decodeDoc(t, body)["_key"].(string)
	if bobKey == aliceKey {
		t.Fatalf("client key reused: %q", bobKey)
	}

	st, _ = doReq(t, ts.URL, "GET", "/appointments/"+bobKey, "alice", nil)
	if st != http.StatusForbidden {
		t.Fatalf("expected 403 for alice on bob's appointment, got %d", st)
	}
	st, _ = doReq(t, ts.URL, "GET", "/appointments/"+aliceKey, "alice", nil)
	if st != http.StatusNotFound {
		t.Fatalf("expected 404 for deleted appointment, got %d", st)
	}

	// una key con "/" tampoco rompe el Location
	st, hdr, body = doReqH(t, ts.URL, "POST", "/appointments", "bob", map[string]any{
		"_key":        "a/b",
		"description": "cough",
	}, nil)
	if st != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", st, string(body))
	}
	st, _ = doReq(t, ts.URL, "GET", strings.TrimPrefix(hdr.Get("Location"), ts.URL), "bob", nil)
	if st != http.StatusOK {
		t.Fatalf("expected 200 on Location, got %d", st)
	}
}

func TestHTTP_EditCannotReassignAppointment(t *testing.T) {
	ts := newServer(t)
	registerPatient(t, ts.URL, "alice", "north")

	st, body := doReq(t, ts.URL, "POST", "/appointments", "alice", map[string]any{"description": "headache"})
	if st != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", st, string(body))
	}
	key, _ := decodeDoc(t, body)["_key"].(string)

	st, _ = doReq(t, ts.URL, "PUT", "/appointments/"+key, "alice", map[string]any{
		"description": "headache",
		"patient":     "patients/bob",
		"status":      "assigned",
		"doctor":      "doctors/me",
	})
	if st != http.StatusForbidden {
		t.Fatalf("expected 403 assigning through PUT, got %d", st)
	}
	st, _ = doReq(t, ts.URL, "PATCH", "/appointments/"+key, "alice", map[string]any{"doctor": "doctors/me"})
	if st != http.StatusForbidden {
		t.Fatalf("expected 403 assigning through PATCH, got %d", st)
	}

	st, body = doReq(t, ts.URL, "PUT", "/appointments/"+key, "alice", map[string]any{
		"description": "migraine",
		"patient":     "patients/bob",
		"area":        "south",
		"status":      "requested",
	})
	if st != http.StatusOK {
		t.Fatalf("expected 200 put, got %d body=%s", st, string(body))
	}
	got := decodeDoc(t, body)
	if got["description"] != "migraine" || got["patient"] != "patients/alice" || got["area"] != "north" {
		t.Fatalf("derived fields must survive PUT, got %v", got)
	}
}

func registerPatient(t *testing.T, baseURL, userID, area string) {
	t.Helper()

	st, body := doReq(t, baseURL, "POST", "/patients", userID, map[string]any{
		"name":             "Patient " + userID,
		"residential_area": area,
	})
	if st != http.StatusCreated {
		t.Fatalf("expected 201 register patient, got %d body=%s", st, string(body))
	}
}

func grantPermission(t *testing.T, baseURL, subject, resource string, action permissions.Action) {
	t.Helper()

	st, body := doReq(t, baseURL, "POST", "/permissions", adminID, map[string]any{
		"subject":  subject,
		"resource": resource,
		"action":   string(action),
	})
	if st != http.StatusCreated {
		t.Fatalf("expected 201 grant, got %d body=%s", st, string(body))
	}
}

func decodeDoc(t *testing.T, body []byte) map[string]any {
	t.Helper()

	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v body=%s", err, string(body))
	}
	return out
}

func doReq(t *testing.T, baseURL, method, path, userID string, payload any) (int, []byte) {
	t.Helper()
	st, _, body := doReqH(t, baseURL, method, path, userID, payload, nil)
	return st, body
}

func doReqH(t *testing.T, baseURL, method, path, userID string, payload any, headers map[string]string) (int, http.Header, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, baseURL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-Debug-User-ID", userID)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()

	b, _ := io.ReadAll(res.Body)
	return res.StatusCode, res.Header, b
}
