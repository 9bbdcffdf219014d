package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/gestureflow/internal/action"
	"github.com/ayusman/gestureflow/internal/mapping"
	"github.com/ayusman/gestureflow/internal/profile"
)

func newProfileHandler(t *testing.T) (*ProfileHandler, *profile.Service) {
	t.Helper()
	s := newTestStore(t)
	svc := profile.NewService(profile.DefaultConfig(), s, mapping.NewEngine(nil),
		action.NewValidator(action.DefaultLimits()), nil)
	_, err := svc.Load()
	require.NoError(t, err)
	return NewProfileHandler(svc), svc
}

func TestProfileHandler_CRUD(t *testing.T) {
	h, svc := newProfileHandler(t)

	rec := serve(h, http.MethodPost, "/api/profiles", `{"name": "Games", "description": "fps"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created profileResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, "Games", created.Name)
	assert.False(t, created.Active)
	assert.Empty(t, created.Mappings)

	rec = serve(h, http.MethodPut, "/api/profiles/"+created.ID, `{"name": "Gaming", "description": "rts"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(h, http.MethodGet, "/api/profiles/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got profileResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "Gaming", got.Name)
	assert.Equal(t, "rts", got.Description)

	rec = serve(h, http.MethodGet, "/api/profiles", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed listProfilesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	assert.Len(t, listed.Profiles, 2)

	rec = serve(h, http.MethodDelete, "/api/profiles/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(h, http.MethodGet, "/api/profiles/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The default profile is protected.
	rec = serve(h, http.MethodDelete, "/api/profiles/"+svc.Active().ID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestProfileHandler_Errors(t *testing.T) {
	h, svc := newProfileHandler(t)
	def := svc.Active().ID

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"invalid json", http.MethodPost, "/api/profiles", "{", http.StatusBadRequest},
		{"empty name", http.MethodPost, "/api/profiles", `{"name": "  "}`, http.StatusBadRequest},
		{"duplicate name", http.MethodPost, "/api/profiles", `{"name": "Default"}`, http.StatusConflict},
		{"update missing", http.MethodPut, "/api/profiles/missing", `{"name": "x"}`, http.StatusNotFound},
		{"activate missing", http.MethodPost, "/api/profiles/missing/activate", "", http.StatusNotFound},
		{"activate wrong method", http.MethodGet, "/api/profiles/" + def + "/activate", "", http.StatusMethodNotAllowed},
		{"export missing", http.MethodGet, "/api/profiles/missing/export", "", http.StatusNotFound},
		{"import garbage", http.MethodPost, "/api/profiles/import", "version: [", http.StatusBadRequest},
		{"import wrong method", http.MethodGet, "/api/profiles/import", "", http.StatusMethodNotAllowed},
		{"mapping on missing profile", http.MethodPut, "/api/profiles/missing/mappings/fist", `{"action": {}}`, http.StatusNotFound},
		{"remove missing mapping", http.MethodDelete, "/api/profiles/" + def + "/mappings/fist", "", http.StatusNotFound},
		{"unknown subresource", http.MethodGet, "/api/profiles/" + def + "/other", "", http.StatusNotFound},
		{"collection wrong method", http.MethodDelete, "/api/profiles", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestProfileHandler_Mappings(t *testing.T) {
	h, svc := newProfileHandler(t)
	id := svc.Active().ID

	rec := serve(h, http.MethodPut, "/api/profiles/"+id+"/mappings/fist",
		`{"action": {"steps": [{"type": "key", "key": {"keys": ["cmd", "c"]}}, {"type": "wait", "wait": {"duration_ms": 200}}, {"type": "key", "key": {"keys": ["cmd", "v"]}}]}, "priority": 2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var e mapping.Entry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&e))
	assert.Equal(t, "fist", e.GestureID)
	assert.True(t, e.Enabled)
	assert.Equal(t, 2, e.Priority)
	assert.Len(t, e.Action.Steps, 3)

	// Editing the active profile republishes the snapshot.
	got, ok := svc.Active().Entry("fist")
	require.True(t, ok)
	assert.Equal(t, 2, got.Priority)

	// Replacing keeps one entry per gesture.
	rec = serve(h, http.MethodPut, "/api/profiles/"+id+"/mappings/fist",
		`{"action": {"steps": [{"type": "key", "key": {"keys": ["cmd", "z"]}}]}, "enabled": false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.Active().Len())
	got, _ = svc.Active().Entry("fist")
	assert.False(t, got.Enabled)

	// Validation errors surface as 400.
	rec = serve(h, http.MethodPut, "/api/profiles/"+id+"/mappings/fist",
		`{"action": {"steps": [{"type": "key", "key": {"keys": ["cmd", "q"]}}]}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodDelete, "/api/profiles/"+id+"/mappings/Fist", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, svc.Active().Has("fist"))
}

func TestProfileHandler_Stats(t *testing.T) {
	h, svc := newProfileHandler(t)
	id := svc.Active().ID

	_, err := svc.SetMapping(id, mapping.Entry{GestureID: "fist", Action: action.Single(action.Key("cmd", "c")), Enabled: true})
	require.NoError(t, err)
	_, err = svc.SetMapping(id, mapping.Entry{GestureID: "open_palm", Action: action.Single(action.Launch("calc"))})
	require.NoError(t, err)
	svc.RecordUse(id, "fist", time.Now())
	svc.RecordUse(id, "fist", time.Now())
	svc.RecordUse(id, "open_palm", time.Now())

	rec := serve(h, http.MethodGet, "/api/profiles/"+id+"/stats", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var st mapping.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.Equal(t, id, st.ProfileID)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.Enabled)
	assert.Equal(t, 3, st.TotalUses)
	assert.Equal(t, map[string]int{"key": 1, "launch": 1}, st.ActionTypes)
	require.Len(t, st.MostUsed, 2)
	assert.Equal(t, "fist", st.MostUsed[0].GestureID)
	assert.Equal(t, 2, st.MostUsed[0].UseCount)

	rec = serve(h, http.MethodGet, "/api/profiles/missing/stats", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = serve(h, http.MethodPost, "/api/profiles/"+id+"/stats", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestProfileHandler_ActivateAndDefault(t *testing.T) {
	h, svc := newProfileHandler(t)
	def := svc.Active().ID

	rec := serve(h, http.MethodPost, "/api/profiles", `{"name": "Slides"}`)
	var created profileResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	rec = serve(h, http.MethodPost, "/api/profiles/"+created.ID+"/activate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var activated profileResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&activated))
	assert.True(t, activated.Active)
	assert.Equal(t, created.ID, svc.Active().ID)

	rec = serve(h, http.MethodPost, "/api/profiles/"+created.ID+"/default", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var defaulted profileResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&defaulted))
	assert.True(t, defaulted.IsDefault)

	// The old default can now be removed once it is no longer active.
	rec = serve(h, http.MethodDelete, "/api/profiles/"+def, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestProfileHandler_ExportImport(t *testing.T) {
	h, svc := newProfileHandler(t)
	id := svc.Active().ID

	rec := serve(h, http.MethodPut, "/api/profiles/"+id+"/mappings/open_palm",
		`{"action": {"steps": [{"type": "launch", "launch": {"path": "/Applications/Safari.app"}}]}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(h, http.MethodGet, "/api/profiles/"+id+"/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	doc := rec.Body.String()
	assert.Contains(t, doc, "fingerprint:")
	assert.Contains(t, doc, "open_palm")

	rec = serve(h, http.MethodPost, "/api/profiles/import", doc)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var imported profileResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&imported))
	assert.Equal(t, "Default_1", imported.Name)
	assert.Len(t, imported.Mappings, 1)
	assert.False(t, imported.Active)

	// A tampered document fails the fingerprint check.
	tampered := strings.Replace(doc, "Safari", "Terminal", 1)
	rec = serve(h, http.MethodPost, "/api/profiles/import", tampered)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
