package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/gestureflow/internal/action"
	"github.com/ayusman/gestureflow/internal/app"
	"github.com/ayusman/gestureflow/internal/classifier"
	"github.com/ayusman/gestureflow/internal/detector"
	"github.com/ayusman/gestureflow/internal/macro"
	"github.com/ayusman/gestureflow/internal/recognition"
)

type stepLog struct {
	mu    sync.Mutex
	steps []string
}

func (l *stepLog) Execute(ctx context.Context, step action.Step) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, step.String())
	return nil
}

func (l *stepLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.steps)
}

func do(t *testing.T, client *http.Client, method, url string, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestAPI_ProfileWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	s, svc := newTestService(t)
	exec := &stepLog{}
	a, err := app.New(app.Config{
		Recognition: recognition.DefaultConfig(),
		Scheduler:   macro.DefaultConfig(),
		Classifier:  classifier.NewRuleClassifier(),
		Executor:    exec,
		Profiles:    svc,
	})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}

	srv := New(Config{Store: s, Profiles: svc, Control: a})
	ts := httptest.NewServer(srv)
	defer ts.Close()
	client := ts.Client()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// 1. Create a profile
	resp := do(t, client, http.MethodPost, ts.URL+"/api/profiles", `{"name": "Editing"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /api/profiles status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	var created struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Active bool   `json:"active"`
	}
	decode(t, resp, &created)
	if created.Name != "Editing" || created.Active {
		t.Errorf("created = %+v", created)
	}

	// 2. Map a gesture
	body := `{"action": {"steps": [{"type": "key", "key": {"keys": ["cmd", "c"]}}], "loop_count": 1}}`
	resp = do(t, client, http.MethodPut, ts.URL+"/api/profiles/"+created.ID+"/mappings/Thumbs%20Up", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT mapping status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var entry struct {
		GestureID string `json:"gesture_id"`
		Enabled   bool   `json:"enabled"`
	}
	decode(t, resp, &entry)
	if entry.GestureID != "thumbs_up" || !entry.Enabled {
		t.Errorf("entry = %+v", entry)
	}

	// 3. An invalid action is rejected
	resp = do(t, client, http.MethodPut, ts.URL+"/api/profiles/"+created.ID+"/mappings/fist", `{"action": {"steps": []}}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid mapping status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	// 4. Activate it and trigger the gesture
	resp = do(t, client, http.MethodPost, ts.URL+"/api/profiles/"+created.ID+"/activate", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if svc.Active().ID != created.ID {
		t.Fatalf("active profile = %s, want %s", svc.Active().ID, created.ID)
	}

	resp = do(t, client, http.MethodPost, ts.URL+"/api/plans", `{"gesture_id": "thumbs_up"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("trigger status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	deadline := time.Now().Add(2 * time.Second)
	for exec.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if exec.Len() != 1 {
		t.Fatalf("executed %d steps, want 1", exec.Len())
	}

	// 5. The active profile cannot be deleted
	resp = do(t, client, http.MethodDelete, ts.URL+"/api/profiles/"+created.ID, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("delete active status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}

	// 6. Export and re-import
	resp = do(t, client, http.MethodGet, ts.URL+"/api/profiles/"+created.ID+"/export", "")
	doc, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	resp = do(t, client, http.MethodPost, ts.URL+"/api/profiles/import", string(doc))
	var imported struct {
		Name     string            `json:"name"`
		Mappings []json.RawMessage `json:"mappings"`
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("import status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	decode(t, resp, &imported)
	if imported.Name != "Editing_1" || len(imported.Mappings) != 1 {
		t.Errorf("imported = %s with %d mappings", imported.Name, len(imported.Mappings))
	}

	// 7. List shows all three with the active flag
	resp = do(t, client, http.MethodGet, ts.URL+"/api/profiles", "")
	var listed struct {
		Profiles []struct {
			ID     string `json:"id"`
			Active bool   `json:"active"`
		} `json:"profiles"`
	}
	decode(t, resp, &listed)
	if len(listed.Profiles) != 3 {
		t.Fatalf("len(profiles) = %d, want 3", len(listed.Profiles))
	}
	for _, p := range listed.Profiles {
		if p.Active != (p.ID == created.ID) {
			t.Errorf("profile %s active = %v", p.ID, p.Active)
		}
	}

	// 8. Remove the mapping
	resp = do(t, client, http.MethodDelete, ts.URL+"/api/profiles/"+created.ID+"/mappings/thumbs_up", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("remove mapping status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if svc.Active().Has("thumbs_up") {
		t.Error("active snapshot still has the removed mapping")
	}
}

func TestAPI_GestureTraining(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	s, _ := newTestService(t)
	templates := classifier.NewTemplateClassifier(0.6)
	srv := New(Config{Store: s, Templates: templates})
	ts := httptest.NewServer(srv)
	defer ts.Close()
	client := ts.Client()

	resp := do(t, client, http.MethodPost, ts.URL+"/api/gestures", `{"name": "Rock On"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /api/gestures status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	var created struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	decode(t, resp, &created)
	if created.Name != "rock_on" {
		t.Errorf("created name = %s, want rock_on", created.Name)
	}

	hand := detector.PeaceSignLandmarks()
	upload := func(n int) samplesResult {
		vectors := make([][]float64, n)
		for i := range vectors {
			vectors[i] = hand.Vector()
		}
		raw, _ := json.Marshal(map[string]any{"samples": vectors})
		resp := do(t, client, http.MethodPost, ts.URL+"/api/gestures/"+created.ID+"/samples", string(raw))
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("POST samples status = %d, want %d", resp.StatusCode, http.StatusCreated)
		}
		var res samplesResult
		decode(t, resp, &res)
		return res
	}

	// Too few samples leave the gesture untrained.
	if res := upload(2); res.Trained || res.Samples != 2 {
		t.Errorf("after 2 samples: %+v", res)
	}
	if templates.Len() != 0 {
		t.Errorf("expected no templates, got %d", templates.Len())
	}

	if res := upload(4); !res.Trained || res.Samples != 6 {
		t.Errorf("after 6 samples: %+v", res)
	}
	if got := templates.Labels(); len(got) != 1 || got[0] != "rock_on" {
		t.Errorf("template labels = %v, want [rock_on]", got)
	}

	// A predefined name is refused.
	resp = do(t, client, http.MethodPost, ts.URL+"/api/gestures", `{"name": "fist"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("predefined name status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}

	// Deleting drops the template.
	resp = do(t, client, http.MethodDelete, ts.URL+"/api/gestures/"+created.ID, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if templates.Len() != 0 {
		t.Errorf("expected template removed, got %v", templates.Labels())
	}
}

type samplesResult struct {
	Samples int  `json:"samples"`
	Trained bool `json:"trained"`
}
