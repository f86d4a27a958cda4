package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proteinshake/internal/queue"
	mid "proteinshake/internal/server/middleware"
	"proteinshake/internal/util"
	"proteinshake/pkg/dataset"
	"proteinshake/pkg/graph"
	"proteinshake/pkg/protein"
	"proteinshake/pkg/store"
)

const (
	masterKey = "master-key"
	jwtSecret = "test-secret"
)

type fakeIndex struct {
	records map[string]store.RecordSummary
	offset  int
	limit   int
	k       int
}

func (f *fakeIndex) SaveRecords(context.Context, string, []*protein.Record) error { return nil }

func (f *fakeIndex) GetRecord(_ context.Context, dataset, id string) (*store.RecordSummary, error) {
	r, ok := f.records[dataset+"/"+id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (f *fakeIndex) ListRecords(_ context.Context, dataset string, offset, limit int) ([]store.RecordSummary, error) {
	f.offset, f.limit = offset, limit
	out := []store.RecordSummary{}
	for _, r := range f.records {
		if r.Dataset == dataset {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeIndex) Nearest(_ context.Context, dataset, sequence string, k int) ([]store.Hit, error) {
	f.k = k
	return []store.Hit{{RecordSummary: store.RecordSummary{Dataset: dataset, ID: "1abc", Sequence: sequence}, Distance: 0.1}}, nil
}

func (f *fakeIndex) DeleteDataset(context.Context, string) error { return nil }

type fakeBuilds struct {
	mu     sync.Mutex
	builds map[string]*store.Build
}

func newFakeBuilds() *fakeBuilds {
	return &fakeBuilds{builds: map[string]*store.Build{}}
}

func (f *fakeBuilds) CreateBuild(_ context.Context, b store.Build) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds[b.ID] = &b
	return nil
}

func (f *fakeBuilds) UpdateBuildProgress(context.Context, string, util.BatchProgress) error {
	return nil
}

func (f *fakeBuilds) FinishBuild(_ context.Context, id string, status store.BuildStatus, records, failed int, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.builds[id]
	if !ok {
		return store.ErrBuildNotFound
	}
	b.Status, b.Records, b.Failed, b.Message = status, records, failed, message
	return nil
}

func (f *fakeBuilds) GetBuild(_ context.Context, id string) (*store.Build, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.builds[id]
	if !ok {
		return nil, store.ErrBuildNotFound
	}
	cp := *b
	return &cp, nil
}

type fakePublisher struct {
	err  error
	sent []amqp091.Publishing
	keys []string
}

func (p *fakePublisher) Publish(_, key string, _, _ bool, msg amqp091.Publishing) error {
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	p.sent = append(p.sent, msg)
	return nil
}

type fakeLinker struct{}

func (fakeLinker) DownloadLink(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://objects.test/" + key, nil
}

func newTestApp(t *testing.T) *mid.App {
	t.Helper()
	return &mid.App{
		DataRoot: t.TempDir(),
		Index: &fakeIndex{records: map[string]store.RecordSummary{
			"scop/1abc": {Dataset: "scop", ID: "1abc", Sequence: "MKVA", Length: 4, Chains: []string{"A"}},
		}},
		Builds:       newFakeBuilds(),
		Queue:        &fakePublisher{},
		Artifacts:    fakeLinker{},
		MasterAPIKey: masterKey,
		Keyfunc: func(*jwt.Token) (any, error) {
			return []byte(jwtSecret), nil
		},
	}
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return s
}

func do(t *testing.T, app *mid.App, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	New(app).ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestApp(t), http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestAuth(t *testing.T) {
	app := newTestApp(t)

	t.Run("missing token", func(t *testing.T) {
		rec := do(t, app, http.MethodGet, "/api/datasets", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bad signature", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": "u1"}).SignedString([]byte("other"))
		require.NoError(t, err)
		rec := do(t, app, http.MethodGet, "/api/datasets", token, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing user id", func(t *testing.T) {
		token := signToken(t, jwt.MapClaims{"permissions": []string{"dataset.view"}})
		rec := do(t, app, http.MethodGet, "/api/datasets", token, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("master key", func(t *testing.T) {
		rec := do(t, app, http.MethodGet, "/api/datasets", masterKey, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string][]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, dataset.Kinds(), body["kinds"])
	})

	t.Run("jwt with permission", func(t *testing.T) {
		token := signToken(t, jwt.MapClaims{"id": float64(7), "permissions": []string{"dataset.view"}})
		rec := do(t, app, http.MethodGet, "/api/datasets", token, "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("jwt without permission", func(t *testing.T) {
		token := signToken(t, jwt.MapClaims{"id": "u1", "permissions": []string{"dataset.view"}})
		rec := do(t, app, http.MethodPost, "/api/builds", token, `{"kind":"scop"}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin role without explicit permissions", func(t *testing.T) {
		token := signToken(t, jwt.MapClaims{"id": "u1", "role": "admin"})
		rec := do(t, app, http.MethodGet, "/api/builds/sGvgBXbBcVCjBIKCLS2Os", token, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = do(t, app, http.MethodGet, "/api/builds/nope", token, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCreateBuild(t *testing.T) {
	app := newTestApp(t)
	pub := app.Queue.(*fakePublisher)
	builds := app.Builds.(*fakeBuilds)

	rec := do(t, app, http.MethodPost, "/api/builds", masterKey,
		`{"name":"scop-small","kind":"scop","limit":10,"graphs":[{"mode":"radius","eps":8}]}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp struct {
		Build store.Build `json:"build"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "scop-small", resp.Build.Dataset)
	assert.Equal(t, store.BuildPending, resp.Build.Status)

	require.Len(t, pub.sent, 1)
	assert.Equal(t, queue.BuildQueue, pub.keys[0])
	msg, err := queue.ParseBuildMsg(pub.sent[0].Body)
	require.NoError(t, err)
	assert.Equal(t, resp.Build.ID, msg.BuildID)
	assert.Equal(t, 10, msg.Build.Limit)
	assert.Equal(t, "radius-eps8", msg.Build.Graphs[0].Key())

	got := do(t, app, http.MethodGet, "/api/builds/"+resp.Build.ID, masterKey, "")
	require.Equal(t, http.StatusOK, got.Code)
	assert.Contains(t, builds.builds, resp.Build.ID)
}

func TestCreateBuild_Rejected(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing kind", `{"name":"x"}`},
		{"unknown kind", `{"kind":"nope"}`},
		{"bad policy", `{"kind":"scop","graphs":[{"mode":"knn","k":0}]}`},
		{"negative limit", `{"kind":"scop","limit":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t)
			rec := do(t, app, http.MethodPost, "/api/builds", masterKey, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, app.Builds.(*fakeBuilds).builds)
			assert.Empty(t, app.Queue.(*fakePublisher).sent)
		})
	}
}

func TestCreateBuild_EnqueueFailure(t *testing.T) {
	app := newTestApp(t)
	app.Queue = &fakePublisher{err: errors.New("channel closed")}

	rec := do(t, app, http.MethodPost, "/api/builds", masterKey, `{"kind":"scop"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	builds := app.Builds.(*fakeBuilds).builds
	require.Len(t, builds, 1)
	for _, b := range builds {
		assert.Equal(t, store.BuildFailed, b.Status)
	}
}

func TestCreateBuild_NotConfigured(t *testing.T) {
	app := newTestApp(t)
	app.Queue = nil

	rec := do(t, app, http.MethodPost, "/api/builds", masterKey, `{"kind":"scop"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecords(t *testing.T) {
	app := newTestApp(t)
	index := app.Index.(*fakeIndex)

	t.Run("list clamps limit", func(t *testing.T) {
		rec := do(t, app, http.MethodGet, "/api/datasets/scop/records?offset=5&limit=5000", masterKey, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 5, index.offset)
		assert.Equal(t, 1000, index.limit)
	})

	t.Run("invalid offset", func(t *testing.T) {
		rec := do(t, app, http.MethodGet, "/api/datasets/scop/records?offset=-1", masterKey, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("get record", func(t *testing.T) {
		rec := do(t, app, http.MethodGet, "/api/datasets/scop/records/1abc", masterKey, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var r store.RecordSummary
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
		assert.Equal(t, "MKVA", r.Sequence)
	})

	t.Run("missing record", func(t *testing.T) {
		rec := do(t, app, http.MethodGet, "/api/datasets/scop/records/9zzz", masterKey, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("search default k", func(t *testing.T) {
		rec := do(t, app, http.MethodPost, "/api/datasets/scop/search", masterKey, `{"sequence":"MKVA"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 10, index.k)
		var hits []store.Hit
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hits))
		require.Len(t, hits, 1)
		assert.Equal(t, "1abc", hits[0].ID)
	})

	t.Run("search rejects non letters", func(t *testing.T) {
		rec := do(t, app, http.MethodPost, "/api/datasets/scop/search", masterKey, `{"sequence":"MK-VA"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("index not configured", func(t *testing.T) {
		bare := newTestApp(t)
		bare.Index = nil
		rec := do(t, bare, http.MethodGet, "/api/datasets/scop/records", masterKey, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestGraphs(t *testing.T) {
	app := newTestApp(t)
	policy := graph.RadiusPolicy(8, false)
	layout := dataset.NewLayout(filepath.Join(app.DataRoot, "scop"))
	graphs := []*graph.Graph{{
		ID:     "1abc",
		Nodes:  [][]float32{{1}, {0}},
		Edges:  []graph.Edge{{Source: 0, Target: 1, Weight: 1}, {Source: 1, Target: 0, Weight: 1}},
		Policy: policy,
	}}
	require.NoError(t, protein.SaveCollection(layout.GraphsPath("scop", policy), protein.KindGraphs, "scop", graphs))

	rec := do(t, app, http.MethodGet, "/api/datasets/scop/graphs?mode=radius&eps=8", masterKey, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Policy string `json:"policy"`
		Graphs []struct {
			ID    string `json:"id"`
			Nodes int    `json:"nodes"`
			Edges int    `json:"edges"`
		} `json:"graphs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "radius-eps8", body.Policy)
	require.Len(t, body.Graphs, 1)
	assert.Equal(t, 2, body.Graphs[0].Nodes)
	assert.Equal(t, 2, body.Graphs[0].Edges)

	rec = do(t, app, http.MethodGet, "/api/datasets/scop/graphs?mode=knn&k=3", masterKey, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, app, http.MethodGet, "/api/datasets/scop/graphs?mode=radius", masterKey, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for _, name := range []string{"..", "."} {
		rec = do(t, app, http.MethodGet, "/api/datasets/"+name+"/graphs?mode=radius&eps=8", masterKey, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestArtifact(t *testing.T) {
	rec := do(t, newTestApp(t), http.MethodGet, "/api/datasets/scop/artifact", masterKey, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "https://objects.test/"+dataset.ArtifactKey("scop"), body["url"])
}
