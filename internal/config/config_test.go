package config

import (
	"testing"

	"proteinshake/pkg/graph"
)

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(`
builds:
  - kind: scop
    limit: 100
    graphs:
      - mode: radius
        eps: 8
      - mode: knn
        k: 5
        weighted: true
    similarity: true
  - name: pdbbind-refined
    kind: pdbbind
    use_precomputed: true
`))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(m.Builds) != 2 {
		t.Fatalf("expected 2 builds, got %d", len(m.Builds))
	}
	scop := m.Builds[0]
	if scop.DatasetName() != "scop" || scop.Limit != 100 || !scop.Similarity {
		t.Fatalf("unexpected build %+v", scop)
	}
	if len(scop.Graphs) != 2 || scop.Graphs[1] != graph.KNNPolicy(5, true) {
		t.Fatalf("unexpected graph policies %+v", scop.Graphs)
	}
	if m.Builds[1].DatasetName() != "pdbbind-refined" || !m.Builds[1].UsePrecomputed {
		t.Fatalf("unexpected build %+v", m.Builds[1])
	}
}

func TestParseManifest_Invalid(t *testing.T) {
	tests := map[string]string{
		"unknown kind":   "builds:\n  - kind: nope\n",
		"missing kind":   "builds:\n  - limit: 3\n",
		"bad policy":     "builds:\n  - kind: scop\n    graphs:\n      - mode: radius\n        eps: -1\n",
		"negative limit": "builds:\n  - kind: scop\n    limit: -1\n",
		"not yaml":       "builds: [",
	}
	for name, doc := range tests {
		if _, err := ParseManifest([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("DATA_ROOT", "/tmp/ds")
	t.Setenv("PARALLEL", "4")
	t.Setenv("PORT", "9000")
	t.Setenv("RABBITMQ_HOST", "mq")

	c, err := Load()
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if c.DataRoot != "/tmp/ds" || c.Parallel != 4 || c.Port != "9000" {
		t.Fatalf("unexpected config %+v", c)
	}
	if got := c.RabbitMQ.URL(); got != "amqp://:@mq:5672/" {
		t.Fatalf("unexpected amqp url %q", got)
	}
	if c.S3.Enabled() {
		t.Fatal("expected s3 to be disabled without a bucket")
	}

	t.Setenv("PORT", "http")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for non numeric port")
	}
}
