package validate

import (
	"strings"
	"testing"
)

const validManifest = `{
  "schema_id": "plumb.run.manifest",
  "schema_version": "1.0.0",
  "run_id": "run-001",
  "revision": 1,
  "status": "created",
  "stage": {
    "current": "init",
    "started_at": "2026-01-02T03:04:05Z",
    "last_progress_at": "2026-01-02T03:04:05Z",
    "history": []
  },
  "limits": {"max_agents_per_wave": 6, "max_summary_kb": 256, "max_review_iterations": 3},
  "artifacts": {"root": "/runs/run-001", "paths": {"manifest": "state/manifest.json"}},
  "failures": []
}`

func TestValidateManifestAccepts(t *testing.T) {
	if err := ValidateJSON(DocManifest, []byte(validManifest)); err != nil {
		t.Fatalf("valid manifest rejected: %v", err)
	}
}

func TestValidateManifestRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(string) string
	}{
		{"zero revision", func(doc string) string {
			return strings.Replace(doc, `"revision": 1`, `"revision": 0`, 1)
		}},
		{"unknown status", func(doc string) string {
			return strings.Replace(doc, `"status": "created"`, `"status": "paused"`, 1)
		}},
		{"run id with slash", func(doc string) string {
			return strings.Replace(doc, `"run_id": "run-001"`, `"run_id": "run/001"`, 1)
		}},
		{"extra top-level key", func(doc string) string {
			return strings.Replace(doc, `"failures": []`, `"failures": [], "extra": true`, 1)
		}},
		{"wrong schema id", func(doc string) string {
			return strings.Replace(doc, `"schema_id": "plumb.run.manifest"`, `"schema_id": "plumb.run.other"`, 1)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateJSON(DocManifest, []byte(tc.mutate(validManifest))); err == nil {
				t.Error("invalid manifest accepted")
			}
		})
	}
}

func TestValidateGatesRequiresAllSixGates(t *testing.T) {
	doc := `{
	  "schema_id": "plumb.run.gates",
	  "schema_version": "1.0.0",
	  "run_id": "run-001",
	  "gates": {
	    "A": {"status": "not_run"},
	    "B": {"status": "not_run"},
	    "C": {"status": "not_run"},
	    "D": {"status": "not_run"},
	    "E": {"status": "pass", "metrics": {"uncited_numeric_claims": 0}, "warnings": []}
	  }
	}`
	if err := ValidateJSON(DocGates, []byte(doc)); err == nil {
		t.Error("gates document missing gate F was accepted")
	}
}

func TestValidateJSONLCitations(t *testing.T) {
	good := strings.Join([]string{
		`{"cid":"src_a","status":"valid","url":"https://example.org/a"}`,
		``,
		`{"cid":"src_b","status":"paywalled"}`,
	}, "\n")
	if err := ValidateJSONL(DocCitation, []byte(good)); err != nil {
		t.Fatalf("valid citation stream rejected: %v", err)
	}

	bad := `{"cid":"src_a","status":"pending"}`
	err := ValidateJSONL(DocCitation, []byte(bad))
	if err == nil {
		t.Fatal("unknown citation status accepted")
	}
	if !strings.Contains(err.Error(), "line 1") {
		t.Errorf("error %q does not name the offending line", err)
	}
}

func TestValidateUnknownDocument(t *testing.T) {
	if err := ValidateJSON(Document("mystery"), []byte(`{}`)); err == nil {
		t.Error("unknown document schema accepted")
	}
}
