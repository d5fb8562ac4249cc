package capability

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/gauntlet-ci/gauntlet/internal/errors"
)

// Builtin capabilities simulate the analysis tooling a real deployment
// would shell out to. Their payloads are deterministic functions of the
// subject ID so that repeated runs and tests see stable values.
//
// All builtins honor two optional params for demos and tests:
//
//	delay: duration string; the capability waits, honoring ctx
//	fail:  message; the capability fails with that message
//
// A "fail" param whose message starts with "transient" produces a
// retryable failure.

// RegisterBuiltins installs the stock capabilities into reg.
func RegisterBuiltins(reg *Registry) error {
	builtins := []Registration{
		{Name: "source_inventory", Description: "Enumerate source files and languages", Fn: sourceInventory},
		{Name: "dependency_audit", Description: "Resolve and audit declared dependencies", Fn: dependencyAudit},
		{Name: "complexity_profile", Description: "Score structural complexity hotspots", Fn: complexityProfile},
		{Name: "security_scan", Description: "Scan sources for known vulnerability patterns", Fn: securityScan},
		{Name: "test_generation", Description: "Generate candidate test cases", Fn: testGeneration},
		{Name: "coverage_report", Description: "Estimate coverage for generated tests", Fn: coverageReport},
		{Name: "lint_gate", Description: "Enforce lint findings threshold", Fn: lintGate},
		{Name: "vulnerability_gate", Description: "Enforce vulnerability severity threshold", Fn: vulnerabilityGate},
		{Name: "artifact_bundle", Description: "Assemble the deployable artifact manifest", Fn: artifactBundle},
		{Name: "readiness_report", Description: "Summarize run readiness for deployment", Fn: readinessReport},
	}

	for _, b := range builtins {
		if err := reg.Register(b.Name, b.Description, b.Fn); err != nil {
			return err
		}
	}
	return nil
}

// simulate applies the shared delay/fail params. Builtins call it first
// so that every builtin can be steered from a blueprint.
func simulate(ctx context.Context, req Request) error {
	if raw, ok := req.Params["delay"]; ok {
		d, err := time.ParseDuration(fmt.Sprint(raw))
		if err != nil {
			return errors.NewValidationError("invalid delay duration").WithField("delay").WithValue(raw)
		}
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if raw, ok := req.Params["fail"]; ok {
		msg := fmt.Sprint(raw)
		if strings.HasPrefix(msg, "transient") {
			return errors.Transient(errors.New(msg))
		}
		return errors.New(msg)
	}

	return nil
}

// seed derives a stable pseudo-random value from the subject ID.
func seed(subjectID string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(subjectID))
	return h.Sum32()
}

func sourceInventory(ctx context.Context, req Request) (Payload, error) {
	if err := simulate(ctx, req); err != nil {
		return nil, err
	}
	n := seed(req.SubjectID)
	return Payload{
		"files":     int(100 + n%900),
		"languages": []string{"go", "sql", "yaml"},
		"loc":       int(5000 + n%95000),
	}, nil
}

func dependencyAudit(ctx context.Context, req Request) (Payload, error) {
	if err := simulate(ctx, req); err != nil {
		return nil, err
	}
	n := seed(req.SubjectID)
	return Payload{
		"direct":    int(5 + n%30),
		"indirect":  int(20 + n%200),
		"outdated":  int(n % 7),
		"conflicts": 0,
	}, nil
}

func complexityProfile(ctx context.Context, req Request) (Payload, error) {
	if err := simulate(ctx, req); err != nil {
		return nil, err
	}
	n := seed(req.SubjectID)
	return Payload{
		"mean_cyclomatic": float64(n%120)/10.0 + 1.0,
		"hotspots":        int(n % 12),
		"max_depth":       int(2 + n%9),
	}, nil
}

func securityScan(ctx context.Context, req Request) (Payload, error) {
	if err := simulate(ctx, req); err != nil {
		return nil, err
	}
	n := seed(req.SubjectID)
	return Payload{
		"findings": int(n % 5),
		"critical": 0,
		"high":     int(n % 2),
		"ruleset":  "standard-2025.3",
	}, nil
}

func testGeneration(ctx context.Context, req Request) (Payload, error) {
	if err := simulate(ctx, req); err != nil {
		return nil, err
	}
	n := seed(req.SubjectID)
	files := 0
	if inv, ok := req.PriorPayload("initialization", "source_inventory"); ok {
		if v, ok := inv["files"].(int); ok {
			files = v
		}
	}
	generated := int(10 + n%140)
	if files > 0 {
		generated = files/4 + int(n%20)
	}
	return Payload{
		"generated": generated,
		"skipped":   int(n % 9),
	}, nil
}

func coverageReport(ctx context.Context, req Request) (Payload, error) {
	if err := simulate(ctx, req); err != nil {
		return nil, err
	}
	n := seed(req.SubjectID)
	generated := 0
	if gen, ok := req.PriorPayload(req.Phase, "test_generation"); ok {
		if v, ok := gen["generated"].(int); ok {
			generated = v
		}
	} else if gen, ok := req.PriorPayload("testing", "test_generation"); ok {
		if v, ok := gen["generated"].(int); ok {
			generated = v
		}
	}
	return Payload{
		"statements_pct": float64(55+n%40) + 0.5,
		"branches_pct":   float64(40+n%45) + 0.5,
		"tests_counted":  generated,
	}, nil
}

func lintGate(ctx context.Context, req Request) (Payload, error) {
	if err := simulate(ctx, req); err != nil {
		return nil, err
	}
	n := seed(req.SubjectID)
	findings := int(n % 25)
	threshold := 50
	if raw, ok := req.Params["max_findings"]; ok {
		if v, ok := raw.(int); ok {
			threshold = v
		}
	}
	if findings > threshold {
		return nil, fmt.Errorf("lint gate failed: %d findings exceed threshold %d", findings, threshold)
	}
	return Payload{
		"findings":  findings,
		"threshold": threshold,
		"passed":    true,
	}, nil
}

func vulnerabilityGate(ctx context.Context, req Request) (Payload, error) {
	if err := simulate(ctx, req); err != nil {
		return nil, err
	}
	critical := 0
	if scan, ok := req.PriorPayload("analysis", "security_scan"); ok {
		if v, ok := scan["critical"].(int); ok {
			critical = v
		}
	}
	if critical > 0 {
		return nil, fmt.Errorf("vulnerability gate failed: %d critical findings", critical)
	}
	return Payload{
		"critical": critical,
		"passed":   true,
	}, nil
}

func artifactBundle(ctx context.Context, req Request) (Payload, error) {
	if err := simulate(ctx, req); err != nil {
		return nil, err
	}
	n := seed(req.SubjectID)
	return Payload{
		"artifact": fmt.Sprintf("%s-%08x.bundle", req.SubjectID, n),
		"size_kb":  int(256 + n%8192),
		"digest":   fmt.Sprintf("sha256:%08x%08x", n, n^0xffffffff),
	}, nil
}

func readinessReport(ctx context.Context, req Request) (Payload, error) {
	if err := simulate(ctx, req); err != nil {
		return nil, err
	}
	phases := make([]string, 0, len(req.Prior))
	subtasks := 0
	for phase, outputs := range req.Prior {
		phases = append(phases, phase)
		subtasks += len(outputs)
	}
	return Payload{
		"phases_seen":   len(phases),
		"payloads_seen": subtasks,
		"ready":         true,
	}, nil
}
