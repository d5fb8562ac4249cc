package blueprint

// Default returns the stock five-phase blueprint wired to the builtin
// capabilities. It is used whenever a run does not name a blueprint
// file.
func Default() *Blueprint {
	return &Blueprint{
		Name:    "default",
		Version: Version,
		Phases: []Phase{
			{
				Name:   "initialization",
				Policy: PolicyBestEffort,
				Subtasks: []Subtask{
					{Name: "source_inventory"},
					{Name: "dependency_audit"},
				},
			},
			{
				Name:   "analysis",
				Policy: PolicyAllMustSucceed,
				Subtasks: []Subtask{
					{Name: "complexity_profile"},
					{Name: "security_scan"},
				},
			},
			{
				// Coverage measurement needs the generated tests, so this
				// phase runs sequentially.
				Name:       "testing",
				Policy:     PolicyBestEffort,
				Sequential: true,
				Subtasks: []Subtask{
					{Name: "test_generation"},
					{Name: "coverage_report"},
				},
			},
			{
				Name:   "quality_gates",
				Policy: PolicyAllMustSucceed,
				Subtasks: []Subtask{
					{Name: "lint_gate"},
					{Name: "vulnerability_gate"},
				},
			},
			{
				// The readiness report summarizes the bundled artifact.
				Name:       "deployment_prep",
				Policy:     PolicyAllMustSucceed,
				Sequential: true,
				Subtasks: []Subtask{
					{Name: "artifact_bundle"},
					{Name: "readiness_report"},
				},
			},
		},
	}
}
