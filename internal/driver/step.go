package driver

import (
	"fmt"
	"strings"
)

// Step is a driver lifecycle position. Steps are strictly ordered.
type Step int

const (
	StepNone Step = iota
	StepInit
	StepInitContent
	StepInstall
	StepInstallContent
	StepSettle
	StepSettleContent
	StepDone
)

var stepNames = [...]string{
	StepNone:           "None",
	StepInit:           "Init",
	StepInitContent:    "InitContent",
	StepInstall:        "Install",
	StepInstallContent: "InstallContent",
	StepSettle:         "Settle",
	StepSettleContent:  "SettleContent",
	StepDone:           "Done",
}

func (s Step) String() string {
	if s >= StepNone && s <= StepDone {
		return stepNames[s]
	}
	return fmt.Sprintf("Step(%d)", int(s))
}

// Next returns the step that must follow s.
func (s Step) Next() Step {
	if s >= StepDone {
		return StepDone
	}
	return s + 1
}

// IsContent reports whether s is one of the *Content steps.
func (s Step) IsContent() bool {
	return s == StepInitContent || s == StepInstallContent || s == StepSettleContent
}

// Content returns the content step paired with a main step.
func (s Step) Content() Step {
	switch s {
	case StepInit, StepInstall, StepSettle:
		return s + 1
	}
	return s
}

// IsInstall reports whether s is subject to the version skip.
func (s Step) IsInstall() bool {
	return s == StepInstall || s == StepInstallContent
}

// ParseStep parses a step name as written in model files. Matching ignores
// case and underscores, so "install_content" is StepInstallContent.
func ParseStep(s string) (Step, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
	for i, name := range stepNames {
		if strings.ToLower(name) == norm {
			return Step(i), nil
		}
	}
	return StepNone, fmt.Errorf("unknown step %q", s)
}

// ParseSteps parses step names into a set. An empty list yields the set of
// def.
func ParseSteps(names []string, def ...Step) (map[Step]bool, error) {
	set := make(map[Step]bool)
	if len(names) == 0 {
		for _, s := range def {
			set[s] = true
		}
		return set, nil
	}
	for _, name := range names {
		s, err := ParseStep(name)
		if err != nil {
			return nil, err
		}
		if s == StepNone || s == StepDone {
			return nil, fmt.Errorf("step %q never reaches handlers", name)
		}
		set[s] = true
	}
	return set, nil
}
