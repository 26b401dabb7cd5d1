package testutil

import "testing"

// Steps runs Given/When/Then subtests in order. Once a step fails, the
// remaining steps are reported as skipped instead of running against state
// the failed step never built.
type Steps struct {
	t      *testing.T
	failed string
}

// NewSteps starts a step sequence on t.
func NewSteps(t *testing.T) *Steps {
	return &Steps{t: t}
}

func (s *Steps) Given(desc string, fn func(t *testing.T)) { s.t.Helper(); s.run("Given", desc, fn) }
func (s *Steps) When(desc string, fn func(t *testing.T)) { s.t.Helper(); s.run("When", desc, fn) }
func (s *Steps) Then(desc string, fn func(t *testing.T)) { s.t.Helper(); s.run("Then", desc, fn) }

func (s *Steps) run(keyword, desc string, fn func(t *testing.T)) {
	s.t.Helper()
	name := keyword + " " + desc
	if s.failed != "" {
		failed := s.failed
		s.t.Run(name, func(t *testing.T) { t.Skipf("skipped after failed step %q", failed) })
		return
	}
	if !s.t.Run(name, fn) {
		s.failed = name
	}
}
