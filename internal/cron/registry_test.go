package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	jobA := &stubJob{name: "outbox-retention"}
	jobB := &stubJob{name: "ledger-retention"}
	registry, err := NewRegistry(jobA, jobB)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0] != jobA || jobs[1] != jobB {
		t.Fatalf("jobs returned out of order")
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryRejectsInvalidJobs(t *testing.T) {
	if _, err := NewRegistry(&stubJob{name: "a"}, &stubJob{name: "a"}); err == nil {
		t.Fatalf("expected duplicate name error")
	}
	if _, err := NewRegistry(&stubJob{}); err == nil {
		t.Fatalf("expected empty name error")
	}
	if _, err := NewRegistry(nil); err == nil {
		t.Fatalf("expected nil job error")
	}
}
