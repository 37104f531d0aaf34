package execbroker

import (
	"context"
	"testing"
	"time"

	"retz/internal/broker"
	"retz/internal/store"
)

func TestNew_AdvertisesSlotsAsOffers(t *testing.T) {
	b := New(Config{Slots: 3, SlotResources: store.Resources{Cpu: 1, MemMB: 512}})

	offers, err := b.Offers(context.Background())
	if err != nil {
		t.Fatalf("Offers failed: %v", err)
	}

	seen := 0
	for i := 0; i < 3; i++ {
		select {
		case o := <-offers:
			if o.Resources.Cpu != 1 || o.Resources.MemMB != 512 {
				t.Errorf("unexpected offer resources: %+v", o.Resources)
			}
			seen++
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for offer")
		}
	}
	if seen != 3 {
		t.Errorf("expected 3 offers, got %d", seen)
	}
}

func TestNew_ZeroSlotsDefaultsToOne(t *testing.T) {
	b := New(Config{})
	offers, _ := b.Offers(context.Background())

	select {
	case <-offers:
	case <-time.After(time.Second):
		t.Fatal("expected at least one default offer")
	}
}

func TestLaunch_ReportsFinishedAndReturnsSlot(t *testing.T) {
	b := New(Config{Slots: 1})
	offers, _ := b.Offers(context.Background())
	offer := <-offers

	err := b.Launch(context.Background(), "task-1", broker.CommandSpec{Cmd: "true"}, offer)
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}

	select {
	case u := <-b.StatusUpdates():
		if u.TaskID != "task-1" || u.State != broker.UpdateFinished {
			t.Errorf("unexpected status update: %+v", u)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status update")
	}

	select {
	case <-offers:
	case <-time.After(2 * time.Second):
		t.Fatal("expected slot offer to be reclaimed")
	}
}

func TestLaunch_ReportsFailedOnNonZeroExit(t *testing.T) {
	b := New(Config{Slots: 1})
	offers, _ := b.Offers(context.Background())
	offer := <-offers

	err := b.Launch(context.Background(), "task-2", broker.CommandSpec{Cmd: "false"}, offer)
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}

	select {
	case u := <-b.StatusUpdates():
		if u.State != broker.UpdateFailed {
			t.Errorf("expected FAILED, got %s", u.State)
		}
		if u.ExitCode == nil || *u.ExitCode != 1 {
			t.Errorf("expected exit code 1, got %v", u.ExitCode)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status update")
	}
}

func TestLaunch_UsesConfiguredWorkDir(t *testing.T) {
	dir := t.TempDir()
	b := New(Config{Slots: 1, WorkDir: dir})
	offers, _ := b.Offers(context.Background())
	offer := <-offers

	// Exits non-zero (FAILED) unless the subprocess runs inside dir.
	cmd := "[ \"$(pwd -P)\" = \"$(cd '" + dir + "' && pwd -P)\" ]"
	err := b.Launch(context.Background(), "task-3", broker.CommandSpec{Cmd: cmd}, offer)
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}

	select {
	case u := <-b.StatusUpdates():
		if u.State != broker.UpdateFinished {
			t.Errorf("expected FINISHED, got %s", u.State)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status update")
	}
}

func TestKill_UnknownTaskIsNoop(t *testing.T) {
	b := New(Config{Slots: 1})
	if err := b.Kill(context.Background(), "no-such-task"); err != nil {
		t.Errorf("expected nil error for unknown task, got %v", err)
	}
}

func TestReconcile_ReportsLostForUnknownTasks(t *testing.T) {
	b := New(Config{Slots: 1})

	if err := b.Reconcile(context.Background(), []string{"ghost-task"}); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	select {
	case u := <-b.StatusUpdates():
		if u.TaskID != "ghost-task" || u.State != broker.UpdateLost {
			t.Errorf("unexpected update: %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for LOST update")
	}
}
