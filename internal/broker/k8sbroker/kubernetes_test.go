package k8sbroker

import (
	"context"
	"testing"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"retz/internal/broker"
	"retz/internal/store"
)

func TestNew_AdvertisesSlotsAsOffers(t *testing.T) {
	clientset := fake.NewClientset()
	b := newWithClientset(clientset, Config{Namespace: "test-ns", Slots: 2, Resources: store.Resources{Cpu: 2, MemMB: 1024}})

	offers, _ := b.Offers(context.Background())
	for i := 0; i < 2; i++ {
		select {
		case o := <-offers:
			if o.AgentID != "test-ns" {
				t.Errorf("expected offer agent id test-ns, got %s", o.AgentID)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for offer")
		}
	}
}

func TestLaunch_CreatesBatchJob(t *testing.T) {
	clientset := fake.NewClientset()
	b := newWithClientset(clientset, Config{Namespace: "test-ns", Slots: 1})
	offers, _ := b.Offers(context.Background())
	offer := <-offers

	if err := b.Launch(context.Background(), "task-1", broker.CommandSpec{Cmd: "echo hi"}, offer); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}

	var job *batchv1.Job
	job, err := clientset.BatchV1().Jobs("test-ns").Get(context.Background(), "retz-task-1", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("expected job to be created: %v", err)
	}
	if job.Labels["retz-task-id"] != "task-1" {
		t.Errorf("expected retz-task-id label, got %q", job.Labels["retz-task-id"])
	}
	if *job.Spec.BackoffLimit != 0 {
		t.Errorf("expected BackoffLimit 0, got %d", *job.Spec.BackoffLimit)
	}
}

func TestKill_DeletesBatchJob(t *testing.T) {
	clientset := fake.NewClientset()
	b := newWithClientset(clientset, Config{Namespace: "test-ns", Slots: 1})
	offers, _ := b.Offers(context.Background())
	offer := <-offers

	if err := b.Launch(context.Background(), "task-3", broker.CommandSpec{Cmd: "echo hi"}, offer); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}

	if err := b.Kill(context.Background(), "task-3"); err != nil {
		t.Fatalf("Kill failed: %v", err)
	}

	if _, err := clientset.BatchV1().Jobs("test-ns").Get(context.Background(), "retz-task-3", metav1.GetOptions{}); err == nil {
		t.Error("expected job to be deleted")
	}
}

func TestKill_UnknownTaskIsNoop(t *testing.T) {
	clientset := fake.NewClientset()
	b := newWithClientset(clientset, Config{Namespace: "test-ns", Slots: 1})

	if err := b.Kill(context.Background(), "no-such-task"); err != nil {
		t.Errorf("expected nil error for unknown task, got %v", err)
	}
}

func TestReconcile_ReportsLostForUnknownTasks(t *testing.T) {
	clientset := fake.NewClientset()
	b := newWithClientset(clientset, Config{Namespace: "test-ns", Slots: 1})

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
