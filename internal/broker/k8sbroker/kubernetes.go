// Package k8sbroker implements broker.ResourceBroker by running each
// task as a Kubernetes batchv1.Job, grounded on the same client-go
// wiring (in-cluster config falling back to kubeconfig) as a plain
// Kubernetes-backed execution runtime.
package k8sbroker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"retz/internal/broker"
	"retz/internal/store"
)

// Config controls the image, namespace, and synthetic capacity this
// Broker advertises.
type Config struct {
	Image     string
	Namespace string
	Slots     int
	CPULimit  string
	MemLimit  string
	Resources store.Resources
}

// Broker runs tasks as Kubernetes Jobs.
type Broker struct {
	clientset kubernetes.Interface
	cfg       Config
	offers    chan broker.Offer
	updates   chan broker.StatusUpdate

	mu   sync.Mutex
	jobs map[string]string // taskID -> k8s job name
}

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	return os.Getenv("USERPROFILE")
}

// New builds a clientset (in-cluster, falling back to kubeconfig) and
// advertises cfg.Slots offers.
func New(cfg Config) (*Broker, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := filepath.Join(homeDir(), ".kube", "config")
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("k8sbroker: failed to build config: %w", err)
		}
	}
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("k8sbroker: failed to create clientset: %w", err)
	}

	return newWithClientset(clientset, cfg), nil
}

// newWithClientset builds a Broker around a caller-supplied clientset,
// letting tests inject k8s.io/client-go/kubernetes/fake instead of a
// live cluster.
func newWithClientset(clientset kubernetes.Interface, cfg Config) *Broker {
	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	if cfg.CPULimit == "" {
		cfg.CPULimit = "500m"
	}
	if cfg.MemLimit == "" {
		cfg.MemLimit = "256Mi"
	}
	if cfg.Slots <= 0 {
		cfg.Slots = 1
	}

	b := &Broker{
		clientset: clientset,
		cfg:       cfg,
		offers:    make(chan broker.Offer, cfg.Slots),
		updates:   make(chan broker.StatusUpdate, cfg.Slots),
		jobs:      make(map[string]string),
	}
	for i := 0; i < cfg.Slots; i++ {
		b.offers <- broker.Offer{
			ID:        fmt.Sprintf("k8s-slot-%d", i),
			AgentID:   cfg.Namespace,
			Resources: cfg.Resources,
		}
	}
	return b
}

func (b *Broker) Offers(ctx context.Context) (<-chan broker.Offer, error) {
	return b.offers, nil
}

func (b *Broker) StatusUpdates() <-chan broker.StatusUpdate {
	return b.updates
}

func (b *Broker) Launch(ctx context.Context, taskID string, cmd broker.CommandSpec, offer broker.Offer) error {
	jobName := fmt.Sprintf("retz-%s", taskID)

	var env []corev1.EnvVar
	for k, v := range cmd.Env {
		env = append(env, corev1.EnvVar{Name: k, Value: v})
	}

	backoffLimit := int32(0)
	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      jobName,
			Namespace: b.cfg.Namespace,
			Labels:    map[string]string{"app.kubernetes.io/managed-by": "retz", "retz-task-id": taskID},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit: &backoffLimit,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{"job-name": jobName, "app.kubernetes.io/managed-by": "retz"},
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{{
						Name:    "task",
						Image:   b.cfg.Image,
						Command: []string{"sh", "-c", cmd.Cmd},
						Env:     env,
						Resources: corev1.ResourceRequirements{
							Limits: corev1.ResourceList{
								corev1.ResourceCPU:    resource.MustParse(b.cfg.CPULimit),
								corev1.ResourceMemory: resource.MustParse(b.cfg.MemLimit),
							},
						},
					}},
				},
			},
		},
	}

	created, err := b.clientset.BatchV1().Jobs(b.cfg.Namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		return fmt.Errorf("k8sbroker: failed to create job for task %s: %w", taskID, err)
	}

	b.mu.Lock()
	b.jobs[taskID] = created.Name
	b.mu.Unlock()

	go b.watch(taskID, created.Name, offer)
	return nil
}

func (b *Broker) watch(taskID, jobName string, offer broker.Offer) {
	ctx := context.Background()
	watcher, err := b.clientset.BatchV1().Jobs(b.cfg.Namespace).Watch(ctx, metav1.ListOptions{
		FieldSelector: "metadata.name=" + jobName,
	})
	if err != nil {
		b.finish(taskID, offer, broker.UpdateLost, nil)
		return
	}
	defer watcher.Stop()

	for event := range watcher.ResultChan() {
		if event.Type == watch.Error {
			b.finish(taskID, offer, broker.UpdateLost, nil)
			return
		}
		kjob, ok := event.Object.(*batchv1.Job)
		if !ok {
			continue
		}
		if kjob.Status.Succeeded > 0 {
			code := 0
			b.finish(taskID, offer, broker.UpdateFinished, &code)
			return
		}
		if kjob.Status.Failed > 0 {
			code := -1
			b.finish(taskID, offer, broker.UpdateFailed, &code)
			return
		}
	}
}

func (b *Broker) finish(taskID string, offer broker.Offer, state broker.UpdateState, exitCode *int) {
	b.mu.Lock()
	delete(b.jobs, taskID)
	b.mu.Unlock()
	b.updates <- broker.StatusUpdate{TaskID: taskID, State: state, ExitCode: exitCode}
	b.offers <- offer
}

func (b *Broker) Kill(ctx context.Context, taskID string) error {
	b.mu.Lock()
	jobName, ok := b.jobs[taskID]
	b.mu.Unlock()
	if !ok {
		return nil
	}
	propagation := metav1.DeletePropagationForeground
	if err := b.clientset.BatchV1().Jobs(b.cfg.Namespace).Delete(ctx, jobName, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
	}); err != nil {
		return fmt.Errorf("k8sbroker: failed to delete job %s: %w", jobName, err)
	}
	return nil
}

func (b *Broker) Reconcile(ctx context.Context, taskIDs []string) error {
	b.mu.Lock()
	known := make(map[string]bool, len(b.jobs))
	for id := range b.jobs {
		known[id] = true
	}
	b.mu.Unlock()

	for _, id := range taskIDs {
		if !known[id] {
			b.updates <- broker.StatusUpdate{TaskID: id, State: broker.UpdateLost}
		}
	}
	return nil
}
