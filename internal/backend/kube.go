package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"go.uber.org/zap"
)

// kubeLauncher runs the browser image as a pod through kubectl and bridges
// it to localhost with a port-forward child process.
type kubeLauncher struct {
	log *zap.SugaredLogger
}

func (l *kubeLauncher) launch(ctx context.Context, desc Descriptor, port int) (resource, error) {
	image := desc.Image
	if image == "" {
		image = DefaultImage
	}
	namespace := desc.Namespace
	if namespace == "" {
		namespace = "default"
	}
	name := fmt.Sprintf("aether-browser-%s", shortID())

	if _, err := runCLI(ctx, "kubectl", "run", name,
		"--namespace", namespace,
		"--image", image,
		"--restart", "Never",
		"--port", fmt.Sprintf("%d", containerPort),
		"--labels", "app=aether-lens"); err != nil {
		return nil, fmt.Errorf("kubectl run %s: %w", image, err)
	}

	res := &kubeResource{name: name, namespace: namespace, log: l.log}

	if _, err := runCLI(ctx, "kubectl", "wait",
		"--namespace", namespace,
		"--for", "condition=Ready",
		"--timeout", "60s",
		"pod/"+name); err != nil {
		return res, fmt.Errorf("pod %s never became ready: %w", name, err)
	}

	forward := exec.Command("kubectl", "port-forward",
		"--namespace", namespace,
		"pod/"+name,
		fmt.Sprintf("%d:%d", port, containerPort))
	forward.Stdout = nil
	forward.Stderr = nil
	if err := forward.Start(); err != nil {
		return res, fmt.Errorf("kubectl port-forward: %w", err)
	}
	res.forward = forward

	l.log.Debugw("pod launched", "pod", name, "namespace", namespace, "port", port)
	return res, nil
}

// kubeResource is one managed pod plus its port-forward.
type kubeResource struct {
	name      string
	namespace string
	forward   *exec.Cmd
	log       *zap.SugaredLogger

	once sync.Once
	err  error
}

func (r *kubeResource) id() string { return r.name }

func (r *kubeResource) stop(ctx context.Context) error {
	r.once.Do(func() {
		if r.forward != nil && r.forward.Process != nil {
			if err := r.forward.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				r.log.Debugw("killing port-forward failed", "pod", r.name, "error", err)
			}
			r.forward.Wait()
		}
		// Forced delete so teardown never hangs on a wedged pod.
		_, r.err = runCLI(ctx, "kubectl", "delete", "pod", r.name,
			"--namespace", r.namespace,
			"--grace-period=0", "--force",
			"--ignore-not-found")
	})
	return r.err
}

func (r *kubeResource) alive(ctx context.Context) (bool, error) {
	out, err := runCLI(ctx, "kubectl", "get", "pod", r.name,
		"--namespace", r.namespace,
		"-o", "jsonpath={.status.phase}")
	if err != nil {
		return false, nil
	}
	return out == "Running", nil
}
