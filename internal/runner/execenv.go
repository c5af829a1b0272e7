package runner

import "fmt"

// ExecEnv decides where command strategies run. The command itself is always
// a shell line; the environment wraps it for the right executor.
type ExecEnv interface {
	// Wrap turns a shell command line into an argv.
	Wrap(command string) (name string, args []string)
	// Describe names the environment for logs and results.
	Describe() string
}

// LocalEnv runs commands on the host shell.
type LocalEnv struct{}

func (LocalEnv) Wrap(command string) (string, []string) {
	return "sh", []string{"-c", command}
}

func (LocalEnv) Describe() string { return "local" }

// ComposeEnv runs commands inside a docker compose service.
type ComposeEnv struct {
	Service string
}

func (e ComposeEnv) Wrap(command string) (string, []string) {
	return "docker", []string{"compose", "exec", "-T", e.Service, "sh", "-c", command}
}

func (e ComposeEnv) Describe() string { return "docker compose service " + e.Service }

// KubeEnv runs commands inside a kubernetes workload.
type KubeEnv struct {
	Target    string // pod/name or deploy/name
	Namespace string
}

func (e KubeEnv) Wrap(command string) (string, []string) {
	args := []string{"exec"}
	if e.Namespace != "" {
		args = append(args, "--namespace", e.Namespace)
	}
	args = append(args, e.Target, "--", "sh", "-c", command)
	return "kubectl", args
}

func (e KubeEnv) Describe() string { return "kubernetes workload " + e.Target }

// NewExecEnv builds the environment named by config.
func NewExecEnv(env, target, namespace string) (ExecEnv, error) {
	switch env {
	case "", "local":
		return LocalEnv{}, nil
	case "docker":
		if target == "" {
			return nil, fmt.Errorf("execution env %q needs a compose service target", env)
		}
		return ComposeEnv{Service: target}, nil
	case "k8s":
		if target == "" {
			return nil, fmt.Errorf("execution env %q needs a workload target", env)
		}
		return KubeEnv{Target: target, Namespace: namespace}, nil
	}
	return nil, fmt.Errorf("unknown execution env %q", env)
}
