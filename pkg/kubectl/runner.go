package kubectl

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/clientcmd/api"
)

// execCommandContext allows mocking exec.CommandContext for testing
var execCommandContext = exec.CommandContext

// DefaultQueryTimeout bounds a single kubectl invocation.
const DefaultQueryTimeout = 30 * time.Second

// Response is the result of one kubectl invocation. Exit code 0 with
// parsable output is success; anything else is interpreted by the caller.
type Response struct {
	Output   string `json:"output"`
	ExitCode int    `json:"exitCode"`
	Error    string `json:"error,omitempty"`
}

// Executor issues read-only queries against one cluster context.
// Implemented by Runner; faked in tests.
type Executor interface {
	Execute(ctx context.Context, clusterContext, namespace string, args []string) Response
}

// ContextInfo describes one kubeconfig context.
type ContextInfo struct {
	Name      string `json:"name"`
	Cluster   string `json:"cluster,omitempty"`
	Server    string `json:"server,omitempty"`
	User      string `json:"user,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	IsCurrent bool   `json:"isCurrent"`
}

// Runner shells out to kubectl with a fixed kubeconfig. It is the only
// transport the discovery engine uses to reach clusters.
type Runner struct {
	mu         sync.RWMutex
	kubeconfig string
	config     *api.Config
}

// NewRunner loads the kubeconfig (KUBECONFIG env or ~/.kube/config when
// path is empty). A missing or unreadable kubeconfig is not fatal: kubectl
// itself may still resolve contexts, and the file can appear later.
func NewRunner(kubeconfig string) (*Runner, error) {
	if kubeconfig == "" {
		kubeconfig = os.Getenv("KUBECONFIG")
	}
	if kubeconfig == "" {
		home, _ := os.UserHomeDir()
		kubeconfig = filepath.Join(home, ".kube", "config")
	}

	config, err := clientcmd.LoadFromFile(kubeconfig)
	if err != nil {
		return &Runner{kubeconfig: kubeconfig, config: &api.Config{}}, nil
	}
	return &Runner{kubeconfig: kubeconfig, config: config}, nil
}

// KubeconfigPath returns the path to the kubeconfig file.
func (r *Runner) KubeconfigPath() string { return r.kubeconfig }

// Reload re-reads the kubeconfig from disk.
func (r *Runner) Reload() error {
	config, err := clientcmd.LoadFromFile(r.kubeconfig)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.config = config
	r.mu.Unlock()
	return nil
}

// ListContexts returns all contexts from the kubeconfig, sorted by name.
func (r *Runner) ListContexts() []ContextInfo {
	r.mu.RLock()
	config := r.config
	r.mu.RUnlock()

	current := config.CurrentContext
	contexts := make([]ContextInfo, 0, len(config.Contexts))
	for name, ctx := range config.Contexts {
		server := ""
		if cluster := config.Clusters[ctx.Cluster]; cluster != nil {
			server = cluster.Server
		}
		contexts = append(contexts, ContextInfo{
			Name:      name,
			Cluster:   ctx.Cluster,
			Server:    server,
			User:      ctx.AuthInfo,
			Namespace: ctx.Namespace,
			IsCurrent: name == current,
		})
	}
	sort.Slice(contexts, func(i, j int) bool { return contexts[i].Name < contexts[j].Name })
	return contexts
}

// Execute runs a kubectl command against the given cluster context and
// returns its output and exit code. The context bounds the invocation; a
// deadline hit surfaces as "context deadline exceeded" in the error text.
func (r *Runner) Execute(ctx context.Context, clusterContext, namespace string, args []string) Response {
	if !validateArgs(args) {
		return Response{ExitCode: 1, Error: "disallowed kubectl command"}
	}

	cmdArgs := []string{}
	if r.kubeconfig != "" {
		cmdArgs = append(cmdArgs, "--kubeconfig", r.kubeconfig)
	}
	if clusterContext != "" {
		cmdArgs = append(cmdArgs, "--context", clusterContext)
	}
	if namespace != "" {
		cmdArgs = append(cmdArgs, "-n", namespace)
	}
	cmdArgs = append(cmdArgs, args...)

	cmd := execCommandContext(ctx, "kubectl", cmdArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	errText := stderr.String()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = 1
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			errText = strings.TrimSpace(errText + "\ncontext deadline exceeded")
		} else if errText == "" {
			errText = err.Error()
		}
	}

	return Response{Output: stdout.String(), ExitCode: exitCode, Error: errText}
}

// connectivityErrors is the vocabulary that marks a cluster as unreachable
// for this cycle, as opposed to a query that merely returned nothing.
// Substring matching on error text is fragile but is all the transport
// gives us; see IsConnectivityError.
var connectivityErrors = []string{
	"unable to connect",
	"connection refused",
	"timeout",
	"no such host",
	"context deadline exceeded",
}

// IsConnectivityError reports whether the error text indicates the cluster
// itself is unreachable rather than a per-resource failure.
func IsConnectivityError(errText string) bool {
	lower := strings.ToLower(errText)
	for _, marker := range connectivityErrors {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// allowedCommands is a whitelist of kubectl verbs the runner will execute.
// The discovery engine is strictly read-only.
var allowedCommands = map[string]bool{
	"get":           true,
	"describe":      true,
	"top":           true,
	"api-resources": true,
	"api-versions":  true,
	"version":       true,
	"cluster-info":  true,
}

func validateArgs(args []string) bool {
	if len(args) == 0 {
		return false
	}
	if !allowedCommands[strings.ToLower(args[0])] {
		return false
	}
	// Block shell metacharacters in any position
	for _, arg := range args {
		if strings.ContainsAny(arg, ";|&$`") {
			return false
		}
	}
	return true
}
