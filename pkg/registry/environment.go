package registry

import (
	"os"
	"runtime"
	"strings"
)

// Well-known environment names. Registrations may carry any string, but
// these are the values environment detection produces and the aggregate
// lookups key on.
const (
	// EnvironmentWindowsVM is the GPU-capable Windows node. FindAIService
	// prefers peers registered under it.
	EnvironmentWindowsVM = "windows-vm"

	// EnvironmentGPUNode is a Linux host with GPUs exposed.
	EnvironmentGPUNode = "gpu-node"

	// EnvironmentContainer is any containerized deployment.
	EnvironmentContainer = "container"

	// EnvironmentHomeServer is the always-on box that usually hosts the
	// local store.
	EnvironmentHomeServer = "home-server"

	// EnvironmentDev is a developer workstation.
	EnvironmentDev = "dev"

	// EnvironmentUnknown is the fallback when nothing else matches.
	EnvironmentUnknown = "unknown"
)

// EnvOverrideVar names the environment variable that short-circuits
// detection entirely.
const EnvOverrideVar = "PEERREG_ENVIRONMENT"

// DetectEnvironment resolves the logical deployment environment of the
// current process. The explicit override wins, then platform markers, then
// hostname prefixes. It never fails; when nothing matches it returns
// EnvironmentUnknown.
func DetectEnvironment() string {
	if env := os.Getenv(EnvOverrideVar); env != "" {
		return env
	}

	if runtime.GOOS == "windows" {
		return EnvironmentWindowsVM
	}

	if os.Getenv("NVIDIA_VISIBLE_DEVICES") != "" || os.Getenv("CUDA_VISIBLE_DEVICES") != "" {
		return EnvironmentGPUNode
	}

	if inContainer() {
		return EnvironmentContainer
	}

	if env := environmentFromHostname(); env != "" {
		return env
	}

	return EnvironmentUnknown
}

// inContainer reports whether the process appears to run inside a container
// or Kubernetes pod.
func inContainer() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

// environmentFromHostname maps conventional hostname prefixes to
// environments. Returns "" when the hostname gives no hint.
func environmentFromHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return ""
	}
	hostname = strings.ToLower(hostname)

	switch {
	case strings.HasPrefix(hostname, "win-"):
		return EnvironmentWindowsVM
	case strings.HasPrefix(hostname, "gpu-"):
		return EnvironmentGPUNode
	case strings.HasPrefix(hostname, "home-"):
		return EnvironmentHomeServer
	case strings.HasPrefix(hostname, "dev-"):
		return EnvironmentDev
	}
	return ""
}
