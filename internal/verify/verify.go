// verify.go implements the post-run verification checks. Each check
// probes one property a bootstrap promises: the server process runs in
// the foreground, the bound port accepts connections, the dependency set
// has not drifted since the build, and (optionally) the application
// answers HTTP.
//
// Checks run concurrently and every check always completes — a failing
// check is recorded in the report, not used to cancel its siblings, so
// one verify run shows the full picture.
package verify

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mmr-tortoise/gangway/internal/deps"
	"github.com/mmr-tortoise/gangway/internal/docker"
	"github.com/mmr-tortoise/gangway/internal/manifest"
	"github.com/mmr-tortoise/gangway/internal/model"
	"github.com/mmr-tortoise/gangway/internal/oci"
	"github.com/mmr-tortoise/gangway/internal/port"
)

// CheckStatus is the outcome of a single verification check.
type CheckStatus string

const (
	// StatusPass means the property held.
	StatusPass CheckStatus = "pass"

	// StatusFail means the property was violated. Any failed check fails
	// the whole verification.
	StatusFail CheckStatus = "fail"

	// StatusWarn reports a known, preserved defect: the build carried it
	// through faithfully, so it does not fail verification, but it must
	// stay visible.
	StatusWarn CheckStatus = "warn"

	// StatusSkip means the check did not apply (e.g. the port is not
	// published, or no manifest directory was given).
	StatusSkip CheckStatus = "skip"
)

// CheckResult is the outcome of one named check.
type CheckResult struct {
	// Name identifies the check: process, bind-port, expose, deps-drift,
	// or http.
	Name string `json:"name"`

	// Status is the check outcome.
	Status CheckStatus `json:"status"`

	// Detail explains the outcome in one line.
	Detail string `json:"detail,omitempty"`
}

// Report is the complete result of one verification run.
type Report struct {
	// App is the verified application name.
	App string `json:"app"`

	// Checks holds every check outcome in a fixed order.
	Checks []CheckResult `json:"checks"`

	// Passed is false when any check failed. Warnings and skips do not
	// affect it.
	Passed bool `json:"passed"`
}

// Options configures a verification run.
type Options struct {
	// Dir is the manifest directory for the deps-drift check. Empty
	// skips the check.
	Dir string

	// HTTPPath enables the http check with the given request path.
	HTTPPath string

	// Timeout bounds the listening wait and the HTTP request.
	Timeout time.Duration

	// AllowExited accepts a terminated server as a passing process
	// check, for bootstraps whose command is a finite job.
	AllowExited bool
}

// DefaultTimeout is applied when Options.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// probeHost is where published ports are probed. Docker publishes on
// 0.0.0.0, so loopback always reaches a published port.
const probeHost = "127.0.0.1"

// Run executes all verification checks against the app's container and
// returns the per-check report. The returned error covers infrastructure
// problems only (no such app, Docker unreachable); check failures are
// reported in Report.Passed instead.
func Run(ctx context.Context, cli *docker.Client, app string, opts Options) (*Report, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	containers, err := docker.ListManagedContainers(ctx, cli, app)
	if err != nil {
		return nil, err
	}
	if len(containers) == 0 {
		return nil, model.NewCLIError(
			model.ExitGeneralError,
			fmt.Sprintf("no containers found for app %q — nothing to verify (run it first)", app),
		)
	}

	b, err := docker.BuildBootstrap(app, containers)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitGeneralError,
			fmt.Sprintf("cannot verify %q: container labels are unreadable", app),
			err,
		)
	}

	target := pickTarget(containers)

	// Re-read the target's port map from inspect; the list snapshot the
	// containers came from can lag behind a container in transition.
	if ports, err := docker.ContainerPortBindings(ctx, cli, target.ContainerID); err == nil && len(ports) > 0 {
		target.Ports = ports
	}

	hostPort, publishMismatch := publishedHostPort(target, b.BindPort)

	// Fixed indices keep the report order stable and let the goroutines
	// write without a mutex — each owns exactly one slot.
	results := make([]CheckResult, 5)

	// A plain errgroup (no context) so one failing check cannot cancel
	// the context its siblings are probing with.
	var g errgroup.Group

	g.Go(func() error {
		results[0] = checkProcess(target, opts.AllowExited)
		return nil
	})

	g.Go(func() error {
		results[1] = checkBindPort(ctx, target, b.BindPort, hostPort, publishMismatch, opts.Timeout)
		return nil
	})

	g.Go(func() error {
		results[2] = checkExpose(ctx, cli, target.Image, b.BindPort)
		return nil
	})

	g.Go(func() error {
		results[3] = checkDepsDrift(opts.Dir, b.DepsDigest)
		return nil
	})

	g.Go(func() error {
		results[4] = checkHTTP(ctx, target, hostPort, opts.HTTPPath, opts.Timeout)
		return nil
	})

	// Wait never returns an error because every goroutine returns nil.
	_ = g.Wait()

	report := &Report{App: app, Checks: results, Passed: true}
	for _, check := range results {
		if check.Status == StatusFail {
			report.Passed = false
			break
		}
	}

	return report, nil
}

// pickTarget selects the container to verify: the running one when any
// is running, otherwise the first terminated one, otherwise the first.
func pickTarget(containers []model.ContainerInfo) model.ContainerInfo {
	for _, c := range containers {
		if c.State == "running" {
			return c
		}
	}
	for _, c := range containers {
		if c.State == "exited" || c.State == "dead" {
			return c
		}
	}
	return containers[0]
}

// publishedHostPort finds the host port the container's bind port is
// published on. The second return is true when the container publishes
// some port but not the bind port — a misconfiguration the bind-port
// check must fail on rather than skip.
func publishedHostPort(c model.ContainerInfo, bindPort int) (int, bool) {
	published := false
	for _, p := range c.Ports {
		if p.HostPort == 0 {
			continue
		}
		published = true
		if p.ContainerPort == bindPort {
			return p.HostPort, false
		}
	}
	return 0, published
}

// checkProcess verifies the single server process: the container must be
// running, or cleanly terminated when allowExited is set. The container
// IS the process — its state is the server's state.
func checkProcess(c model.ContainerInfo, allowExited bool) CheckResult {
	result := CheckResult{Name: "process"}

	switch c.State {
	case "running":
		result.Status = StatusPass
		result.Detail = fmt.Sprintf("container %s is running (%s)", c.ContainerName, c.Status)
	case "exited", "dead":
		if allowExited {
			result.Status = StatusPass
			result.Detail = fmt.Sprintf("server terminated; container preserves its exit code (%s)", c.Status)
		} else {
			result.Status = StatusFail
			result.Detail = fmt.Sprintf("server process is not running (%s)", c.Status)
		}
	default:
		result.Status = StatusFail
		result.Detail = fmt.Sprintf("container %s is in state %q", c.ContainerName, c.State)
	}

	return result
}

// checkBindPort verifies that the port the server binds — the manifest's
// command.port, recorded in the bind-port label — is published and that
// something accepts TCP connections on the published host port.
func checkBindPort(ctx context.Context, c model.ContainerInfo, bindPort, hostPort int, publishMismatch bool, timeout time.Duration) CheckResult {
	result := CheckResult{Name: "bind-port"}

	if c.State != "running" {
		result.Status = StatusSkip
		result.Detail = "container is not running; nothing can be listening"
		return result
	}

	if publishMismatch {
		result.Status = StatusFail
		result.Detail = fmt.Sprintf("container publishes ports, but none maps the server's bind port %d", bindPort)
		return result
	}

	if hostPort == 0 {
		result.Status = StatusSkip
		result.Detail = fmt.Sprintf("bind port %d is not published to the host", bindPort)
		return result
	}

	if err := port.WaitListening(ctx, probeHost, hostPort, timeout); err != nil {
		result.Status = StatusFail
		result.Detail = fmt.Sprintf("container port %d is published on host port %d, but nothing accepts connections: %v", bindPort, hostPort, err)
		return result
	}

	result.Status = StatusPass
	result.Detail = fmt.Sprintf("server accepts connections on host port %d (container port %d)", hostPort, bindPort)
	return result
}

// checkExpose compares the ports the image documents (its EXPOSE
// instructions) against the port the server binds. A disagreement is the
// known manifest defect: it was preserved verbatim at build time, so it
// is reported as a warning here — never repaired, never failed.
func checkExpose(ctx context.Context, cli *docker.Client, imageRef string, bindPort int) CheckResult {
	result := CheckResult{Name: "expose"}

	img, err := oci.FromDaemon(ctx, cli, imageRef)
	if err != nil {
		result.Status = StatusFail
		result.Detail = fmt.Sprintf("cannot read image %s: %v", imageRef, err)
		return result
	}

	documented, err := oci.PortConfig(img)
	if err != nil {
		result.Status = StatusFail
		result.Detail = fmt.Sprintf("cannot read exposed ports of %s: %v", imageRef, err)
		return result
	}

	if len(documented) == 0 {
		result.Status = StatusWarn
		result.Detail = fmt.Sprintf("image documents no port; the server binds %d", bindPort)
		return result
	}

	for _, p := range documented {
		if p == bindPort {
			result.Status = StatusPass
			result.Detail = fmt.Sprintf("image documents port %d, matching the bound port", bindPort)
			return result
		}
	}

	result.Status = StatusWarn
	result.Detail = fmt.Sprintf(
		"image documents port %s but the server binds %d — EXPOSE is documentation only; the manifest was built verbatim",
		joinPorts(documented), bindPort,
	)
	return result
}

// checkDepsDrift recomputes the dependency fingerprint from the manifest
// directory and compares it with the fingerprint recorded on the image at
// build time. Inequality means pyproject/lock/requirements content changed
// since the build — the image no longer represents the working tree.
func checkDepsDrift(dir, builtDigest string) CheckResult {
	result := CheckResult{Name: "deps-drift"}

	if dir == "" {
		result.Status = StatusSkip
		result.Detail = "no manifest directory given"
		return result
	}

	path, err := manifest.FindManifest(dir, "")
	if err != nil {
		result.Status = StatusFail
		result.Detail = fmt.Sprintf("cannot locate manifest under %s: %v", dir, err)
		return result
	}

	m, err := manifest.Load(path)
	if err != nil {
		result.Status = StatusFail
		result.Detail = fmt.Sprintf("cannot load manifest: %v", err)
		return result
	}

	contextRoot := filepath.Join(filepath.Dir(path), m.Source.Path)
	current, err := deps.Fingerprint(contextRoot, m.Dependencies.Manager, m.Dependencies.Files)
	if err != nil {
		result.Status = StatusFail
		result.Detail = fmt.Sprintf("cannot fingerprint current dependencies: %v", err)
		return result
	}

	if current != builtDigest {
		result.Status = StatusFail
		result.Detail = fmt.Sprintf(
			"dependency set drifted since the build: current %s, image built from %s",
			shortDigest(current), shortDigest(builtDigest),
		)
		return result
	}

	result.Status = StatusPass
	result.Detail = fmt.Sprintf("dependency fingerprint %s matches the image", shortDigest(current))
	return result
}

// checkHTTP sends one GET to the published port and requires a 2xx
// response. Only meaningful for HTTP servers, so it runs solely when a
// path was requested.
func checkHTTP(ctx context.Context, c model.ContainerInfo, hostPort int, path string, timeout time.Duration) CheckResult {
	result := CheckResult{Name: "http"}

	if path == "" {
		result.Status = StatusSkip
		result.Detail = "no http path requested"
		return result
	}
	if c.State != "running" || hostPort == 0 {
		result.Status = StatusSkip
		result.Detail = "server is not running on a published port"
		return result
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := fmt.Sprintf("http://%s:%d%s", probeHost, hostPort, path)

	// Give the server the same startup grace the bind-port check gets;
	// a connection refused here usually just means we won the race.
	if err := port.WaitListening(ctx, probeHost, hostPort, timeout); err != nil {
		result.Status = StatusFail
		result.Detail = fmt.Sprintf("GET %s: %v", url, err)
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Status = StatusFail
		result.Detail = fmt.Sprintf("GET %s: %v", url, err)
		return result
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		result.Status = StatusFail
		result.Detail = fmt.Sprintf("GET %s: %v", url, err)
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result.Status = StatusFail
		result.Detail = fmt.Sprintf("GET %s returned %d, expected 2xx", url, resp.StatusCode)
		return result
	}

	result.Status = StatusPass
	result.Detail = fmt.Sprintf("GET %s returned %d", url, resp.StatusCode)
	return result
}

// shortDigest abbreviates a fingerprint for one-line details.
func shortDigest(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}

// joinPorts renders a documented-port list for a detail line.
func joinPorts(ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = fmt.Sprintf("%d", p)
	}
	return strings.Join(parts, ", ")
}
