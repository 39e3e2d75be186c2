// compose.go generates the docker-compose equivalent of a bootstrap's run
// configuration, so a team migrating off gangway keeps identical runtime
// semantics: same image, same published port, same labels, and the same
// no-restart policy that makes a server exit observable.
//
// The generated file intentionally mirrors what `gangway run` would do
// rather than what the manifest documents — in particular the published
// port is the server's bind port, never the EXPOSE value, so a manifest
// carrying the documented-port defect migrates with the defect still
// visible in the image and still harmless at run time.
package compose

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/gangway/internal/docker"
	"github.com/mmr-tortoise/gangway/internal/model"
)

// ServiceSpec describes the single service a bootstrap runs, in the terms
// `gangway run` resolved them to.
type ServiceSpec struct {
	// App is the bootstrap's app name, used as the compose service name.
	App string

	// Image is the image reference the service runs.
	Image string

	// ContainerName fixes the container name so compose-started containers
	// collide with gangway-started ones instead of silently coexisting.
	ContainerName string

	// BindPort is the container port the server binds.
	BindPort int

	// HostPort is the host port the bind port publishes to. Zero omits
	// the ports section entirely (an unpublished run).
	HostPort int

	// EnvFile optionally names a dotenv file loaded at container start,
	// relative to the compose file.
	EnvFile string

	// Labels carry the gangway.* schema so compose-started containers
	// stay visible to `gangway list` and `gangway verify`.
	Labels map[string]string
}

// composeFile is the serialized document layout. Only the fields gangway
// manages are emitted; compose fills in its own defaults for the rest.
type composeFile struct {
	Services map[string]composeService `yaml:"services"`
}

// composeService is one service entry.
type composeService struct {
	Image         string            `yaml:"image"`
	ContainerName string            `yaml:"container_name,omitempty"`
	Ports         []string          `yaml:"ports,omitempty"`
	EnvFile       []string          `yaml:"env_file,omitempty"`
	Labels        map[string]string `yaml:"labels,omitempty"`

	// Restart is always "no": the bootstrap contract has no supervision,
	// and a restart loop would hide the server's exit code.
	Restart string `yaml:"restart"`
}

// Generate renders the compose document for a service spec. Output is
// deterministic — yaml.v3 marshals maps with sorted keys — and carries a
// generated-file header naming the app it derives from.
func Generate(spec ServiceSpec) ([]byte, error) {
	if spec.App == "" {
		return nil, fmt.Errorf("cannot generate compose file without an app name")
	}
	if spec.Image == "" {
		return nil, fmt.Errorf("cannot generate compose file without an image reference")
	}

	svc := composeService{
		Image:         spec.Image,
		ContainerName: spec.ContainerName,
		Labels:        spec.Labels,
		Restart:       "no",
	}

	if spec.HostPort > 0 && spec.BindPort > 0 {
		// Standard short syntax, quoted by the YAML encoder:
		// "hostPort:containerPort".
		svc.Ports = []string{strconv.Itoa(spec.HostPort) + ":" + strconv.Itoa(spec.BindPort)}
	}

	if spec.EnvFile != "" {
		svc.EnvFile = []string{spec.EnvFile}
	}

	doc := composeFile{
		Services: map[string]composeService{spec.App: svc},
	}

	yamlBytes, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize compose file: %w", err)
	}

	header := fmt.Sprintf(
		"# Generated by gangway for %q. DO NOT EDIT.\n# Reproduces the `gangway run` configuration: one service, no restart.\n",
		spec.App,
	)

	return []byte(header + string(yamlBytes)), nil
}

// FromBootstrap builds the service spec for a reconstructed bootstrap,
// reading the image and ports the way run resolved them: the image is the
// reference recorded at build time, and the published port is the bind
// port's current host mapping (zero when not published).
//
// Labels come from docker.BuildLabels so the compose file carries exactly
// the schema a gangway-started container would.
func FromBootstrap(b *model.Bootstrap, image string, envFile string) ServiceSpec {
	hostPort := 0
	for _, c := range b.Containers {
		for _, p := range c.Ports {
			if p.ContainerPort == b.BindPort && p.HostPort != 0 {
				hostPort = p.HostPort
			}
		}
	}

	return ServiceSpec{
		App:           b.App,
		Image:         image,
		ContainerName: docker.ContainerName(b.App),
		BindPort:      b.BindPort,
		HostPort:      hostPort,
		EnvFile:       envFile,
		Labels:        docker.BuildLabels(b),
	}
}

// WriteFile writes the generated compose bytes to path, creating parent
// directories as needed. 0644 matches how the rest of the tool writes
// generated artifacts.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
