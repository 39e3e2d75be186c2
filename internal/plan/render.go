package plan

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/disiqueira/gotree"
)

// dockerfileTemplate renders a compiled plan as a Dockerfile. The header
// marks the file as generated and pins the manifest digest it derives
// from, so a stale file is detectable. Step comments carry the sequence
// number and kind; the instructions follow verbatim.
var dockerfileTemplate = template.Must(template.New("dockerfile").Parse(
	`# Generated by gangway for {{.App}}. DO NOT EDIT.
# manifest: sha256:{{.ManifestDigest}}
{{range .Steps}}
# {{.Seq}}. {{.Kind}}
{{.Instruction}}
{{end}}`))

// Render produces the Dockerfile text for a plan. Rendering is
// deterministic: the same plan always yields byte-identical output,
// which keeps the build-context digest meaningful.
func Render(p *Plan) (string, error) {
	var buf strings.Builder
	if err := dockerfileTemplate.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("failed to render dockerfile: %w", err)
	}
	return buf.String(), nil
}

// Tree renders the plan as a tree for human inspection, one node per
// step with its instruction nested under it.
func Tree(p *Plan) string {
	root := gotree.New(fmt.Sprintf("build plan: %s (manifest sha256:%s)", p.App, shortDigest(p.ManifestDigest)))
	for _, step := range p.Steps {
		node := root.Add(fmt.Sprintf("%d. %s — %s", step.Seq, step.Kind, step.Description))
		for _, line := range strings.Split(step.Instruction, "\n") {
			node.Add(line)
		}
	}
	return root.Print()
}

// shortDigest abbreviates a hex digest for display.
func shortDigest(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
