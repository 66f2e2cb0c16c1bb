package diagram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// CommandRenderer runs an external diagram tool once per schema and format.
//
// Each argument may contain {dsn}, {schema}, {output} and {format}
// placeholders. The tool must write the file named by {output}.
type CommandRenderer struct {
	argv []string
}

// NewCommandRenderer parses a whitespace-separated command template.
func NewCommandRenderer(template string) (*CommandRenderer, error) {
	argv := strings.Fields(template)
	if len(argv) == 0 {
		return nil, errors.New("empty diagram command")
	}
	return &CommandRenderer{argv: argv}, nil
}

// Args expands the template for req.
func (r *CommandRenderer) Args(req RenderRequest) []string {
	rep := strings.NewReplacer(
		"{dsn}", req.DSN,
		"{schema}", req.Schema,
		"{output}", req.Path,
		"{format}", req.Format,
	)
	args := make([]string, len(r.argv))
	for i, a := range r.argv {
		args[i] = rep.Replace(a)
	}
	return args
}

// Render implements Renderer.
func (r *CommandRenderer) Render(ctx context.Context, req RenderRequest) error {
	args := r.Args(req)

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", args[0], err, strings.TrimSpace(out.String()))
	}

	if _, err := os.Stat(req.Path); err != nil {
		return fmt.Errorf("%s did not write %s: %w", args[0], req.Path, err)
	}
	return nil
}
