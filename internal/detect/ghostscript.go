package detect

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

func (p *Pipeline) renderPage(ctx context.Context, inputPath, outputPath string) error {
	args := ghostscriptArgs(outputPath, inputPath, p.dpi)

	cmd := exec.CommandContext(ctx, p.gsPath, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ghostscript render failed: %s: %w", output.String(), err)
	}
	return nil
}

func ghostscriptArgs(outputPath, inputPath string, dpi int) []string {
	return []string{
		"-sDEVICE=png16m",
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		fmt.Sprintf("-r%d", dpi),
		fmt.Sprintf("-sOutputFile=%s", outputPath),
		inputPath,
	}
}
