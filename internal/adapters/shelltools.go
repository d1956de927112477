package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"pkg-exporter/internal/ports"
)

const (
	defaultCreaterepoBinary = "createrepo_c"
	defaultModifyrepoBinary = "modifyrepo_c"
	defaultInspectorBinary  = "rpm"
	defaultSudoBinary       = "sudo"
)

// RepoMetadataAdapter shells out to the createrepo_c tool family.
type RepoMetadataAdapter struct {
	Createrepo string
	Modifyrepo string
}

func NewRepoMetadataAdapter() RepoMetadataAdapter {
	return RepoMetadataAdapter{
		Createrepo: defaultCreaterepoBinary,
		Modifyrepo: defaultModifyrepoBinary,
	}
}

func (a RepoMetadataAdapter) Regenerate(ctx context.Context, repoPath string, preserveCustomMetadata bool) error {
	args := []string{"--update"}
	if preserveCustomMetadata {
		args = append(args, "--keep-all-metadata")
	}
	args = append(args, repoPath)
	return runTool(ctx, a.Createrepo, args...)
}

func (a RepoMetadataAdapter) Patch(ctx context.Context, metadataType string, inputFile string, targetDir string) error {
	return runTool(ctx, a.Modifyrepo,
		fmt.Sprintf("--mdtype=%s", metadataType), inputFile, targetDir)
}

// PackageInspectorAdapter reads package header information through the
// external inspector, elevated because exported trees are owned by the
// service user while not held by the operator.
type PackageInspectorAdapter struct {
	Sudo      string
	Inspector string
}

func NewPackageInspectorAdapter() PackageInspectorAdapter {
	return PackageInspectorAdapter{
		Sudo:      defaultSudoBinary,
		Inspector: defaultInspectorBinary,
	}
}

// Inspect runs the inspector on one package file. A non-zero tool exit
// is reported through InspectResult.ExitCode, not as an error; the error
// return covers invocation failures only.
func (a PackageInspectorAdapter) Inspect(ctx context.Context, filePath string) (ports.InspectResult, error) {
	cmd := exec.CommandContext(ctx, a.Sudo, a.Inspector, "-qip", filePath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	result := ports.InspectResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to invoke package inspector").
			WithCause(err)
	}
	return result, nil
}

// OwnershipAdapter transfers filesystem ownership via the privilege
// elevation tool.
type OwnershipAdapter struct {
	Sudo string
}

func NewOwnershipAdapter() OwnershipAdapter {
	return OwnershipAdapter{Sudo: defaultSudoBinary}
}

func (a OwnershipAdapter) Chown(ctx context.Context, path string, owner string, recursive bool) error {
	args := []string{"chown"}
	if recursive {
		args = append(args, "-R")
	}
	args = append(args, fmt.Sprintf("%s:%s", owner, owner), path)
	return runTool(ctx, a.Sudo, args...)
}

// RemoveMetadataSnippets deletes stray partial-modulemd artifact files
// left behind by metadata generation so they never leak into the final
// repository.
func RemoveMetadataSnippets(root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), "snippet") {
			return nil
		}
		return os.Remove(path)
	})
}

func runTool(ctx context.Context, binary string, args ...string) error {
	cmd := exec.CommandContext(ctx, binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("%s invocation failed", binary)).
			WithCause(fmt.Errorf("%s: %w", strings.TrimSpace(string(output)), err))
	}
	return nil
}

var (
	_ ports.RepoMetadataPort     = RepoMetadataAdapter{}
	_ ports.PackageInspectorPort = PackageInspectorAdapter{}
	_ ports.OwnershipPort        = OwnershipAdapter{}
)
