package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ahrav/frostfile/internal/infra/hasher"
)

func newHashCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "hash FILE...",
		Short: "Print the SHA-256 digest used for signature lookup",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.hash(cmd, args)
		},
	}
}

// hash prints one "digest  path" line per file in the sha256sum layout.
func (a *app) hash(cmd *cobra.Command, paths []string) error {
	ctx := cmd.Context()
	h := hasher.New(a.fs, hasher.WithChunkSize(a.cfg.Scanner.ChunkSize))

	failed := 0
	for _, path := range paths {
		digest, _, err := h.HashFile(ctx, path)
		if err != nil {
			a.log.Error(ctx, "Failed to hash file", "path", path, "error", err)
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", digest, path)
	}

	if failed > 0 {
		return &exitError{code: exitFatal, err: fmt.Errorf("%d of %d files could not be hashed", failed, len(paths))}
	}
	return nil
}
