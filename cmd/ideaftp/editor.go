package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// editorCommand returns the editor from $VISUAL or $EDITOR, falling back to
// the platform default
func editorCommand() []string {
	for _, env := range []string{"VISUAL", "EDITOR"} {
		if v := strings.Fields(os.Getenv(env)); len(v) > 0 {
			return v
		}
	}
	if runtime.GOOS == "windows" {
		return []string{"notepad"}
	}
	return []string{"vi"}
}

func runEditor(ctx context.Context, a *app, file string) error {
	argv := append(editorCommand(), file)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = a.in
	cmd.Stdout = a.out
	cmd.Stderr = a.errOut
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("editor %s: %w", argv[0], err)
	}
	return nil
}

// cmdEdit downloads a remote file into the staging directory, opens it in
// the editor and uploads it back when it changed
func cmdEdit(ctx context.Context, a *app, args []string) error {
	rest, err := parseArgs(newFlagSet(a, "edit", "<name> <path>"), args, 2, 2)
	if err != nil {
		return err
	}
	name, remotePath := rest[0], rest[1]

	var staged string
	err = a.withRetry(ctx, "download", func() error {
		var err error
		staged, err = a.svc.Open(ctx, name, remotePath)
		return err
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.svc.CloseStaged(staged); err != nil {
			a.log.Warn("failed to remove staged file", zap.String("path", staged), zap.Error(err))
		}
	}()

	before, err := os.ReadFile(staged)
	if err != nil {
		return err
	}
	if err := runEditor(ctx, a, staged); err != nil {
		return err
	}
	after, err := os.ReadFile(staged)
	if err != nil {
		return err
	}
	if bytes.Equal(before, after) {
		fmt.Fprintln(a.out, "no changes")
		return nil
	}

	return a.withRetry(ctx, "upload", func() error {
		res, err := a.svc.UploadTo(ctx, name, staged, remotePath)
		if err == nil {
			fmt.Fprintf(a.out, "saved %s:%s (%d bytes)\n", res.Profile, res.RemotePath, res.Bytes)
		}
		return err
	})
}
