package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"go.uber.org/zap"

	"github.com/quocson95/ideaftp/pkg/backup"
	"github.com/quocson95/ideaftp/pkg/deploy"
	"github.com/quocson95/ideaftp/pkg/profile"
	"github.com/quocson95/ideaftp/pkg/remote"
	"github.com/quocson95/ideaftp/pkg/s3"
	"github.com/quocson95/ideaftp/pkg/tui"
)

// errUsage is returned after a command printed its own usage
var errUsage = errors.New("usage")

type command struct {
	op   string // operation name used in error messages
	help string
	run  func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"profiles":      {op: "profiles", help: "list configured profiles", run: cmdProfiles},
	"profile-add":   {op: "save profile", help: "add a profile, or replace the one at -index", run: cmdProfileAdd},
	"profile-rm":    {op: "delete profile", help: "remove the profile at -index", run: cmdProfileRm},
	"test":          {op: "test connection", help: "test <name>: check that a profile can connect", run: cmdTest},
	"ls":            {op: "list", help: "ls <name> [dir]: list a remote directory", run: cmdList},
	"dirs":          {op: "list", help: "dirs <name> [dir]: list remote subdirectories", run: cmdDirs},
	"cat":           {op: "download", help: "cat <name> <path>: print a remote file", run: cmdCat},
	"get":           {op: "download", help: "get [-o file] <name> <path>: download a remote file", run: cmdGet},
	"edit":          {op: "edit", help: "edit <name> <path>: edit a remote file in $EDITOR", run: cmdEdit},
	"upload":        {op: "upload", help: "upload <local>...: upload files to their mapped profile", run: cmdUpload},
	"s3-config":     {op: "configure s3", help: "set the S3 endpoint used for backups", run: cmdS3Config},
	"backup-export": {op: "backup", help: "backup-export <file>: write an encrypted profile backup", run: cmdBackupExport},
	"backup-import": {op: "restore", help: "backup-import <file>: restore profiles from a backup file", run: cmdBackupImport},
	"backup-push":   {op: "backup", help: "upload an encrypted profile backup to S3", run: cmdBackupPush},
	"backup-pull":   {op: "restore", help: "restore profiles from the latest S3 backup", run: cmdBackupPull},
}

func newFlagSet(a *app, name, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	fs.Usage = func() {
		fmt.Fprintf(a.errOut, "Usage: ideaftp %s %s\n", name, args)
		fs.PrintDefaults()
	}
	return fs
}

// parseArgs parses flags and checks the number of positional arguments
func parseArgs(fs *flag.FlagSet, args []string, min, max int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, errUsage
	}
	rest := fs.Args()
	if len(rest) < min || (max >= 0 && len(rest) > max) {
		fs.Usage()
		return nil, errUsage
	}
	return rest, nil
}

func cmdProfiles(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "profiles", "")
	if _, err := parseArgs(fs, args, 0, 0); err != nil {
		return err
	}

	profiles, err := a.svc.Profiles()
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		fmt.Fprintln(a.out, "no profiles configured")
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "NAME", "TYPE", "ADDRESS", "USER", "LOCAL", "REMOTE")
	for i, p := range profiles {
		t.Row(strconv.Itoa(i), p.Name, string(p.Protocol), p.Addr(), p.Username, p.LocalRoot, p.RemoteRoot)
	}
	fmt.Fprintln(a.out, t.Render())
	return nil
}

func cmdProfileAdd(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "profile-add", "-name NAME -host HOST -user USER [flags]")
	index := fs.Int("index", -1, "replace the profile at this index instead of appending")
	name := fs.String("name", "", "profile name")
	proto := fs.String("type", "sftp", "protocol: ftp or sftp")
	host := fs.String("host", "", "server host")
	port := fs.Int("port", 0, "server port (default 21 for ftp, 22 for sftp)")
	user := fs.String("user", "", "user name")
	askPassword := fs.Bool("password", false, "prompt for the password")
	key := fs.String("key", "", "private key file (sftp)")
	askPassphrase := fs.Bool("passphrase", false, "prompt for the private key passphrase")
	local := fs.String("local", "", "local root directory")
	remotePath := fs.String("remote", "", "remote root directory")
	if _, err := parseArgs(fs, args, 0, 0); err != nil {
		return err
	}

	p := profile.Profile{
		Name:           *name,
		Protocol:       profile.Protocol(*proto),
		Host:           *host,
		Port:           *port,
		Username:       *user,
		PrivateKeyPath: *key,
		LocalRoot:      *local,
		RemoteRoot:     *remotePath,
	}
	var err error
	if *askPassword {
		if p.Password, err = tui.ReadPassword(ctx, a.in, a.errOut, "Password for "+p.Name, p.Username+"@"+p.Host); err != nil {
			return err
		}
	}
	if *askPassphrase {
		if p.Passphrase, err = tui.ReadPassword(ctx, a.in, a.errOut, "Key passphrase", p.PrivateKeyPath); err != nil {
			return err
		}
	}

	if err := a.svc.SaveProfile(*index, p); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "saved %s\n", p.Name)
	return nil
}

func cmdProfileRm(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "profile-rm", "-index N")
	index := fs.Int("index", -1, "index of the profile to remove")
	if _, err := parseArgs(fs, args, 0, 0); err != nil {
		return err
	}
	return a.svc.DeleteProfile(*index)
}

func cmdTest(ctx context.Context, a *app, args []string) error {
	rest, err := parseArgs(newFlagSet(a, "test", "<name>"), args, 1, 1)
	if err != nil {
		return err
	}

	profiles, err := a.svc.Profiles()
	if err != nil {
		return err
	}
	p, ok := profile.Find(profiles, rest[0])
	if !ok {
		return fmt.Errorf("%w: %s", deploy.ErrUnknownProfile, rest[0])
	}

	if err := a.withRetry(ctx, "test", func() error { return a.svc.TestConnection(ctx, p) }); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: connection ok\n", p.Name)
	return nil
}

func cmdList(ctx context.Context, a *app, args []string) error {
	return list(ctx, a, "ls", args, a.svc.Browse)
}

func cmdDirs(ctx context.Context, a *app, args []string) error {
	return list(ctx, a, "dirs", args, a.svc.BrowseDirs)
}

func list(ctx context.Context, a *app, name string, args []string,
	browse func(ctx context.Context, name, dir string) ([]remote.Entry, error)) error {
	rest, err := parseArgs(newFlagSet(a, name, "<name> [dir]"), args, 1, 2)
	if err != nil {
		return err
	}
	dir := ""
	if len(rest) == 2 {
		dir = rest[1]
	}

	entries, err := browse(ctx, rest[0], dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		kind := "-"
		if e.IsDir() {
			kind = "d"
		}
		fmt.Fprintf(a.out, "%s %s\n", kind, e.Path)
	}
	return nil
}

func (a *app) fetch(ctx context.Context, name, remotePath string) ([]byte, error) {
	var data []byte
	err := a.withRetry(ctx, "download", func() error {
		var err error
		data, err = a.svc.Fetch(ctx, name, remotePath)
		return err
	})
	return data, err
}

func cmdCat(ctx context.Context, a *app, args []string) error {
	rest, err := parseArgs(newFlagSet(a, "cat", "<name> <path>"), args, 2, 2)
	if err != nil {
		return err
	}
	data, err := a.fetch(ctx, rest[0], rest[1])
	if err != nil {
		return err
	}
	_, err = a.out.Write(data)
	return err
}

func cmdGet(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "get", "[-o file] <name> <path>")
	output := fs.String("o", "", "output file (default: the remote file name)")
	rest, err := parseArgs(fs, args, 2, 2)
	if err != nil {
		return err
	}

	data, err := a.fetch(ctx, rest[0], rest[1])
	if err != nil {
		return err
	}
	dest := *output
	if dest == "" {
		dest = path.Base(rest[1])
	}
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s -> %s (%d bytes)\n", rest[1], dest, len(data))
	return nil
}

func cmdUpload(ctx context.Context, a *app, args []string) error {
	rest, err := parseArgs(newFlagSet(a, "upload", "<local>..."), args, 1, -1)
	if err != nil {
		return err
	}

	report := func(r deploy.Result, p deploy.Progress) {
		fmt.Fprintf(a.out, "[%d/%d] %s -> %s:%s (%d bytes", p.Files, p.Total, r.LocalPath, r.Profile, r.RemotePath, r.Bytes)
		if r.DirsCreated > 0 {
			fmt.Fprintf(a.out, ", %d directories created", r.DirsCreated)
		}
		fmt.Fprintln(a.out, ")")
	}

	var results []deploy.Result
	err = a.withRetry(ctx, "upload", func() error {
		var err error
		results, err = a.svc.UploadAll(ctx, rest, report)
		return err
	})
	if err != nil {
		return err
	}
	a.log.Info("upload finished", zap.Int("files", len(results)))
	return nil
}

func (a *app) password(ctx context.Context, title string) (string, error) {
	return tui.ReadPassword(ctx, a.in, a.errOut, title, "Protects the profile backup")
}

func (a *app) sealProfiles(ctx context.Context) ([]byte, error) {
	profiles, err := a.svc.Profiles()
	if err != nil {
		return nil, err
	}
	pw, err := a.password(ctx, "Backup password")
	if err != nil {
		return nil, err
	}
	return backup.ExportProfiles(profiles, pw)
}

// restoreProfiles replaces the profile list with a sealed backup and drops
// every open session
func (a *app) restoreProfiles(ctx context.Context, sealed []byte) error {
	pw, err := a.password(ctx, "Backup password")
	if err != nil {
		return err
	}
	profiles, err := backup.ImportProfiles(sealed, pw)
	if err != nil {
		return err
	}
	if err := a.store.SaveProfiles(profiles); err != nil {
		return err
	}
	a.sessions.DisconnectAll()
	fmt.Fprintf(a.out, "restored %d profiles\n", len(profiles))
	return nil
}

func cmdBackupExport(ctx context.Context, a *app, args []string) error {
	rest, err := parseArgs(newFlagSet(a, "backup-export", "<file>"), args, 1, 1)
	if err != nil {
		return err
	}
	sealed, err := a.sealProfiles(ctx)
	if err != nil {
		return err
	}
	return os.WriteFile(rest[0], sealed, 0600)
}

func cmdBackupImport(ctx context.Context, a *app, args []string) error {
	rest, err := parseArgs(newFlagSet(a, "backup-import", "<file>"), args, 1, 1)
	if err != nil {
		return err
	}
	sealed, err := os.ReadFile(rest[0])
	if err != nil {
		return err
	}
	return a.restoreProfiles(ctx, sealed)
}

func cmdS3Config(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "s3-config", "-host URL -access-key KEY -bucket NAME")
	current := a.settings.Get()
	host := fs.String("host", current.S3Host, "S3 endpoint URL")
	accessKey := fs.String("access-key", current.S3AccessKey, "access key")
	askSecret := fs.Bool("secret", false, "prompt for the secret key")
	bucket := fs.String("bucket", current.S3Bucket, "bucket name")
	if _, err := parseArgs(fs, args, 0, 0); err != nil {
		return err
	}

	secret := current.S3SecretKey
	if *askSecret {
		var err error
		if secret, err = tui.ReadPassword(ctx, a.in, a.errOut, "S3 secret key", *host); err != nil {
			return err
		}
	}
	return a.settings.SetS3(*host, *accessKey, secret, *bucket)
}

func (a *app) s3Client(ctx context.Context) (*s3.Client, error) {
	return s3.FromSettings(ctx, a.settings.Get())
}

func cmdBackupPush(ctx context.Context, a *app, args []string) error {
	if _, err := parseArgs(newFlagSet(a, "backup-push", ""), args, 0, 0); err != nil {
		return err
	}
	client, err := a.s3Client(ctx)
	if err != nil {
		return err
	}
	sealed, err := a.sealProfiles(ctx)
	if err != nil {
		return err
	}
	key, err := client.Push(ctx, sealed)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "pushed s3://%s/%s\n", client.Bucket(), key)
	return nil
}

func cmdBackupPull(ctx context.Context, a *app, args []string) error {
	if _, err := parseArgs(newFlagSet(a, "backup-pull", ""), args, 0, 0); err != nil {
		return err
	}
	client, err := a.s3Client(ctx)
	if err != nil {
		return err
	}
	key, sealed, err := client.PullLatest(ctx)
	if err != nil {
		return err
	}
	a.log.Info("pulled backup", zap.String("key", key))
	return a.restoreProfiles(ctx, sealed)
}
