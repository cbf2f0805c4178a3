package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/dmitrijs2005/zkshare/internal/client/config"
	"github.com/dmitrijs2005/zkshare/internal/client/services"
	"github.com/dmitrijs2005/zkshare/internal/common"
	"github.com/dmitrijs2005/zkshare/internal/logging"
	"github.com/dmitrijs2005/zkshare/internal/sharelink"
)

// ErrUsage is returned when the command line cannot be understood. Usage
// has already been printed.
var ErrUsage = errors.New("usage error")

type command struct {
	args  string
	nargs int
	help  string
	flags func(fs *pflag.FlagSet)
	run   func(a *App, ctx context.Context, fs *pflag.FlagSet) error
}

var commands = map[string]command{
	"upload": {
		args: "<file>", nargs: 1, help: "encrypt a file and upload it",
		flags: func(fs *pflag.FlagSet) {
			fs.Bool("password", false, "protect the link with a password instead of a key")
			fs.Int("ttl", common.DefaultTTLHours, "hours until the share expires (1-168)")
			fs.IntP("downloads", "n", common.MinDownloads, "maximum number of downloads (1-1000)")
		},
		run: (*App).upload,
	},
	"download": {
		args: "<link>", nargs: 1, help: "download and decrypt a share link",
		flags: func(fs *pflag.FlagSet) {
			fs.Bool("password", false, "prompt for a password even if the link does not ask for one")
			fs.StringP("output", "o", "", "output file (default: the file id)")
			fs.Bool("force", false, "overwrite an existing output file")
		},
		run: (*App).download,
	},
	"info": {
		args: "<fileId|link>", nargs: 1, help: "show the state of a share without downloading it",
		run: (*App).info,
	},
	"extend": {
		args: "<fileId>", nargs: 1, help: "extend the lifetime of a share you sent",
		flags: func(fs *pflag.FlagSet) {
			fs.String("token", "", "manage token (default: from local history)")
			fs.Int("hours", common.DefaultTTLHours, "hours to add")
		},
		run: (*App).extend,
	},
	"delete": {
		args: "<fileId>", nargs: 1, help: "delete a share you sent",
		flags: func(fs *pflag.FlagSet) {
			fs.String("token", "", "manage token (default: from local history)")
		},
		run: (*App).delete,
	},
	"list": {
		help: "list shares remembered in the local history",
		run:  (*App).list,
	},
}

func printUsage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "Usage: zkshare <command> [flags] [args]")
	fmt.Fprintln(w)
	for _, name := range names {
		c := commands[name]
		fmt.Fprintf(w, "  %-9s %-14s %s\n", name, c.args, c.help)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, `Run "zkshare <command> --help" for flags.`)
}

// Run executes the command in args (program name excluded).
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage(stdout)
		if len(args) == 0 {
			return ErrUsage
		}
		return nil
	}

	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		printUsage(stderr)
		return ErrUsage
	}

	fs := pflag.NewFlagSet("zkshare "+name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.BoolP("verbose", "v", false, "log progress to stderr")
	if cmd.flags != nil {
		cmd.flags(fs)
	}

	cfg, err := config.LoadConfig(fs, args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if fs.NArg() != cmd.nargs {
		fmt.Fprintf(stderr, "usage: zkshare %s [flags] %s\n", name, cmd.args)
		return ErrUsage
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := logging.New(stderr, level, false)

	app, err := NewApp(ctx, cfg, logger, stdin, stdout)
	if err != nil {
		return err
	}
	defer app.Close()

	return cmd.run(app, ctx, fs)
}

func (a *App) upload(ctx context.Context, fs *pflag.FlagSet) error {
	usePassword, _ := fs.GetBool("password")
	ttl, _ := fs.GetInt("ttl")
	downloads, _ := fs.GetInt("downloads")

	opts := services.UploadOptions{TTLHours: ttl, MaxDownloads: downloads}
	if usePassword {
		pw, err := GetNewPassword(a.out)
		if err != nil {
			return err
		}
		defer common.WipeByteArray(pw)
		opts.Password = string(pw)
	}

	sent, err := a.svc.UploadFile(ctx, fs.Arg(0), opts)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Share link:   %s\n", sent.Link)
	fmt.Fprintf(a.out, "Expires:      %s\n", sent.ExpiresAt.Local().Format(time.RFC1123))
	fmt.Fprintf(a.out, "Downloads:    %d\n", downloads)
	fmt.Fprintf(a.out, "Manage token: %s\n", sent.ManageToken)
	if usePassword {
		fmt.Fprintln(a.out, "Send the password to the recipient separately.")
	}
	return nil
}

func (a *App) download(ctx context.Context, fs *pflag.FlagSet) error {
	raw := fs.Arg(0)
	link, err := sharelink.Parse(raw)
	if err != nil {
		return err
	}

	forcePassword, _ := fs.GetBool("password")
	force, _ := fs.GetBool("force")
	output, _ := fs.GetString("output")
	if output == "" {
		output = link.FileID
	}

	if !force {
		if _, err := os.Stat(output); err == nil {
			return fmt.Errorf("%s already exists, use --force to overwrite", output)
		}
	}

	var password string
	if link.RequiresPassword() || forcePassword {
		pw, err := GetPassword(a.out, "Enter password: ")
		if err != nil {
			return err
		}
		defer common.WipeByteArray(pw)
		password = string(pw)
	}

	got, err := a.svc.Download(ctx, raw, password)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(got.Data)

	if err := os.WriteFile(output, got.Data, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Saved %d bytes to %s (downloads left: %d)\n", len(got.Data), output, got.RemainingDownloads)
	return nil
}

// fileIDFromArg accepts a bare file id or any form of share link.
func fileIDFromArg(arg string) string {
	if sharelink.ValidFileID(arg) {
		return arg
	}
	base, _, _ := strings.Cut(arg, "#")
	if i := strings.LastIndex(base, "/s/"); i >= 0 {
		return base[i+3:]
	}
	return arg
}

func (a *App) info(ctx context.Context, fs *pflag.FlagSet) error {
	m, err := a.svc.Info(ctx, fileIDFromArg(fs.Arg(0)))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "File:      %s\n", m.FileID)
	fmt.Fprintf(a.out, "State:     %s\n", m.State)
	fmt.Fprintf(a.out, "Size:      %d bytes (encrypted)\n", m.Size)
	fmt.Fprintf(a.out, "Uploaded:  %s\n", m.UploadedAt.Local().Format(time.RFC1123))
	fmt.Fprintf(a.out, "Expires:   %s\n", m.ExpiresAt.Local().Format(time.RFC1123))
	fmt.Fprintf(a.out, "Downloads: %d of %d\n", m.DownloadCount, m.MaxDownloads)
	fmt.Fprintf(a.out, "Password:  %t\n", m.PasswordProtected)
	return nil
}

func (a *App) extend(ctx context.Context, fs *pflag.FlagSet) error {
	token, _ := fs.GetString("token")
	hours, _ := fs.GetInt("hours")

	expiresAt, err := a.svc.Extend(ctx, fs.Arg(0), token, hours)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Expires: %s\n", expiresAt.Local().Format(time.RFC1123))
	return nil
}

func (a *App) delete(ctx context.Context, fs *pflag.FlagSet) error {
	token, _ := fs.GetString("token")
	if err := a.svc.Delete(ctx, fs.Arg(0), token); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Deleted.")
	return nil
}

func (a *App) list(ctx context.Context, _ *pflag.FlagSet) error {
	list, err := a.svc.History(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No shares in local history.")
		return nil
	}
	for _, s := range list {
		pw := ""
		if s.PasswordProtected {
			pw = " (password)"
		}
		fmt.Fprintf(a.out, "%s  expires %s  %s%s\n", s.FileID, s.ExpiresAt.Local().Format(time.RFC3339), s.ShareURL, pw)
	}
	return nil
}
