// Package flagx holds pflag helpers shared by the server and client config
// loaders.
//
// Several components read their own flags from the same argument list. Each
// one builds a pflag.FlagSet with just the flags it owns and parses it with
// ParseKnown, which drops every argument the set does not define. The JSON
// config path is resolved the same way by ConfigPath before any other flag is
// parsed, so the file can be loaded first and flags can override it.
package flagx

import (
	"io"
	"strings"

	"github.com/spf13/pflag"
)

const (
	ConfigFlag      = "config"
	ConfigShorthand = "c"
)

// AddConfigFlag registers -c/--config on fs.
func AddConfigFlag(fs *pflag.FlagSet) *string {
	return fs.StringP(ConfigFlag, ConfigShorthand, "", "path to JSON config file")
}

// ConfigPath returns the value of -c/--config in args, or "" when absent.
// The single dash form -config is accepted too.
func ConfigPath(args []string) (string, error) {
	fs := pflag.NewFlagSet(ConfigFlag, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	path := AddConfigFlag(fs)
	if err := ParseKnown(fs, args); err != nil {
		return "", err
	}
	return *path, nil
}

// ParseKnown parses only the arguments fs knows about.
func ParseKnown(fs *pflag.FlagSet, args []string) error {
	return fs.Parse(FilterArgs(args, fs))
}

// FilterArgs returns the flags from args that fs defines, together with
// their values. Supported forms:
//
//	--name value   --name=value   -n value   -n=value   -nvalue
//
// A single dash long name (-name) is rewritten to --name when fs has a long
// flag with that name. Positional arguments and unknown flags are dropped.
// Scanning stops at "--".
func FilterArgs(args []string, fs *pflag.FlagSet) []string {
	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		if len(arg) < 2 || arg[0] != '-' {
			continue
		}

		f, norm, inline := lookup(fs, arg)
		if f == nil {
			continue
		}
		filtered = append(filtered, norm)
		if inline || f.NoOptDefVal != "" {
			continue
		}
		// value in the next argument, unless that looks like a flag
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}

	return filtered
}

// lookup resolves arg to a flag of fs. It returns the argument in the form
// pflag expects and whether the value is already attached to it.
func lookup(fs *pflag.FlagSet, arg string) (*pflag.Flag, string, bool) {
	if strings.HasPrefix(arg, "--") {
		name, _, hasValue := strings.Cut(arg[2:], "=")
		return fs.Lookup(name), arg, hasValue
	}

	body := arg[1:]
	name, _, hasValue := strings.Cut(body, "=")
	if len(name) > 1 {
		if f := fs.Lookup(name); f != nil {
			return f, "-" + arg, hasValue
		}
	}

	f := fs.ShorthandLookup(body[:1])
	if f == nil {
		return nil, "", false
	}
	return f, arg, len(body) > 1
}
