package flagx

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddConfigFlag(fs)
	fs.StringP("address", "a", "", "")
	fs.Bool("presign", false, "")
	return fs
}

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "short flag with separate value",
			args: []string{"-c", "conf.json", "-x", "localhost"},
			want: []string{"-c", "conf.json"},
		},
		{
			name: "long flag with equals",
			args: []string{"--config=alt.json", "-x", "localhost"},
			want: []string{"--config=alt.json"},
		},
		{
			name: "single dash long name is normalized",
			args: []string{"-config", "old.json"},
			want: []string{"--config", "old.json"},
		},
		{
			name: "both short and long present, preserve order",
			args: []string{"--config=first.json", "-c", "second.json", "-x", "1"},
			want: []string{"--config=first.json", "-c", "second.json"},
		},
		{
			name: "unknown flags and positionals ignored",
			args: []string{"-x", "1", "--y=2", "positional"},
			want: []string{},
		},
		{
			name: "flag without value at end is kept as-is",
			args: []string{"-c"},
			want: []string{"-c"},
		},
		{
			name: "flag followed by another flag",
			args: []string{"-c", "-notvalue"},
			want: []string{"-c"},
		},
		{
			name: "attached shorthand value",
			args: []string{"-a:8080"},
			want: []string{"-a:8080"},
		},
		{
			name: "bool flag does not consume the next argument",
			args: []string{"--presign", "file.bin", "-a", ":9000"},
			want: []string{"--presign", "-a", ":9000"},
		},
		{
			name: "stops at double dash",
			args: []string{"-a", ":1", "--", "-c", "x.json"},
			want: []string{"-a", ":1"},
		},
		{
			name: "empty args",
			args: []string{},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterArgs(tt.args, testFlagSet())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKnown(t *testing.T) {
	fs := testFlagSet()
	require.NoError(t, ParseKnown(fs, []string{"upload", "-a", ":9000", "--unknown", "v", "--presign"}))

	addr, err := fs.GetString("address")
	require.NoError(t, err)
	assert.Equal(t, ":9000", addr)

	presign, err := fs.GetBool("presign")
	require.NoError(t, err)
	assert.True(t, presign)
}

func TestConfigPath(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"short -c with value", []string{"-c", "/path/short.json"}, "/path/short.json"},
		{"long --config with value", []string{"--config", "/path/long.json"}, "/path/long.json"},
		{"single dash -config", []string{"-config", "/path/old.json"}, "/path/old.json"},
		{"unknown flags are ignored", []string{"-x", "1", "-y", "2"}, ""},
		{"last wins", []string{"-c", "/path/1.json", "--config=/path/2.json"}, "/path/2.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConfigPath(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigPath_MissingValue(t *testing.T) {
	_, err := ConfigPath([]string{"-c"})
	assert.Error(t, err)
}
