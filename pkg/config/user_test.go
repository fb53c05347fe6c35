package config

import (
	"fmt"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"

	"github.com/sidkik/repocheck/pkg/errors"
)

func TestParseUser(t *testing.T) {
	out := ".repocheck.yaml"
	no := false

	tests := []struct {
		name      string
		input     string
		expConfig User
		expError  error
	}{
		{
			name:  "empty version",
			input: "workers: 4\n",
			expConfig: User{
				Version:    InitialUserConfigVersion,
				Workers:    4,
				BufferSize: DefaultBufferSize,
			},
		},
		{
			name: "all fields",
			input: fmt.Sprintf("version: %s\nworkers: 8\nbufferSize: 4096\n"+
				"fetchTimeout: 90s\ncheckHash: false\n", SupportedUserConfigVersion),
			expConfig: User{
				Version:      SupportedUserConfigVersion,
				Workers:      8,
				BufferSize:   4096,
				FetchTimeout: Duration{90 * time.Second},
				CheckHash:    &no,
			},
		},
		{
			name:  "incorrect version",
			input: "version: incorrect_version\nworkers: 2\n",
			expError: errors.WithContext(incompatibleVersionError{
				path:   out,
				exp:    SupportedUserConfigVersion,
				actual: "incorrect_version",
			}, "parse"),
		},
		{
			name:  "version is checked before extra fields",
			input: "version: incorrect_version\nextra: fields\n",
			expError: errors.WithContext(incompatibleVersionError{
				path:   out,
				exp:    SupportedUserConfigVersion,
				actual: "incorrect_version",
			}, "parse"),
		},
		{
			name:  "extra fields",
			input: fmt.Sprintf("version: %s\nextra: fields", SupportedUserConfigVersion),
			expError: errors.WithContext(
				errors.NewFriendlyError(parseConfigErrTemplate, out,
					errors.New("error unmarshaling JSON: while decoding JSON: "+
						`json: unknown field "extra"`)),
				"parse"),
		},
		{
			name:     "negative workers",
			input:    "workers: -1\n",
			expError: errors.NewFriendlyError("%s: workers must not be negative, got %d", out, -1),
		},
	}

	homedirExpand = func(path string) (string, error) {
		return out, nil
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fs = afero.NewMemMapFs()
			assert.NoError(t, afero.WriteFile(fs, out, []byte(test.input), 0644))

			config, err := ParseUser("")
			assert.Equal(t, test.expConfig, config)
			assert.Equal(t, test.expError, err)
		})
	}
}

func TestParseUserBadDuration(t *testing.T) {
	fs = afero.NewMemMapFs()
	homedirExpand = func(path string) (string, error) {
		return path, nil
	}

	assert.NoError(t, afero.WriteFile(fs, "cfg.yaml", []byte("fetchTimeout: soon\n"), 0644))
	_, err := ParseUser("cfg.yaml")
	assert.Error(t, err)
	_, ok := errors.GetFriendlyError(err)
	assert.True(t, ok)
}

func TestParseUserMissing(t *testing.T) {
	fs = afero.NewMemMapFs()
	homedirExpand = func(path string) (string, error) {
		return "/home/user/.repocheck.yaml", nil
	}

	// The default config is optional.
	config, err := ParseUser("")
	assert.NoError(t, err)
	assert.Equal(t, DefaultUser(), config)
	assert.True(t, config.HashesChecked())

	// But a config the user asked for isn't.
	_, err = ParseUser("/etc/repocheck.yaml")
	assert.Equal(t, errors.NewFriendlyError(
		"The config file %q doesn't exist.", "/home/user/.repocheck.yaml"), err)
}
