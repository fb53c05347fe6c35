package config

import (
	"encoding/json"
	"time"

	homedir "github.com/mitchellh/go-homedir"

	"github.com/sidkik/repocheck/pkg/errors"
)

const (
	// UserConfigPath is the default path to the repocheck user config.
	UserConfigPath = "~/.repocheck.yaml"

	// InitialUserConfigVersion is the first version of the user config.
	// Config files that do not specify a version will default to this
	// version.
	InitialUserConfigVersion = "v1"

	// SupportedUserConfigVersion is the version of the user config
	// understood by this binary.
	SupportedUserConfigVersion = "v1"

	// DefaultWorkers checks one file at a time.
	DefaultWorkers = 1

	// DefaultBufferSize is the size of the buffer used to hash each file.
	DefaultBufferSize = 1 << 20
)

// User contains the user's defaults for checking mirrors. Command line flags
// take precedence.
type User struct {
	Version      string   `json:"version,omitempty"`
	Workers      int      `json:"workers,omitempty"`
	BufferSize   int      `json:"bufferSize,omitempty"`
	FetchTimeout Duration `json:"fetchTimeout,omitempty"`

	// CheckHash is a pointer so that an explicit `false` can be told apart
	// from an absent field.
	CheckHash *bool `json:"checkHash,omitempty"`
}

func (u User) getVersion() string {
	return u.Version
}

// HashesChecked returns whether file contents should be hashed. Defaults to
// true.
func (u User) HashesChecked() bool {
	return u.CheckHash == nil || *u.CheckHash
}

// Duration is a time.Duration that's written as a Go duration string, such
// as "90s", in the config file.
type Duration struct {
	time.Duration
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("duration must be a string such as \"30s\"")
	}

	parsed, err := time.ParseDuration(str)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// DefaultUser returns the config used when the user hasn't written one.
func DefaultUser() User {
	return User{
		Version:    SupportedUserConfigVersion,
		Workers:    DefaultWorkers,
		BufferSize: DefaultBufferSize,
	}
}

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// ParseUser parses the user config at path, or at UserConfigPath if path is
// empty. A missing file at the default path isn't an error: the defaults are
// returned instead.
func ParseUser(path string) (User, error) {
	explicit := path != ""
	if !explicit {
		path = UserConfigPath
	}

	path, err := homedirExpand(path)
	if err != nil {
		return User{}, errors.WithContext(err, "expand config path")
	}

	config := User{Version: InitialUserConfigVersion}
	if err := parseConfig(path, &config, SupportedUserConfigVersion); err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			if !explicit {
				return DefaultUser(), nil
			}
			return User{}, errors.NewFriendlyError(
				"The config file %q doesn't exist.", path)
		}
		return User{}, errors.WithContext(err, "parse")
	}

	if err := config.validate(path); err != nil {
		return User{}, err
	}

	if config.Workers == 0 {
		config.Workers = DefaultWorkers
	}
	if config.BufferSize == 0 {
		config.BufferSize = DefaultBufferSize
	}
	return config, nil
}

func (u User) validate(path string) error {
	switch {
	case u.Workers < 0:
		return errors.NewFriendlyError("%s: workers must not be negative, got %d",
			path, u.Workers)
	case u.BufferSize < 0:
		return errors.NewFriendlyError("%s: bufferSize must not be negative, got %d",
			path, u.BufferSize)
	case u.FetchTimeout.Duration < 0:
		return errors.NewFriendlyError("%s: fetchTimeout must not be negative, got %s",
			path, u.FetchTimeout)
	}
	return nil
}
