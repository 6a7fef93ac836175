package w7x

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator"
	"gopkg.in/ini.v1"

	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/common"
)

// Option names, as used in request option bags and the config file.
const (
	OptServer          = "Server"
	OptUser            = "User"
	OptVirtualNameFile = "Virtual name file"
	OptVerbose         = "Verbose"
	OptCacheData       = "Cache data"
	OptCacheDirectory  = "Cache directory"
)

// DefaultServer is the W7-X MDSplus archive server.
const DefaultServer = "mds-trm-1.ipp-hgw.mpg.de"

// ConfigSection is the config file section holding option defaults.
const ConfigSection = "Module " + SourceName

var knownOptions = []string{OptServer, OptUser, OptVirtualNameFile, OptVerbose, OptCacheData, OptCacheDirectory}

// Options controls one read.
type Options struct {
	Server          string `validate:"required"`
	User            string `validate:"required"`
	VirtualNameFile string
	Verbose         bool
	CacheData       bool
	CacheDirectory  string
}

// Config holds option defaults, usually loaded from a config file.
type Config struct {
	values map[string]string
}

// NewConfig returns an empty Config.
func NewConfig() *Config {
	return &Config{values: make(map[string]string)}
}

// LoadConfig reads the option defaults from the [Module W7X_MDSPlus]
// section of an INI file. A file without that section yields an empty
// Config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrConfigIO, path, err)
	}
	f, err := ini.LoadSources(ini.LoadOptions{
		KeyValueDelimiters:  "=",
		IgnoreInlineComment: true,
	}, data)
	if err != nil {
		return nil, fmt.Errorf("%w: config file %s: %w", common.ErrFormat, path, err)
	}

	cfg := NewConfig()
	sec, err := f.GetSection(ConfigSection)
	if err != nil {
		return cfg, nil
	}
	for _, key := range sec.Keys() {
		cfg.Set(key.Name(), key.Value())
	}
	return cfg, nil
}

// Set stores a default. Surrounding quotes are removed.
func (c *Config) Set(key, value string) {
	c.values[key] = unquote(value)
}

// Get returns a default.
func (c *Config) Get(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	v, ok := c.values[key]
	return v, ok
}

var validate = validator.New()

// MergeOptions combines built-in defaults, cfg and the request options, in
// increasing precedence, and checks that Server and User are set.
func MergeOptions(cfg *Config, request map[string]string) (Options, error) {
	for key := range request {
		if !isKnownOption(key) {
			return Options{}, fmt.Errorf("%w: unknown option %q", common.ErrInvalidOption, key)
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := request[key]; ok {
			return unquote(v), true
		}
		return cfg.Get(key)
	}

	opts := Options{Server: DefaultServer, Verbose: true}
	if v, ok := lookup(OptServer); ok {
		opts.Server = v
	}
	if v, ok := lookup(OptUser); ok {
		opts.User = v
	}
	if v, ok := lookup(OptVirtualNameFile); ok {
		opts.VirtualNameFile = v
	}
	if v, ok := lookup(OptCacheDirectory); ok {
		opts.CacheDirectory = v
	}
	for key, dst := range map[string]*bool{OptVerbose: &opts.Verbose, OptCacheData: &opts.CacheData} {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		b, err := parseBool(v)
		if err != nil {
			return Options{}, fmt.Errorf("%w: option %q: %w", common.ErrInvalidOption, key, err)
		}
		*dst = b
	}

	if err := validate.Struct(opts); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return Options{}, fmt.Errorf("%w: option %q must be set for using MDSPlus",
				common.ErrInvalidOption, optionName(verrs[0].Field()))
		}
		return Options{}, fmt.Errorf("%w: %w", common.ErrInvalidOption, err)
	}
	return opts, nil
}

func isKnownOption(key string) bool {
	for _, k := range knownOptions {
		if k == key {
			return true
		}
	}
	return false
}

func optionName(field string) string {
	switch field {
	case "Server":
		return OptServer
	case "User":
		return OptUser
	}
	return field
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	return strconv.ParseBool(s)
}
