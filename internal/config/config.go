// Package config builds the W7-X reader defaults for the binaries from the
// environment.
package config

import (
	"github.com/fusion-flap/flap-w7x-mdsplus/internal/util"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/w7x"
)

// envOptions maps environment variables to reader options. They override
// the config file.
var envOptions = []struct {
	env    string
	option string
}{
	{"MDS_SERVER", w7x.OptServer},
	{"MDS_USER", w7x.OptUser},
	{"MDS_VIRTUAL_NAME_FILE", w7x.OptVirtualNameFile},
	{"MDS_CACHE_DIR", w7x.OptCacheDirectory},
	{"MDS_CACHE_DATA", w7x.OptCacheData},
	{"MDS_VERBOSE", w7x.OptVerbose},
}

// LoadReaderConfig reads MDS_CONFIG_FILE, if set, and applies the MDS_*
// overrides on top.
func LoadReaderConfig() (*w7x.Config, error) {
	cfg := w7x.NewConfig()
	if path := util.GetEnv("MDS_CONFIG_FILE"); path != "" {
		var err error
		cfg, err = w7x.LoadConfig(path)
		if err != nil {
			return nil, err
		}
	}
	for _, e := range envOptions {
		if v := util.GetEnv(e.env); v != "" {
			cfg.Set(e.option, v)
		}
	}
	return cfg, nil
}
