package routes

import (
	"fmt"
	"strings"

	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/common"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/w7x"
)

// serverOptions name archive hosts and server side paths. Over HTTP they
// come from the server's config file only.
var serverOptions = []string{w7x.OptServer, w7x.OptUser, w7x.OptVirtualNameFile, w7x.OptCacheDirectory}

func checkRequestOptions(opts map[string]string) error {
	for key := range opts {
		k := strings.TrimSpace(key)
		for _, name := range serverOptions {
			if strings.EqualFold(k, name) {
				return fmt.Errorf("%w: option %q cannot be set in a request", common.ErrInvalidOption, name)
			}
		}
	}
	return nil
}
