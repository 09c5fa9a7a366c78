package commands

import (
	"github.com/warren-hq/warren/internal/bots/echo"
	"github.com/warren-hq/warren/internal/registry"
)

// builtinRegistry returns the registry of embedded bots compiled into this
// binary. New bots are added here, keyed by their service name; warren.yml
// then decides which of them a given instance actually hosts.
func builtinRegistry() (*registry.Registry, error) {
	reg := registry.New()

	if err := reg.Register(echo.ServiceName, echo.Factory); err != nil {
		return nil, err
	}

	return reg, nil
}
