package app

import (
	cliflag "k8s.io/component-base/cli/flag"
)

// NamedFlagSetOptions is implemented by a command's top-level options.
type NamedFlagSetOptions interface {
	// Flags returns the flag sets, one section per concern.
	Flags() cliflag.NamedFlagSets

	// Validate runs after flags and the config file have been applied.
	Validate() error
}

// CompletableOptions fill in derived defaults before validation.
type CompletableOptions interface {
	Complete() error
}
