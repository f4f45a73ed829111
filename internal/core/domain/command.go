package domain

import "strings"

// Command is an external process invocation issued by a build strategy.
type Command struct {
	Args []string
	Dir  string
	// Env is applied on top of the inherited environment.
	Env map[string]string
	// ExtraEnv holds KEY=VALUE entries contributed by build requirements.
	// PATH entries are prepended to the inherited PATH.
	ExtraEnv []string
}

// String renders the argument vector.
func (c Command) String() string {
	return strings.Join(c.Args, " ")
}
