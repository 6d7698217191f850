package staffops

// Command is a parsed subcommand. Parse returns one of the concrete
// command types below together with the shared Config.
type Command interface {
	Name() string
}

// RunCommand starts the HTTP server and the background sync, presence
// and reminder loops.
type RunCommand struct{}

func (c *RunCommand) Name() string { return "run" }

// MigrateCommand creates or updates the relational schema.
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string { return "migrate" }

// SyncCommand performs a one-shot catch-up reconciliation from the
// document store into the relational mirror, for recovery after the
// change feed has been down.
type SyncCommand struct{}

func (c *SyncCommand) Name() string { return "sync" }
