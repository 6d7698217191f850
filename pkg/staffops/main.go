package staffops

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// closeTimeout bounds store shutdown after the command has finished.
const closeTimeout = 5 * time.Second

// Main parses the arguments, builds the application and executes the
// requested command. It is the whole program behind cmd/staffops.
func Main(ctx context.Context, args []string) error {
	cmd, config, err := Parse(args)
	if err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	logger := newLogger()

	app, err := New(ctx, config, logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			logger.Warn().Err(err).Msg("failed to close stores")
		}
	}()

	switch c := cmd.(type) {
	case *MigrateCommand:
		if err := app.Migrate(ctx, c); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case *SyncCommand:
		if err := app.Sync(ctx, c); err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
	case *RunCommand:
		if err := app.Run(ctx, c); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown command type: %T", cmd)
	}

	return nil
}

// newLogger builds the root logger. An interactive terminal gets the
// console writer, anything else plain JSON lines.
func newLogger() zerolog.Logger {
	if fi, err := os.Stderr.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		return log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
