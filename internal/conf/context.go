package conf

import (
	"github.com/tphakala/seisnet-go/internal/logger"
)

// Context carries the loaded settings and the process logger to the CLI
// commands. It is filled once configuration has been read.
type Context struct {
	Settings *Settings
	Logger   *logger.CentralLogger
}

// Log returns the logger of module, discarding output before setup.
func (c *Context) Log(module string) logger.Logger {
	if c.Logger == nil {
		return logger.Discard()
	}
	return c.Logger.Module(module)
}

// Close flushes and closes the logger.
func (c *Context) Close() error {
	if c.Logger == nil {
		return nil
	}
	return c.Logger.Close()
}
