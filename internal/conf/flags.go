package conf

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// BindFlags binds command flags to configuration keys, given as flag name
// to key. Bound flags take precedence over the config file and environment
// when set on the command line.
func BindFlags(cmd *cobra.Command, keys map[string]string) error {
	for name, key := range keys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			return fmt.Errorf("flag %q is not defined", name)
		}
		if err := viper.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("error binding flag %q to %q: %w", name, key, err)
		}
	}
	return nil
}
