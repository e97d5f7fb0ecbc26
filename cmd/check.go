package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"

	"github.com/Laisky/weather-mcp-gateway/internal/mcp/keys"
	"github.com/Laisky/weather-mcp-gateway/library/log"
)

var checkCMD = &cobra.Command{
	Use:   "check",
	Short: "check",
	Long:  `validate the configuration and print the loaded api keys`,
	Args:  gcmd.NoExtraArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if err := initialize(ctx, cmd); err != nil {
			log.Logger.Panic("init", zap.Error(err))
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := keys.LoadFromConfig(time.Now().UTC())
		if err != nil {
			return errors.Wrap(err, "load api keys")
		}

		printKeySummary(cmd.OutOrStdout(), registry)
		return nil
	},
}

func init() {
	rootCMD.AddCommand(checkCMD)
}

// printKeySummary writes one line per key. Keys are always masked.
func printKeySummary(w io.Writer, registry *keys.Registry) {
	fmt.Fprintf(w, "%d api key(s) loaded\n", registry.Len())
	for _, rec := range registry.Records() {
		fmt.Fprintf(w, "  %-12s %-24s %-12s %s\n",
			keys.MaskKey(rec.Key),
			rec.ClientName,
			rec.Source,
			strings.Join(rec.Permissions, ","),
		)
	}
}
