package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/turbolytics/activerecord/internal/config"
	"github.com/turbolytics/activerecord/internal/server"
)

func newServeCommand() *cobra.Command {
	var addr string

	var cmd = &cobra.Command{
		Use:   "serve",
		Short: "Serves the configured tables over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := config.Bootstrap(ctx, viper.GetString("config"), "activerecord.serve", os.Stdout)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			if addr == "" {
				addr = rt.Config.Server.Addr
			}
			rt.Logger.Info("serving tables",
				zap.Strings("tables", rt.Registry.Tables()),
				zap.String("addr", addr),
			)

			s := server.New(rt.Models, server.WithLogger(rt.Logger))
			return s.Start(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overrides server.addr")
	return cmd
}
