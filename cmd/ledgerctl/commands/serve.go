package commands

import (
	"context"

	"github.com/mosaicnetworks/ledgerclient/src/service"
	"github.com/spf13/cobra"
)

// NewServeCmd returns the command that serves the diagnostics API until
// interrupted.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve node health and request stats over HTTP",
		Args:  cobra.NoArgs,
		RunE:  serve,
	}
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")
	return cmd
}

func serve(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := interruptible()
	defer cancel()

	srv := service.NewService(_config.ServiceAddr, c, c.Logger())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), _config.CloseTimeout)
	defer cancelShutdown()

	return srv.Shutdown(shutdownCtx)
}
