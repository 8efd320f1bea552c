package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/sarsweep/internal/builder"
	"github.com/banshee-data/sarsweep/internal/engine"
	"github.com/banshee-data/sarsweep/internal/engine/bridge"
	"github.com/banshee-data/sarsweep/internal/engine/memory"
	"github.com/banshee-data/sarsweep/internal/fsutil"
)

func newEngineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engine",
		Short: "Engine bridge utilities",
	}
	cmd.AddCommand(newEngineServeCmd())
	return cmd
}

func newEngineServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the in-process engine over the bridge API",
		Long: `Serve a memory engine seeded with the variant's regions on the bridge
HTTP API, so sweeps can run against it with --engine http://<listen>.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, fsutil.OSFileSystem{})
			if err != nil {
				return err
			}
			name := cfg.Variant
			if v, _ := cmd.Flags().GetString("variant"); v != "" {
				name = v
			}
			v, err := builder.Select(name, cfg.Variants)
			if err != nil {
				return err
			}

			opts := memory.Options{Regions: seedRegions(v)}
			opts.DocumentPath, _ = cmd.Flags().GetString("document")
			opts.DeferCompletion, _ = cmd.Flags().GetBool("defer-completion")
			unsupported, _ := cmd.Flags().GetStringSlice("unsupported-kernel")
			for _, k := range unsupported {
				opts.UnsupportedKernels = append(opts.UnsupportedKernels, engine.KernelKind(k))
			}

			listen, _ := cmd.Flags().GetString("listen")
			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", listen, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "serving %s engine on http://%s\n", v.Name, ln.Addr())
			return serveEngine(cmd.Context(), ln, bridge.NewHandler(memory.NewSession(opts)))
		},
	}

	cmd.Flags().String("listen", "127.0.0.1:8090", "Listen address")
	cmd.Flags().String("variant", "", "Variant whose regions seed the engine (default from config)")
	cmd.Flags().String("document", "", "Document path the engine reports")
	cmd.Flags().Bool("defer-completion", false, "Leave runs submitted without wait running")
	cmd.Flags().StringSlice("unsupported-kernel", nil, "Kernels the engine rejects, e.g. AXware")

	return cmd
}

// serveEngine serves h on ln until ctx is done, then shuts down gracefully.
func serveEngine(ctx context.Context, ln net.Listener, h http.Handler) error {
	server := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logf("shutting down engine bridge...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("engine bridge shutdown: %w", err)
	}
	return <-errCh
}
