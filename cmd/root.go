package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sardaralii/music-assistant/conf"
	"github.com/sardaralii/music-assistant/core/metrics"
	"github.com/sardaralii/music-assistant/core/players"
	"github.com/sardaralii/music-assistant/core/transcode"
	"github.com/sardaralii/music-assistant/log"
	"github.com/sardaralii/music-assistant/server/groups"
	"github.com/sardaralii/music-assistant/server/upnp"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "music-assistant",
	Short: "Group coordination and broadcast streaming for networked audio players",
	Long: `music-assistant coordinates playback across a fleet of networked audio
players: native sync groups within one player ecosystem and universal groups
that synchronize heterogeneous players by re-streaming one transcoded feed.`,
	Run: func(cmd *cobra.Command, _ []string) {
		runServer(cmd.Context())
	},
}

// Execute runs the root command
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	rootCmd.SetContext(ctx)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(func() {
		conf.InitConfig(cfgFile)
		conf.Load()
	})
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "configfile", "c", "", "config file")
}

func runServer(ctx context.Context) {
	registry := players.NewRegistry()
	store := groups.NewFileConfigStore(conf.Server.DataFolder)
	transcoder := transcode.NewFFmpeg(conf.Server.Transcoder.FFmpegPath, conf.Server.Transcoder.ExtraArgs)
	m := metrics.New()

	provider := groups.NewProvider(registry, store, transcoder)
	provider.SetMetrics(m)
	provider.SetStreamWarmupDelay(conf.Server.Streams.WarmupDelay)
	provider.SetStreamChunkSize(conf.Server.Streams.ChunkSize)
	registry.RegisterProvider(provider.Info(), provider.Controller())

	// late joiners may complete a previously incomplete group
	registry.Subscribe(func(playerID string) {
		provider.OnPlayerAdded(ctx, playerID)
	})

	var speakers *upnp.Provider
	if conf.Server.UPnP.Enabled {
		speakers = upnp.NewProvider(registry, conf.Server.UPnP.DiscoveryInterval)
		registry.RegisterProvider(speakers.ProviderInfo(), speakers)
		if err := speakers.Start(ctx); err != nil {
			log.Warn(ctx, "UPnP speaker discovery could not start", err)
		}
	}

	if err := provider.RegisterAll(ctx); err != nil {
		log.Warn(ctx, "Not all configured groups could be registered yet", err)
	}

	r := chi.NewRouter()
	r.Mount("/", provider.Router())
	r.Handle("/metrics", m.Handler())

	addr := fmt.Sprintf("%s:%d", conf.Server.Address, conf.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(ctx, "Starting server", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down")
		if speakers != nil {
			speakers.Shutdown()
		}
		provider.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Fatal("Server terminated with error", err)
	}
}
