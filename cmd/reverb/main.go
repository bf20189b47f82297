package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rojolang/reverb-go/pkg/reverb"
	"github.com/spf13/cobra"
)

var (
	verbose  bool
	host     string
	port     int
	password string
	appID    uint64
	secure   bool
	publish  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "reverb",
		Short: "Lavalink node client",
		Long:  "A command-line interface for inspecting and listening to a Lavalink node",
	}

	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&host, "host", "", "Node host (overrides REVERB_HOST)")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "Node port (overrides REVERB_PORT)")
	rootCmd.PersistentFlags().StringVar(&password, "password", "", "Node password (overrides REVERB_PASSWORD)")
	rootCmd.PersistentFlags().Uint64Var(&appID, "app-id", 0, "Application user id (overrides REVERB_APPLICATION_ID)")
	rootCmd.PersistentFlags().BoolVar(&secure, "secure", false, "Use TLS (wss/https)")

	rootCmd.AddCommand(listenCmd())
	rootCmd.AddCommand(serverCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		reverb.GetGlobalLogger().WithError(err).Fatal("CLI execution failed")
	}
}

// loadConfig merges flags over the environment and installs the global logger.
func loadConfig() *reverb.Config {
	config := reverb.NewConfig()
	if host != "" {
		config.Host = host
	}
	if port != 0 {
		config.Port = port
	}
	if password != "" {
		config.Password = password
	}
	if appID != 0 {
		config.ApplicationID = appID
	}
	if secure {
		config.Secure = true
	}

	logConfig := reverb.DefaultLogConfig()
	if level, ok := reverb.ParseLogLevel(config.DebugLevel); ok {
		logConfig.Level = level
	}
	if verbose {
		logConfig.Level = reverb.DebugLevel
		config.DebugGateway = true
	}
	reverb.SetGlobalLogger(reverb.NewLogger(logConfig))

	return config
}

func listenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Connect to the gateway and log every event",
		Long:  "Connect to the node's event gateway and log every event until interrupted or the stream ends",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()
			logger := reverb.GetGlobalLogger()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			router := reverb.NewEventRouter()
			router.AddHandler(reverb.CreateLoggingHandler(logger, verbose))
			tracker := reverb.NewPlayerTracker()
			tracker.Attach(router)

			var bot reverb.Bot = router
			if publish != "" {
				pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
				defer pubSub.Close()

				messages, err := pubSub.Subscribe(ctx, publish)
				if err != nil {
					return err
				}
				go func() {
					for msg := range messages {
						n, err := reverb.DecodeMessage(msg)
						if err != nil {
							logger.WithError(err).Warn("Undecodable message on topic")
						} else {
							logger.WithField("topic", publish).
								WithField("op", string(n.Op())).
								WithField("message_id", msg.UUID).
								Debug("Message published")
						}
						msg.Ack()
					}
				}()

				publisher := reverb.NewPublisherBot(pubSub, reverb.WithTopic(publish))
				bot = reverb.DispatchFunc(func(ev reverb.Event) {
					router.Dispatch(ev)
					publisher.Dispatch(ev)
				})
			}

			client, err := reverb.NewBuilder(config).
				WithBot(bot).
				WithLogger(logger).
				Build(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			fmt.Printf("Connected to %s (server %s)\n", config.Host, client.ServerVersion())

			select {
			case <-ctx.Done():
				fmt.Println("\nShutting down...")
			case <-client.Done():
				fmt.Println("Gateway stream ended")
			}
			if err := client.Close(); err != nil {
				return err
			}

			printPlayers(tracker)
			return client.Err()
		},
	}

	cmd.Flags().StringVar(&publish, "publish", "", "Also republish events to this in-process pub/sub topic")
	return cmd
}

func printPlayers(tracker *reverb.PlayerTracker) {
	players := tracker.Players()
	if len(players) == 0 {
		return
	}
	fmt.Println("\nPlayers seen:")
	for _, p := range players {
		status := "idle"
		if p.Playing {
			status = "playing"
		}
		fmt.Printf("  %d: %s (connected=%t, ping=%dms, stuck=%d, exceptions=%d)\n",
			p.GuildID, status, p.State.Connected, p.State.Ping, p.Stuck, p.Exceptions)
	}
	if stats, ok := tracker.LastStats(); ok {
		fmt.Printf("Last stats: %d players, %d playing, uptime %s\n",
			stats.Players, stats.PlayingPlayers, time.Duration(stats.Uptime)*time.Millisecond)
	}
}

func serverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Query the node's REST API",
	}

	cmd.AddCommand(serverVersionCmd())
	cmd.AddCommand(serverInfoCmd())
	cmd.AddCommand(serverStatsCmd())

	return cmd
}

func restClient() (*reverb.RESTClient, *reverb.Config) {
	config := loadConfig()
	return reverb.NewRESTClient(config, nil, reverb.GetGlobalLogger()), config
}

func serverVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the node version",
		RunE: func(cmd *cobra.Command, args []string) error {
			rest, _ := restClient()
			version, err := rest.GetVersion(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(version)
			return nil
		},
	}
}

func serverInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print node build and plugin information",
		RunE: func(cmd *cobra.Command, args []string) error {
			rest, _ := restClient()
			info, err := rest.GetInfo(cmd.Context())
			if err != nil {
				return err
			}
			if verbose {
				return printJSON(info)
			}

			fmt.Printf("Version: %s\n", info.Version.Semver)
			fmt.Printf("Build Time: %s\n", time.UnixMilli(info.BuildTime).UTC().Format(time.RFC3339))
			fmt.Printf("Git: %s@%s\n", info.Git.Branch, info.Git.Commit)
			fmt.Printf("JVM: %s\n", info.JVM)
			fmt.Printf("Lavaplayer: %s\n", info.Lavaplayer)
			fmt.Printf("Source Managers: %v\n", info.SourceManagers)
			fmt.Printf("Filters: %v\n", info.Filters)
			for _, p := range info.Plugins {
				fmt.Printf("Plugin: %s %s\n", p.Name, p.Version)
			}
			return nil
		},
	}
}

func serverStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print node load",
		RunE: func(cmd *cobra.Command, args []string) error {
			rest, _ := restClient()
			stats, err := rest.GetStats(cmd.Context())
			if err != nil {
				return err
			}
			if verbose {
				return printJSON(stats)
			}

			fmt.Printf("Players: %d (%d playing)\n", stats.Players, stats.PlayingPlayers)
			fmt.Printf("Uptime: %s\n", time.Duration(stats.Uptime)*time.Millisecond)
			fmt.Printf("Memory: used=%d free=%d allocated=%d reservable=%d\n",
				stats.Memory.Used, stats.Memory.Free, stats.Memory.Allocated, stats.Memory.Reservable)
			fmt.Printf("CPU: %d cores, system %.2f, lavalink %.2f\n",
				stats.CPU.Cores, stats.CPU.SystemLoad, stats.CPU.LavalinkLoad)
			if stats.FrameStats != nil {
				fmt.Printf("Frames: sent=%d nulled=%d deficit=%d\n",
					stats.FrameStats.Sent, stats.FrameStats.Nulled, stats.FrameStats.Deficit)
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Run: func(cmd *cobra.Command, args []string) {
			config := loadConfig()
			config.PrintConfig()

			if issues := config.Validate(); len(issues) > 0 {
				fmt.Println("\nIssues:")
				for _, issue := range issues {
					fmt.Printf("  - %s\n", issue)
				}
			}
		},
	})

	return cmd
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
