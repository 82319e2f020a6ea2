package cli

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	port       string
	configPath string
	envFile    string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	// A missing .env is normal outside local development.
	_ = godotenv.Load(envFileFromArgs(os.Args[1:]))

	envPort := os.Getenv("PORT")
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:          "quiz-status-gateway",
		Short:        "Keeps quiz session status in sync between clients and the session API",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&port, "port", envPort, "port to listen on (overrides server.port)")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file loaded before reading the environment")
	cmd.AddCommand(NewStartCmd(&configPath, &port))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewReplayCmd(&configPath))
	return cmd
}

// envFileFromArgs finds --env-file before cobra parses flags, since the
// environment feeds flag defaults.
func envFileFromArgs(args []string) string {
	for i, arg := range args {
		switch {
		case arg == "--env-file" && i+1 < len(args):
			return args[i+1]
		case len(arg) > len("--env-file=") && arg[:len("--env-file=")] == "--env-file=":
			return arg[len("--env-file="):]
		}
	}
	return ".env"
}
