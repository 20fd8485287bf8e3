// Command docvault is the development CLI: it drives the compose stack,
// runs the services and tests locally, and pokes the OCR pipeline by hand.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// runner executes an external program. Tests swap it out.
type runner func(ctx context.Context, name string, args ...string) error

// Services built from this repository, and the compose services backing them.
var (
	appServices   = []string{"api", "worker", "dal"}
	stackServices = append([]string{"rabbitmq", "minio", "postgres", "redis"}, appServices...)
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "docvault: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	return newRootCommandWith(runCommand)
}

func newRootCommandWith(run runner) *cobra.Command {
	st := &stack{run: run}
	cmd := &cobra.Command{
		Use:   "docvault",
		Short: "DocVault development CLI",
		Long: `Drive the DocVault compose stack (RabbitMQ, MinIO, Postgres, Redis and the
api, worker and dal services), run the services or tests from source, publish
pipeline messages by hand and run OCR on a local file.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&st.file, "compose-file", "f", "docker-compose.yml", "Compose file for stack commands")
	cmd.AddCommand(
		st.buildCmd(),
		st.upCmd(),
		st.downCmd(),
		st.logsCmd(),
		newTestCmd(run),
		newRunCmd(run),
		newPublishCmd(),
		newOCRCmd(),
	)
	return cmd
}

// stack runs docker compose against one compose file.
type stack struct {
	file string
	run  runner
}

func (s *stack) compose(ctx context.Context, sub string, flags []string, services []string) error {
	if _, err := os.Stat(s.file); err != nil {
		return fmt.Errorf("compose file: %w", err)
	}
	args := append([]string{"compose", "-f", s.file, sub}, flags...)
	return s.run(ctx, "docker", append(args, services...)...)
}

func (s *stack) buildCmd() *cobra.Command {
	var noCache bool
	cmd := &cobra.Command{
		Use:       "build [api|worker|dal...]",
		Short:     "Build service images",
		ValidArgs: appServices,
		Args:      cobra.OnlyValidArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var flags []string
			if noCache {
				flags = append(flags, "--no-cache")
			}
			return s.compose(cmd.Context(), "build", flags, args)
		},
	}
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Build without the layer cache")
	return cmd
}

func (s *stack) upCmd() *cobra.Command {
	var detach, skipBuild bool
	cmd := &cobra.Command{
		Use:       "up [service...]",
		Short:     "Start the stack or some of its services",
		ValidArgs: stackServices,
		Args:      cobra.OnlyValidArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var flags []string
			if !skipBuild {
				flags = append(flags, "--build")
			}
			if detach {
				flags = append(flags, "-d")
			}
			return s.compose(cmd.Context(), "up", flags, args)
		},
	}
	cmd.Flags().BoolVarP(&detach, "detached", "d", true, "Return once the services are started")
	cmd.Flags().BoolVar(&skipBuild, "skip-build", false, "Start with the existing images")
	return cmd
}

func (s *stack) downCmd() *cobra.Command {
	var volumes bool
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop the stack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var flags []string
			if volumes {
				flags = append(flags, "-v")
			}
			return s.compose(cmd.Context(), "down", flags, nil)
		},
	}
	cmd.Flags().BoolVarP(&volumes, "volumes", "v", false, "Also remove the minio and postgres volumes")
	return cmd
}

func (s *stack) logsCmd() *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:       "logs [service...]",
		Short:     "Show service logs",
		ValidArgs: stackServices,
		Args:      cobra.OnlyValidArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var flags []string
			if follow {
				flags = append(flags, "--follow")
			}
			return s.compose(cmd.Context(), "logs", flags, args)
		},
	}
	cmd.Flags().BoolVar(&follow, "follow", false, "Keep streaming")
	return cmd
}

func newTestCmd(run runner) *cobra.Command {
	var race, cover bool
	var tags string
	cmd := &cobra.Command{
		Use:   "test [packages]",
		Short: "Run the Go tests (./... by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			goArgs := []string{"test"}
			if race {
				goArgs = append(goArgs, "-race")
			}
			if cover {
				goArgs = append(goArgs, "-cover")
			}
			if tags != "" {
				goArgs = append(goArgs, "-tags", tags)
			}
			if len(args) == 0 {
				args = []string{"./..."}
			}
			return run(cmd.Context(), "go", append(goArgs, args...)...)
		},
	}
	cmd.Flags().BoolVar(&race, "race", false, "Enable the race detector")
	cmd.Flags().BoolVar(&cover, "cover", false, "Report coverage")
	cmd.Flags().StringVar(&tags, "tags", "", "Build tags, e.g. gosseract")
	return cmd
}

func newRunCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a service from source",
	}
	for _, name := range appServices {
		pkg := "./cmd/" + name
		cmd.AddCommand(&cobra.Command{
			Use:   name,
			Short: "go run " + pkg,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd.Context(), "go", append([]string{"run", pkg}, args...)...)
			},
		})
	}
	return cmd
}

func runCommand(ctx context.Context, name string, args ...string) error {
	c := exec.CommandContext(ctx, name, args...)
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
	return c.Run()
}
