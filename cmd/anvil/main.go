package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jbweber/anvil/internal/command"
	"github.com/jbweber/anvil/internal/config"
	"github.com/jbweber/anvil/internal/metrics"
	"github.com/jbweber/anvil/internal/output"
	"github.com/jbweber/anvil/internal/vm"
)

var (
	version = "dev"
	commit  = "unknown"
)

// Environment variables read after .env files are loaded.
const (
	envConfig   = "ANVIL_CONFIG"
	envLogLevel = "ANVIL_LOG_LEVEL"
)

const defaultConfigPath = "/etc/anvil/hypervisors.conf"

// app holds the state shared by every command.
type app struct {
	configPath  string
	envFile     string
	format      string
	noHeaders   bool
	verbose     bool
	metricsFile string

	log      logr.Logger
	flush    func()
	registry *prometheus.Registry
	ctrl     *vm.Controller
	res      *vm.Resource
	out      output.Formatter
}

var cli = &app{log: logr.Discard(), flush: func() {}}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the command line, then tears down whether or not the
// command succeeded.
func run(ctx context.Context, args []string) error {
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	if terr := cli.teardown(); terr != nil {
		err = errors.Join(err, terr)
	}
	return err
}

var rootCmd = &cobra.Command{
	Use:   "anvil",
	Short: "Anvil - hypervisor-neutral VM lifecycle tool",
	Long: `Anvil manages virtual machines on KVM, Xen and LXC hosts through libvirt.

Hypervisor endpoints are read from a registry file (INI, YAML or TOML).
Every command names an endpoint and describes the VM with attributes.`,
	Version:           fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:      true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return cli.setup(cmd) },
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cli.configPath, "config", defaultConfigPath, "hypervisor registry file (env "+envConfig+")")
	flags.StringVar(&cli.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.StringVarP(&cli.format, "output", "o", string(output.FormatTable), "output format: table, yaml or json")
	flags.BoolVar(&cli.noHeaders, "no-headers", false, "omit table headers")
	flags.BoolVarP(&cli.verbose, "verbose", "v", false, "human-readable debug logging")
	flags.StringVar(&cli.metricsFile, "metrics-textfile", "", "write Prometheus metrics to this file on exit")

	rootCmd.AddCommand(endpointsCmd, pingCmd, listCmd)
	rootCmd.AddCommand(getCmd, statusCmd, createCmd, deleteCmd)
	rootCmd.AddCommand(memoryCmd, vcpusCmd, diskSizeCmd, vncCmd)
	for _, c := range transitionCmds() {
		rootCmd.AddCommand(c)
	}
}

// setup loads the environment, logger, registry and controller.
func (a *app) setup(cmd *cobra.Command) error {
	switch cmd.Name() {
	case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
		return nil
	}
	if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", a.envFile, err)
	}
	if !cmd.Flags().Changed("config") {
		if path := os.Getenv(envConfig); path != "" {
			a.configPath = path
		}
	}

	log, flush, err := newLogger(logOptions{Development: a.verbose, Level: os.Getenv(envLogLevel)})
	if err != nil {
		return err
	}
	a.log, a.flush = log, flush

	if err := output.ValidateFormat(a.format); err != nil {
		return err
	}
	a.out, err = output.NewFormatter(output.Options{Format: output.Format(a.format), NoHeaders: a.noHeaders})
	if err != nil {
		return err
	}

	a.log.V(1).Info("Loading hypervisor registry...", "path", a.configPath)
	reg, err := config.NewRegistry(a.configPath)
	if err != nil {
		return err
	}

	a.registry = prometheus.NewRegistry()
	rec := metrics.New(a.registry)

	prefix, err := reg.General().CommandArgs()
	if err != nil {
		return err
	}
	runner := command.NewExec(a.log)
	runner.Prepend = prefix
	// Tool diagnostics are surfaced verbatim in errors.
	runner.Env = map[string]string{"LC_ALL": "C"}
	runner.Observer = rec

	a.ctrl, err = vm.New(reg,
		vm.WithLogger(a.log),
		vm.WithMetrics(rec),
		vm.WithRunner(runner),
	)
	if err != nil {
		return err
	}
	a.res = vm.NewResource(a.ctrl)
	return nil
}

// teardown writes metrics if requested and flushes the logger. It is safe
// to call when setup never ran.
func (a *app) teardown() error {
	defer a.flush()
	if a.metricsFile == "" || a.registry == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.metricsFile, a.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// print writes one result in the selected format.
func (a *app) print(cmd *cobra.Command, r output.Record) error {
	s, err := a.out.FormatRecord(r)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), s)
	return err
}

// printAll writes a list of results in the selected format.
func (a *app) printAll(cmd *cobra.Command, rs []output.Record) error {
	s, err := a.out.FormatRecords(rs)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), s)
	return err
}
