package cli

import (
	"context"

	"github.com/alecthomas/kong"

	"github.com/ardnew/cask/cli/cmd"
	"github.com/ardnew/cask/engine"
	"github.com/ardnew/cask/pkg"
)

// CLI is the top-level command-line interface for cask.
type CLI struct {
	Log   logConfig   `embed:"" group:"log"   prefix:"log-"`
	Pprof pprofConfig `embed:"" group:"pprof" prefix:"pprof-"`

	Host cmd.Host `embed:""`

	Run   cmd.Run   `cmd:"" default:"withargs" help:"Run a script"`
	Check cmd.Check `cmd:""                    help:"Parse scripts without running them"`
	Eval  cmd.Eval  `cmd:""                    help:"Evaluate source given as arguments"`
	Exts  cmd.Exts  `cmd:""                    help:"List permitted extensions or curated modules"`
	Repl  cmd.Repl  `cmd:""                    help:"Start an interactive session"`
	Init  cmd.Init  `cmd:""                    help:"Initialize configuration file"`
}

// Run executes the cask CLI with the given context and arguments.
// The exit function is called with the appropriate exit code upon completion,
// including the code a script passes to exit_.
func Run(
	ctx context.Context,
	exit func(code int),
	args ...string,
) error {
	err := run(ctx, exit, args)
	if code, ok := engine.ExitCode(err); ok {
		exit(code)

		return nil
	}

	return err
}

func run(ctx context.Context, exit func(code int), args []string) error {
	var cli CLI

	err := mkdirAllRequired()
	if err != nil {
		return err
	}

	configFilePath := configPath(baseConfig)

	vars := kong.Vars{
		cmd.ConfigIdentifier: configFilePath,
		cmd.CacheIdentifier:  cacheDir(),
	}.
		CloneWith(cli.Log.vars()).
		CloneWith(cli.Pprof.vars())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Logger flags are applied before parsing so that configuration and
	// parse errors are reported in the requested format.
	cli.Log.scan(args)

	parser, err := kong.New(&cli,
		kong.Name(pkg.Name),
		kong.Description(pkg.Description),
		kong.UsageOnError(),
		kong.Exit(exit),
		kong.ExplicitGroups(
			[]kong.Group{cli.Log.group(), cli.Pprof.group()},
		),
		kong.BindSingletonProvider(func() context.Context {
			return ctx
		}),
		kong.ConfigureHelp(
			kong.HelpOptions{
				Compact:             true,
				Summary:             true,
				Tree:                true,
				FlagsLast:           false,
				NoAppSummary:        false,
				NoExpandSubcommands: true,
			}),
		kong.Configuration(load(ctx, &cli.Host), configFilePath),
		vars,
	)
	if err != nil {
		return err
	}

	ktx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	ctx = cmd.WithContext(ctx, ktx)

	cli.Log.start(ctx)

	// [pprofConfig.start] is no-op unless built with tag pprof and enabled.
	defer cli.Pprof.start(ctx)()

	return ktx.Run(&cli.Host)
}
