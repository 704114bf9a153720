// Command enclave launches a single program inside a fresh set of Linux
// namespaces, with a mount plan applied and privileges dropped before
// the target ever runs. See internal/cliconfig for the flag surface.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nestybox/sysbox-libs/enclave/internal/cliconfig"
	"github.com/nestybox/sysbox-libs/enclave/internal/enclosure"
	"github.com/nestybox/sysbox-libs/enclave/internal/errkind"
	"github.com/nestybox/sysbox-libs/enclave/pkg/sandboxid"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	exitCode := 1

	cmd := &cobra.Command{
		Use:                   "enclave [flags] -- PROGRAM [ARGS...]",
		Short:                 "run PROGRAM inside a fresh set of Linux namespaces",
		SilenceUsage:          true,
		SilenceErrors:         true,
		DisableFlagsInUseLine: true,
		Args:                  cobra.ArbitraryArgs,
	}
	// The target program owns everything after its own name; enclave's
	// own flags never interleave with it once a bare argument appears.
	cmd.Flags().SetInterspersed(false)
	cmd.SetArgs(args)
	cfg := cliconfig.Register(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, cmdArgs []string) error {
		if err := cfg.Resolve(cmd.Flags(), cmdArgs); err != nil {
			if cfg.Debug.Version {
				fmt.Println("enclave", version)
				exitCode = 0
				return nil
			}
			exitCode = exitCodeForErr(err)
			return err
		}

		if cfg.Debug.Version {
			fmt.Println("enclave", version)
			exitCode = 0
			return nil
		}

		id := sandboxid.New()
		log := logrus.WithField("sandbox", id.ShortID())

		if cfg.Debug.CliArgs {
			log.WithField("argv", cfg.Argv).Info("resolved configuration")
			exitCode = 0
			return nil
		}

		e, err := enclosure.New()
		if err != nil {
			log.WithError(err).Error("failed to initialize enclosure")
			exitCode = exitCodeForErr(err)
			return err
		}

		code, err := e.Spawn(cfg.ToOptions())
		if err != nil {
			log.WithError(err).Error("sandboxed run failed")
			if code < 0 {
				exitCode = exitCodeForErr(err)
				return err
			}
			exitCode = code
			return err
		}

		exitCode = code
		return nil
	}

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "enclave:", err)
		if exitCode == 0 {
			exitCode = 1
		}
	}

	return exitCode
}

// exitCodeForErr maps an errkind.Error to the driver's own exit code;
// any other error (should not normally happen -- every fallible call on
// this path wraps its error in an errkind.Error) falls back to 1.
func exitCodeForErr(err error) int {
	if ke, ok := err.(*errkind.Error); ok {
		return exitCodeFor(ke.Kind)
	}
	return 1
}

func exitCodeFor(kind errkind.Kind) int {
	switch kind {
	case errkind.Config:
		return 2
	case errkind.Environment:
		return 3
	case errkind.Privilege:
		return 4
	case errkind.Capability:
		return 5
	case errkind.Clone:
		return 6
	case errkind.Prep:
		return 7
	case errkind.Wait:
		return 8
	default:
		return 1
	}
}
