// Command fhircodec canonicalizes and checks FHIR JSON documents against a type
// catalogue.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/reoring/fhircodec"
	"github.com/reoring/fhircodec/internal/config"
)

// app is the state shared by subcommands once the root pre-run has loaded it.
type app struct {
	cfg   *config.Config
	log   zerolog.Logger
	codec *fhircodec.Codec
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:          "fhircodec",
		Short:        "FHIR JSON codec",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(canonicalizeCmd(a))
	rootCmd.AddCommand(checkCmd(a))
	rootCmd.AddCommand(typesCmd(a))
	rootCmd.AddCommand(ndjsonCmd(a))
	rootCmd.AddCommand(schemaCmd(a))
	return rootCmd
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = cfg.Logger(cmd.ErrOrStderr())

	cat, err := cfg.LoadCatalogue()
	if err != nil {
		return fmt.Errorf("load catalogue: %w", err)
	}
	a.codec, err = fhircodec.NewCodec(cat, cfg.Options(&a.log))
	if err != nil {
		return fmt.Errorf("compile catalogue: %w", err)
	}
	a.log.Debug().
		Str("driver", cfg.Driver).
		Int("types", len(cat.Types())).
		Msg("codec ready")
	return nil
}
