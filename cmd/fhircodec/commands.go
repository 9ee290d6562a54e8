package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/reoring/fhircodec"
	eng "github.com/reoring/fhircodec/internal/engine"
	"github.com/reoring/fhircodec/jsonschema"
)

func canonicalizeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "canonicalize [file...]",
		Short: "Rewrite resources with resourceType first and sidecars paired",
		Long: "Reads each file (or stdin when none or \"-\" is given), decodes it as a polymorphic\n" +
			"resource and writes the canonical form. Files are processed concurrently.",
		RunE: func(cmd *cobra.Command, args []string) error {
			inPlace, _ := cmd.Flags().GetBool("in-place")
			outDir, _ := cmd.Flags().GetString("out-dir")
			return a.canonicalize(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), args, inPlace, outDir)
		},
	}
	cmd.Flags().BoolP("in-place", "i", false, "overwrite input files")
	cmd.Flags().StringP("out-dir", "o", "", "write outputs into this directory")
	return cmd
}

func (a *app) canonicalize(ctx context.Context, stdin io.Reader, stdout io.Writer, files []string, inPlace bool, outDir string) error {
	if len(files) == 0 || (len(files) == 1 && files[0] == "-") {
		rec, err := a.codec.Decode(ctx, stdin, nil)
		if err != nil {
			return err
		}
		if err := a.codec.Encode(ctx, stdout, rec); err != nil {
			return err
		}
		_, err = io.WriteString(stdout, "\n")
		return err
	}

	outs := make([][]byte, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for i, name := range files {
		g.Go(func() error {
			out, err := a.canonicalFile(ctx, name)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			switch {
			case inPlace:
				return os.WriteFile(name, out, 0o644)
			case outDir != "":
				return os.WriteFile(filepath.Join(outDir, filepath.Base(name)), out, 0o644)
			}
			outs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, out := range outs {
		if out == nil {
			continue
		}
		if _, err := stdout.Write(out); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) canonicalFile(ctx context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	rec, err := a.codec.Unmarshal(ctx, data, nil)
	if err != nil {
		return nil, err
	}
	out, err := a.codec.Marshal(ctx, rec)
	if err != nil {
		return nil, err
	}
	a.log.Info().Str("file", name).Str("resourceType", rec.ResourceType()).Msg("canonicalized")
	return append(out, '\n'), nil
}

func checkCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check file...",
		Short: "Decode resources and verify they survive a round trip",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.check(cmd.Context(), cmd.OutOrStdout(), args)
		},
	}
}

// checkResult is one file's outcome; diff is set when the canonical form
// carries a different JSON tree than the input.
type checkResult struct {
	err  error
	diff string
}

func (a *app) check(ctx context.Context, out io.Writer, files []string) error {
	results := make([]checkResult, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for i, name := range files {
		g.Go(func() error {
			results[i] = a.checkFile(ctx, name)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, name := range files {
		r := results[i]
		switch {
		case r.err != nil:
			failed++
			fmt.Fprintf(out, "FAIL %s\n", name)
			if is, ok := fhircodec.AsIssues(r.err); ok {
				for _, it := range is {
					fmt.Fprintf(out, "  %s %s: %s\n", it.Code, displayPath(it.Path), it.Message)
				}
			} else {
				fmt.Fprintf(out, "  %v\n", r.err)
			}
		case r.diff != "":
			fmt.Fprintf(out, "DIFF %s (-input +canonical)\n%s", name, r.diff)
		default:
			fmt.Fprintf(out, "ok   %s\n", name)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

func (a *app) checkFile(ctx context.Context, name string) checkResult {
	data, err := os.ReadFile(name)
	if err != nil {
		return checkResult{err: err}
	}
	rec, err := a.codec.Unmarshal(ctx, data, nil)
	if err != nil {
		return checkResult{err: err}
	}
	out, err := a.codec.Marshal(ctx, rec)
	if err != nil {
		return checkResult{err: err}
	}
	again, err := a.codec.Unmarshal(ctx, out, nil)
	if err != nil {
		return checkResult{err: fmt.Errorf("canonical output does not decode: %w", err)}
	}
	if !rec.Equal(again) {
		return checkResult{err: fmt.Errorf("canonical output decodes to a different record")}
	}
	in, err := eng.DecodeAnyFromSource(fhircodec.JSONBytes(data))
	if err != nil {
		return checkResult{err: err}
	}
	canon, err := eng.DecodeAnyFromSource(fhircodec.JSONBytes(out))
	if err != nil {
		return checkResult{err: err}
	}
	return checkResult{diff: cmp.Diff(in, canon)}
}

func displayPath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

func typesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List catalogue types",
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			out := cmd.OutOrStdout()
			for _, t := range a.codec.Catalogue().Types() {
				if !all && !t.Dispatchable() {
					continue
				}
				line := t.Name()
				if b := t.Base(); b != nil {
					line += " : " + b.Name()
				}
				if t.Abstract() {
					line += " (abstract)"
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().Bool("all", false, "include datatypes and backbone elements")
	return cmd
}

func ndjsonCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ndjson [file]",
		Short: "Canonicalize a bulk NDJSON stream",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return a.ndjson(cmd.Context(), in, cmd.OutOrStdout())
		},
	}
}

func (a *app) ndjson(ctx context.Context, in io.Reader, out io.Writer) error {
	w := a.codec.NewNDJSONWriter(out)
	n := 0
	err := a.codec.DecodeNDJSON(ctx, in, func(line int, rec *fhircodec.Record) error {
		n++
		return w.Write(ctx, rec)
	})
	if ferr := w.Flush(); err == nil {
		err = ferr
	}
	a.log.Info().Int("records", n).Msg("ndjson done")
	return err
}

func schemaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema [type]",
		Short: "Print a JSON Schema for the catalogue or one type",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				s   *jsonschema.Schema
				err error
			)
			if len(args) == 1 {
				s, err = jsonschema.ForType(a.codec.Catalogue(), args[0])
			} else {
				s, err = jsonschema.FromCatalogue(a.codec.Catalogue(), "")
			}
			if err != nil {
				return err
			}
			return writeSchema(cmd.OutOrStdout(), s)
		},
	}
}

// writeSchema marshals compactly and indents in a second pass; goccy's
// MarshalIndent does not terminate on the recursive Schema type.
func writeSchema(w io.Writer, s *jsonschema.Schema) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = buf.WriteTo(w)
	return err
}
