package cli

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wms-platform/verification-service/internal/barcode"
)

type decodeOptions struct {
	registry string
	primary  string
	asJSON   bool
}

func newDecodeCmd() *cobra.Command {
	opts := &decodeOptions{}

	cmd := &cobra.Command{
		Use:   "decode <payload>",
		Short: "Decode a structured scan payload",
		Long: `Decode splits a scanned element string into its application identifier fields
and shows the code that would be matched against a line. Use \x1D or <GS> for the
group separator.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.registry, "registry", "", `identifier widths, e.g. "01:14,17:6,10:*" (default GTIN set)`)
	cmd.Flags().StringVar(&opts.primary, "primary", barcode.DefaultPrimaryIdentifier, "identifier matched against expected codes")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print JSON")
	return cmd
}

func newDecoder(registrySpec, primary string) (*barcode.Decoder, error) {
	registry := barcode.DefaultRegistry()
	if registrySpec != "" {
		parsed, err := barcode.ParseRegistry(registrySpec)
		if err != nil {
			return nil, err
		}
		registry = parsed
	}
	if _, ok := registry[primary]; !ok {
		return nil, fmt.Errorf("primary identifier %q is not in the registry", primary)
	}
	return barcode.NewDecoder(registry, barcode.WithPrimary(primary)), nil
}

// unescapePayload turns the separator spellings a shell can carry into FNC1.
func unescapePayload(s string) string {
	r := strings.NewReplacer(`\x1D`, barcode.GroupSeparator, `\x1d`, barcode.GroupSeparator, "<GS>", barcode.GroupSeparator)
	return r.Replace(s)
}

func runDecode(cmd *cobra.Command, opts *decodeOptions, payload string) error {
	decoder, err := newDecoder(opts.registry, opts.primary)
	if err != nil {
		return err
	}

	primary, fields := decoder.Primary(unescapePayload(payload))
	_, found := fields[decoder.PrimaryIdentifier()]

	if opts.asJSON {
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"primary":      primary,
			"primaryFound": found,
			"fields":       fields,
		})
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AI\tVALUE")
	ids := make([]string, 0, len(fields))
	for id := range fields {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "%s\t%s\n", id, fields[id])
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if found {
		fmt.Fprintf(cmd.OutOrStdout(), "\nmatch code: %s\n", primary)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "\nno (%s) field, raw payload is matched: %s\n", decoder.PrimaryIdentifier(), primary)
	}
	return nil
}
