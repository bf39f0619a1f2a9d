package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/justapithecus/embedset/embedset"
)

func (a *app) exportCmd() *cobra.Command {
	var (
		datasetPath string
		save        saveFlags
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Save the records of a result dataset",
		Long: `Read a dataset description (the JSON returned by the datasets API) and
stream every record of every part to a file or S3 key.

Examples:
  embedset export --dataset ds.json --out records.jsonl
  curl -s $API/datasets/ds-1 | jq .dataset | embedset export --dataset - -o out.csv -f csv
  embedset export --dataset ds.json --s3-key exports/ds-1.jsonl.zst --compress zstd`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !save.requested() {
				return errors.New("one of --out or --s3-key is required")
			}

			var r io.Reader = cmd.InOrStdin()
			if datasetPath != "-" {
				f, err := os.Open(datasetPath)
				if err != nil {
					return fmt.Errorf("open dataset description: %w", err)
				}
				defer func() { _ = f.Close() }()
				r = f
			}

			payload, err := embedset.ParsePayload(r)
			if err != nil {
				return err
			}
			ds, err := embedset.DatasetFromPayload(payload)
			if err != nil {
				return err
			}

			n, dest, err := a.saveDataset(cmd.Context(), ds, save)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %d records to %s\n", n, dest)
			return nil
		},
	}

	cmd.Flags().StringVarP(&datasetPath, "dataset", "d", "-", "dataset description file, - for stdin")
	save.register(cmd)
	return cmd
}
