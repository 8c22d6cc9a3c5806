package cmd

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var watchFolder bool

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load the CSV folder into the database",
	Long:  `Ingest replaces the tables of the configured database with the CSV files of the data folder. With --watch it keeps reloading on every change until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		conn, reg, err := loadCatalog(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		cat := reg.Catalog()
		rows := 0
		for _, t := range cat.Tables() {
			rows += t.RowCount
		}
		pterm.Success.Printfln("Loaded %d tables (%d rows) from %s", cat.Len(), rows, reg.Folder())

		if !watchFolder && !cfg.Data.Watch {
			return nil
		}
		pterm.Info.Println("Watching for changes, press Ctrl+C to stop")
		return reg.Watch(ctx, cfg.Data.WatchDebounce)
	},
}

func init() {
	ingestCmd.Flags().BoolVarP(&watchFolder, "watch", "w", false, "keep reloading when CSV files change")
	rootCmd.AddCommand(ingestCmd)
}
