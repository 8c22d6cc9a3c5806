package cmd

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Load the CSV folder and list the tables it produces",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, reg, err := loadCatalog(cmd.Context())
		if err != nil {
			return err
		}
		defer conn.Close()

		tables := reg.Catalog().Tables()
		if len(tables) == 0 {
			pterm.Println("No tables available.")
			return nil
		}

		data := pterm.TableData{{"Table", "Rows", "Columns", "Source"}}
		for _, t := range tables {
			cols := make([]string, len(t.Columns))
			for i, c := range t.Columns {
				cols[i] = c.Name + " " + c.Type
			}
			data = append(data, []string{t.Name, fmt.Sprint(t.RowCount), strings.Join(cols, ", "), t.SourceFile})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func init() {
	rootCmd.AddCommand(tablesCmd)
}
