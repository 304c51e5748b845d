package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/botchat/internal/config"
	"github.com/nextlevelbuilder/botchat/internal/routing"
	"github.com/nextlevelbuilder/botchat/internal/store"
)

const personaColumnWidth = 48

func botsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bots",
		Short: "List configured bots",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			stores, err := openStores(cfg)
			if err != nil {
				return err
			}
			defer stores.Close()

			bots, err := routing.NewService(stores, nil).ListBots(context.Background())
			if err != nil {
				return err
			}
			printBotTable(os.Stdout, bots)
			return nil
		},
	}
}

// printBotTable writes an aligned table. Widths are display cells, so
// names with wide or combining characters still line up.
func printBotTable(w io.Writer, bots []store.UserData) {
	if len(bots) == 0 {
		fmt.Fprintln(w, "no bots configured")
		return
	}
	headers := []string{"NAME", "MODEL", "ID", "PERSONA"}
	rows := make([][]string, 0, len(bots))
	for _, b := range bots {
		persona := strings.TrimSuffix(b.SystemPrompt, routing.BrevityInstruction)
		persona = strings.Join(strings.Fields(persona), " ")
		rows = append(rows, []string{
			b.Name,
			string(b.Model),
			b.ID.String(),
			runewidth.Truncate(persona, personaColumnWidth, "..."),
		})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, r := range rows {
		for i, cell := range r {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	writeRow := func(cells []string) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			if i == len(cells)-1 {
				parts[i] = cell
				continue
			}
			parts[i] = runewidth.FillRight(cell, widths[i])
		}
		fmt.Fprintln(w, strings.Join(parts, "  "))
	}
	writeRow(headers)
	for _, r := range rows {
		writeRow(r)
	}
}
