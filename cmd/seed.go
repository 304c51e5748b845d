package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/botchat/internal/bootstrap"
	"github.com/nextlevelbuilder/botchat/internal/config"
	"github.com/nextlevelbuilder/botchat/internal/routing"
)

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create users and bots from a YAML seed file",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			seed, err := bootstrap.LoadSeed(file)
			if err != nil {
				return err
			}
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			stores, err := openStores(cfg)
			if err != nil {
				return err
			}
			defer stores.Close()

			res, err := bootstrap.Apply(context.Background(), routing.NewService(stores, nil), seed)
			if err != nil {
				return err
			}
			fmt.Printf("seeded %d users, %d bots (%d already present)\n", res.Users, res.BotsCreated, res.BotsSkipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "seed.yaml", "seed file")
	return cmd
}
