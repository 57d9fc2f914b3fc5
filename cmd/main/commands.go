package main

import (
	"encoding/json"
	"fmt"
	"io"

	"catalog/taxonomy/internal/container"
	"catalog/taxonomy/internal/domain"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	log.Info("Starting taxonomy console...")

	app, err := container.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize container: %w", err)
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		return fmt.Errorf("application exited with error: %w", err)
	}

	log.Info("Application finished successfully")
	return nil
}

func runTree(cmd *cobra.Command, args []string) error {
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return fmt.Errorf("failed to read --json flag: %w", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	app, err := container.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize container: %w", err)
	}
	defer app.Close()

	snap, err := app.Service.Tree(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	printTree(out, snap)
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	app, err := container.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize container: %w", err)
	}
	defer app.Close()

	return app.Sync(ctx)
}

func printTree(w io.Writer, snap *domain.Snapshot) {
	for _, c := range snap.Categories {
		fmt.Fprintf(w, "%s %s%s\n", c.ID, c.Name, inactive(c.IsActive))
		for _, sub := range c.Subcategories {
			fmt.Fprintf(w, "  %s %s%s\n", sub.ID, sub.Name, inactive(sub.IsActive))
			if msg, failed := snap.BranchErrors[sub.ID]; failed {
				fmt.Fprintf(w, "    ! %s\n", msg)
			}
			for _, leaf := range snap.SubSubcategories(sub.ID) {
				fmt.Fprintf(w, "    %s %s%s\n", leaf.ID, leaf.Name, inactive(leaf.IsActive))
			}
		}
	}

	counts := snap.NodeCount()
	fmt.Fprintf(w, "\n%d categories, %d subcategories, %d sub-subcategories\n",
		counts[domain.LevelCategory], counts[domain.LevelSubcategory], counts[domain.LevelSubSubcategory])
}

func inactive(active bool) string {
	if active {
		return ""
	}
	return " (inactive)"
}
