package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Boticus-OG/Titan/pkg/deck"
)

var validateDeckCmd = &cobra.Command{
	Use:   "validate-deck PATH",
	Short: "Load and validate a deck file without starting anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		d, err := deck.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load deck: %w", err)
		}

		if err := d.Validate(); err != nil {
			var ve *deck.ValidationError
			if errors.As(err, &ve) {
				fmt.Printf("Deck %q is invalid (%d problem(s)):\n", path, len(ve.Problems))
				for _, p := range ve.Problems {
					fmt.Printf("  - %s\n", p)
				}
				return fmt.Errorf("deck validation failed")
			}
			return err
		}

		fmt.Printf("Deck %q is valid\n", path)
		fmt.Printf("  Tiles:     %d\n", len(d.Tiles))
		fmt.Printf("  Tracks:    %d\n", len(d.Tracks))
		fmt.Printf("  Locations: %d\n", len(d.Locations))
		fmt.Printf("  Stations:  %d\n", len(d.Stations))
		fmt.Printf("  Movers:    %d\n", len(d.Movers))
		fmt.Printf("  Devices:   %d\n", len(d.Devices))
		return nil
	},
}
