package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"plate-alert-service/internal/repository"
)

type seedOwner struct {
	name    string
	phone   string
	email   string
	plate   string
	vehicle repository.VehicleInfo
}

var sampleOwners = []seedOwner{
	{
		name:    "John Doe",
		phone:   "+233241234567",
		email:   "john.doe@example.com",
		plate:   "GR-1234-21",
		vehicle: repository.VehicleInfo{Make: "Toyota", Model: "Corolla", Color: "Silver"},
	},
	{
		name:    "Jane Smith",
		phone:   "+233209876543",
		email:   "jane.smith@example.com",
		plate:   "GW-5678-22",
		vehicle: repository.VehicleInfo{Make: "Honda", Model: "Civic", Color: "Blue"},
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert sample owners and plates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(true)
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		for _, o := range sampleOwners {
			email := o.email
			userID, err := a.repo.CreateUser(ctx, o.name, o.phone, &email)
			if err != nil {
				return fmt.Errorf("seed user %s: %w", o.name, err)
			}
			plateID, err := a.repo.GetOrCreatePlate(ctx, userID, o.plate, o.vehicle)
			if errors.Is(err, repository.ErrPlateRegistered) {
				a.log.Warn().Str("plate", o.plate).Msg("plate already seeded, skipping")
				continue
			}
			if err != nil {
				return fmt.Errorf("seed plate %s: %w", o.plate, err)
			}
			a.log.Info().
				Str("owner_id", userID.String()).
				Str("plate_id", plateID.String()).
				Str("plate", o.plate).
				Msg("seeded owner")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
