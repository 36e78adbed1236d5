package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/AutoSherpa/internal/models"
)

// SeedIfEmpty adds cars to repo when it holds no inventory yet and returns
// how many were added.
func SeedIfEmpty(ctx context.Context, repo InventoryRepo, cars []models.CarRecord) (int, error) {
	n, err := repo.CountCars(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	for i, c := range cars {
		if _, err := repo.AddCar(ctx, c); err != nil {
			return i, fmt.Errorf("seed inventory: %w", err)
		}
	}
	slog.Info("SeedIfEmpty: inventory seeded", "count", len(cars))
	return len(cars), nil
}

// DemoInventory is a small used-car catalogue for demos and local runs.
func DemoInventory() []models.CarRecord {
	return []models.CarRecord{
		{Brand: "Maruti", Model: "Swift", Variant: "VXI", Type: "Hatchback", Fuel: "Petrol", Transmission: "Manual", Year: 2018, KmsDriven: 42000, Owner: "First", Color: "Red", Price: 475000},
		{Brand: "Hyundai", Model: "i20", Variant: "Asta", Type: "Hatchback", Fuel: "Petrol", Transmission: "Manual", Year: 2019, KmsDriven: 35000, Owner: "First", Color: "White", Price: 625000},
		{Brand: "Honda", Model: "City", Variant: "V CVT", Type: "Sedan", Fuel: "Petrol", Transmission: "Automatic", Year: 2019, KmsDriven: 38000, Owner: "First", Color: "Silver", Price: 875000},
		{Brand: "Hyundai", Model: "Verna", Variant: "SX", Type: "Sedan", Fuel: "Diesel", Transmission: "Manual", Year: 2020, KmsDriven: 45000, Owner: "Second", Color: "Grey", Price: 950000},
		{Brand: "Tata", Model: "Nexon", Variant: "XZ+", Type: "SUV", Fuel: "Petrol", Transmission: "Manual", Year: 2021, KmsDriven: 22000, Owner: "First", Color: "Blue", Price: 890000},
		{Brand: "Hyundai", Model: "Creta", Variant: "SX", Type: "SUV", Fuel: "Diesel", Transmission: "Automatic", Year: 2021, KmsDriven: 28000, Owner: "First", Color: "White", Price: 1450000},
		{Brand: "Kia", Model: "Seltos", Variant: "HTX", Type: "SUV", Fuel: "Petrol", Transmission: "Manual", Year: 2020, KmsDriven: 31000, Owner: "First", Color: "Black", Price: 1325000},
		{Brand: "Mahindra", Model: "XUV700", Variant: "AX7", Type: "SUV", Fuel: "Diesel", Transmission: "Automatic", Year: 2022, KmsDriven: 18000, Owner: "First", Color: "Red", Price: 2150000},
		{Brand: "Toyota", Model: "Innova Crysta", Variant: "2.4 VX", Type: "MUV", Fuel: "Diesel", Transmission: "Manual", Year: 2019, KmsDriven: 65000, Owner: "Second", Color: "Silver", Price: 1675000},
		{Brand: "Maruti", Model: "Ertiga", Variant: "ZXI", Type: "MUV", Fuel: "CNG", Transmission: "Manual", Year: 2020, KmsDriven: 52000, Owner: "First", Color: "Brown", Price: 860000},
		{Brand: "Honda", Model: "Amaze", Variant: "VX", Type: "Sedan", Fuel: "Petrol", Transmission: "Manual", Year: 2017, KmsDriven: 58000, Owner: "Second", Color: "White", Price: 450000},
		{Brand: "Toyota", Model: "Fortuner", Variant: "4x2 AT", Type: "SUV", Fuel: "Diesel", Transmission: "Automatic", Year: 2020, KmsDriven: 48000, Owner: "First", Color: "White", Price: 3100000},
	}
}
