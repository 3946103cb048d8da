package plate_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/xraph/plate"
	"github.com/xraph/plate/lp"
	"github.com/xraph/plate/store/memory"
)

// TestDocumentationExamples runs the package documentation walkthrough.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		engine := plate.New(memory.New(), plate.WithLogger(slog.Default()))

		ctx := context.Background()
		if err := engine.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer engine.Stop()

		ctx = plate.WithTenant(ctx, "acme")

		p, err := engine.CreateLicensePlate(ctx, lp.CreateInput{
			ProductID:   "sku-42",
			WarehouseID: "wh-1",
			Quantity:    plate.QtyInt(100),
			UoM:         "ea",
			QAStatus:    lp.QAPassed,
		})
		if err != nil {
			t.Fatalf("CreateLicensePlate: %v", err)
		}

		candidates, err := engine.FindAvailable(ctx, plate.AvailabilityQuery{
			ProductID:   "sku-42",
			WarehouseID: "wh-1",
			Strategy:    plate.FEFO,
		})
		if err != nil {
			t.Fatalf("FindAvailable: %v", err)
		}
		if len(candidates) != 1 || candidates[0].LicensePlate.ID.String() != p.ID.String() {
			t.Fatalf("expected the created plate as the only candidate, got %d", len(candidates))
		}

		res, err := engine.Reserve(ctx, plate.ReserveRequest{
			LicensePlateID: p.ID,
			DemandRef:      "mo-1001/line-3",
			Quantity:       plate.QtyInt(60),
		})
		if err != nil {
			t.Fatalf("Reserve: %v", err)
		}
		if _, err := engine.Consume(ctx, plate.ConsumeRequest{ReservationID: res.Reservation.ID}); err != nil {
			t.Fatalf("Consume: %v", err)
		}

		_, err = engine.Reserve(ctx, plate.ReserveRequest{
			LicensePlateID: p.ID,
			DemandRef:      "mo-1002",
			Quantity:       plate.QtyInt(41),
		})
		if plate.CodeOf(err) != plate.CodeExceedsAvailable {
			t.Fatalf("expected %s, got %v", plate.CodeExceedsAvailable, err)
		}
	})
}
