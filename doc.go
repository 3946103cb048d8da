// Package plate provides a license plate inventory engine for Go
// applications.
//
// A license plate (LP) is a discrete, traceable quantity of one product in
// one warehouse. Plate tracks each plate's quantity and status, computes how
// much of it is still free under concurrent demand, reserves it for
// downstream consumers, and splits or merges plates while recording the
// lineage of every quantity movement.
//
// Plate is a library, not a service. It provides:
//
//   - FIFO and FEFO availability queries recomputed on every call
//   - Reservations that never over-allocate a plate
//   - Split and merge with an append-only genealogy ledger
//   - A status state machine with QA-driven cascades and an audit trail
//   - Optimistic concurrency with bounded retry
//   - Memory, PostgreSQL, SQLite and Badger stores
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/plate"
//	    "github.com/xraph/plate/store/memory"
//	)
//
//	engine := plate.New(memory.New())
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
//	ctx = plate.WithTenant(ctx, "acme")
//
// # Core Concepts
//
// Plates are created on receipt, production or by hand:
//
//	p, err := engine.CreateLicensePlate(ctx, lp.CreateInput{
//	    ProductID:   "sku-42",
//	    WarehouseID: "wh-1",
//	    Quantity:    plate.QtyInt(100),
//	    UoM:         "ea",
//	    QAStatus:    lp.QAPassed,
//	})
//
// Availability lists plates with free quantity in strategy order:
//
//	candidates, err := engine.FindAvailable(ctx, plate.AvailabilityQuery{
//	    ProductID:   "sku-42",
//	    WarehouseID: "wh-1",
//	    Strategy:    plate.FEFO,
//	})
//
// Reservations claim quantity for a demand and are later released or
// consumed:
//
//	res, err := engine.Reserve(ctx, plate.ReserveRequest{
//	    LicensePlateID: p.ID,
//	    DemandRef:      "mo-1001/line-3",
//	    Quantity:       plate.QtyInt(60),
//	})
//	_, err = engine.Consume(ctx, plate.ConsumeRequest{ReservationID: res.Reservation.ID})
//
// Every error returned by the engine carries a stable code:
//
//	if plate.CodeOf(err) == plate.CodeExceedsAvailable {
//	    // offer a smaller quantity
//	}
//
// # Concurrency
//
// Every mutation runs in one store transaction. The plate's version is the
// serialization point: each write checks the version it read, and a
// conflicting write is retried with backoff up to the configured bound
// before CONCURRENT_MODIFICATION is returned. Operations that touch several
// plates lock them in ascending ID order.
//
// # TypeID
//
// All entities use TypeID identifiers:
//
//	lp_01h2xcejqtf2nbrexx3vqjhp41   // License plate
//	rsv_01h2xcejqtf2nbrexx3vqjhp41  // Reservation
//	gen_01h455vb4pex5vsknk084sn02q  // Genealogy record
package plate
