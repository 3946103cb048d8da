package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/xraph/plate"
	"github.com/xraph/plate/genealogy"
	"github.com/xraph/plate/id"
	"github.com/xraph/plate/lp"
)

const dateLayout = "2006-01-02"

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the store schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Opening the engine migrates.
			return c.run(cmd, func(context.Context) (any, error) {
				return map[string]string{"status": "migrated"}, nil
			})
		},
	}
}

func (c *cli) createCmd() *cobra.Command {
	var (
		in       lp.CreateInput
		qty      string
		expiry   string
		mfg      string
		qa       string
		status   string
		source   string
		metadata map[string]string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a license plate",
		Example: `  platectl create --product sku-1 --warehouse wh-1 --qty 100 --uom ea --qa passed
  platectl create --product sku-2 --warehouse wh-1 --qty 12.5 --uom kg --batch B7 --expiry 2025-03-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if in.Quantity, err = parseQuantity(qty); err != nil {
				return err
			}
			if in.ExpiryDate, err = parseDate(expiry); err != nil {
				return err
			}
			if in.ManufactureDate, err = parseDate(mfg); err != nil {
				return err
			}
			in.QAStatus = lp.QAStatus(qa)
			in.Status = lp.Status(status)
			in.Source = lp.Source(source)
			in.Metadata = metadata
			in.ActorID = c.actor
			return c.run(cmd, func(ctx context.Context) (any, error) {
				return c.engine.CreateLicensePlate(ctx, in)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Number, "number", "", "Plate number (generated when empty)")
	f.StringVar(&in.ProductID, "product", "", "Product ID")
	f.StringVar(&in.WarehouseID, "warehouse", "", "Warehouse ID")
	f.StringVar(&in.LocationID, "location", "", "Location ID")
	f.StringVar(&qty, "qty", "", "Quantity")
	f.StringVar(&in.UoM, "uom", "", "Unit of measure")
	f.StringVar(&in.BatchNumber, "batch", "", "Batch number")
	f.StringVar(&expiry, "expiry", "", "Expiry date (YYYY-MM-DD)")
	f.StringVar(&mfg, "manufactured", "", "Manufacture date (YYYY-MM-DD)")
	f.StringVar(&qa, "qa", "", "Initial QA status")
	f.StringVar(&status, "status", "", "Initial status (available or pending)")
	f.StringVar(&source, "source", "", "Source (manual, receiving, production, ...)")
	f.StringToStringVar(&metadata, "meta", nil, "Metadata key=value pairs")
	_ = cmd.MarkFlagRequired("product")
	_ = cmd.MarkFlagRequired("warehouse")
	_ = cmd.MarkFlagRequired("qty")
	_ = cmd.MarkFlagRequired("uom")
	return cmd
}

func (c *cli) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get LP_ID",
		Short: "Show a license plate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lpID, err := id.ParseLicensePlateID(args[0])
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context) (any, error) {
				return c.engine.GetLicensePlate(ctx, lpID)
			})
		},
	}
}

func (c *cli) availableCmd() *cobra.Command {
	var (
		q         plate.AvailabilityQuery
		strategy  string
		required  string
		qa        []string
		locations []string
	)
	cmd := &cobra.Command{
		Use:   "available",
		Short: "List plates that can be allocated, in allocation order",
		Long: `List plates that can be allocated for a product in a warehouse.

With --required, prints the allocation that would cover the quantity
instead of the full candidate list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q.Strategy = plate.Strategy(strategy)
			q.Filters.LocationIDs = locations
			for _, s := range qa {
				q.Filters.QAStatuses = append(q.Filters.QAStatuses, lp.QAStatus(s))
			}
			return c.run(cmd, func(ctx context.Context) (any, error) {
				if required == "" {
					return c.engine.FindAvailable(ctx, q)
				}
				need, err := parseQuantity(required)
				if err != nil {
					return nil, err
				}
				return c.engine.SuggestAllocation(ctx, q, need)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&q.ProductID, "product", "", "Product ID")
	f.StringVar(&q.WarehouseID, "warehouse", "", "Warehouse ID")
	f.StringVar(&strategy, "strategy", string(plate.FIFO), "Allocation order: fifo or fefo")
	f.BoolVar(&q.Filters.IncludeExpired, "include-expired", false, "Include expired plates")
	f.StringSliceVar(&qa, "qa", nil, "Acceptable QA statuses (overrides configuration)")
	f.StringSliceVar(&locations, "location", nil, "Restrict to locations")
	f.StringVar(&q.Filters.BatchNumber, "batch", "", "Restrict to a batch")
	f.StringVar(&required, "required", "", "Suggest an allocation for this quantity")
	_ = cmd.MarkFlagRequired("product")
	_ = cmd.MarkFlagRequired("warehouse")
	return cmd
}

func (c *cli) reserveCmd() *cobra.Command {
	var (
		req       plate.ReserveRequest
		qty       string
		auto      bool
		strategy  string
		warehouse string
		product   string
	)
	cmd := &cobra.Command{
		Use:   "reserve [LP_ID]",
		Short: "Reserve quantity on a plate, or across plates with --auto",
		Example: `  platectl reserve lp_01h... --demand so-1 --qty 40
  platectl reserve --auto --product sku-1 --warehouse wh-1 --demand so-2 --qty 250 --strategy fefo`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseQuantity(qty)
			if err != nil {
				return err
			}
			if auto {
				ar := plate.AutoReserveRequest{
					Query: plate.AvailabilityQuery{
						ProductID:   product,
						WarehouseID: warehouse,
						Strategy:    plate.Strategy(strategy),
					},
					DemandRef: req.DemandRef,
					Quantity:  amount,
					ActorID:   c.actor,
				}
				return c.run(cmd, func(ctx context.Context) (any, error) {
					return c.engine.AutoReserve(ctx, ar)
				})
			}

			if len(args) != 1 {
				return fmt.Errorf("reserve needs an LP_ID unless --auto is set")
			}
			if req.LicensePlateID, err = id.ParseLicensePlateID(args[0]); err != nil {
				return err
			}
			req.Quantity = amount
			req.ActorID = c.actor
			req.ExpectedProductID = product
			req.ExpectedWarehouseID = warehouse
			return c.run(cmd, func(ctx context.Context) (any, error) {
				return c.engine.Reserve(ctx, req)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.DemandRef, "demand", "", "Demand reference")
	f.StringVar(&qty, "qty", "", "Quantity")
	f.BoolVar(&req.AllowOverCommit, "allow-over-commit", false, "Accept exceeding the free quantity (warn policy only)")
	f.BoolVar(&auto, "auto", false, "Spread the quantity over available plates")
	f.StringVar(&product, "product", "", "Expected product (required with --auto)")
	f.StringVar(&warehouse, "warehouse", "", "Expected warehouse (required with --auto)")
	f.StringVar(&strategy, "strategy", string(plate.FIFO), "Allocation order with --auto: fifo or fefo")
	_ = cmd.MarkFlagRequired("demand")
	_ = cmd.MarkFlagRequired("qty")
	return cmd
}

func (c *cli) releaseCmd() *cobra.Command {
	var demand string
	cmd := &cobra.Command{
		Use:   "release [RSV_ID]",
		Short: "Release a reservation, or every reservation of a demand",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if demand != "" {
				return c.run(cmd, func(ctx context.Context) (any, error) {
					return c.engine.ReleaseByDemand(ctx, demand, c.actor)
				})
			}
			if len(args) != 1 {
				return fmt.Errorf("release needs an RSV_ID or --demand")
			}
			rsvID, err := id.ParseReservationID(args[0])
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context) (any, error) {
				return c.engine.Release(ctx, rsvID, c.actor)
			})
		},
	}
	cmd.Flags().StringVar(&demand, "demand", "", "Release all active reservations of this demand")
	return cmd
}

func (c *cli) consumeCmd() *cobra.Command {
	var (
		output       string
		operationRef string
	)
	cmd := &cobra.Command{
		Use:   "consume RSV_ID",
		Short: "Consume a reservation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := plate.ConsumeRequest{ActorID: c.actor}
			var err error
			if req.ReservationID, err = id.ParseReservationID(args[0]); err != nil {
				return err
			}
			if output != "" {
				outID, err := id.ParseLicensePlateID(output)
				if err != nil {
					return err
				}
				req.Output = &plate.ConsumptionContext{OutputLicensePlateID: outID, OperationRef: operationRef}
			}
			return c.run(cmd, func(ctx context.Context) (any, error) {
				return c.engine.Consume(ctx, req)
			})
		},
	}
	cmd.Flags().StringVar(&output, "output-lp", "", "Record genealogy to this output plate")
	cmd.Flags().StringVar(&operationRef, "operation", "", "Operation reference for the genealogy record")
	return cmd
}

func (c *cli) splitCmd() *cobra.Command {
	var (
		qty string
		req plate.SplitRequest
	)
	cmd := &cobra.Command{
		Use:   "split LP_ID",
		Short: "Move part of a plate's quantity onto a new plate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if req.SourceID, err = id.ParseLicensePlateID(args[0]); err != nil {
				return err
			}
			if req.Quantity, err = parseQuantity(qty); err != nil {
				return err
			}
			req.ActorID = c.actor
			return c.run(cmd, func(ctx context.Context) (any, error) {
				return c.engine.Split(ctx, req)
			})
		},
	}
	cmd.Flags().StringVar(&qty, "qty", "", "Quantity for the new plate")
	cmd.Flags().StringVar(&req.DestinationLocationID, "location", "", "Location of the new plate")
	cmd.Flags().StringVar(&req.OperationRef, "operation", "", "Operation reference")
	_ = cmd.MarkFlagRequired("qty")
	return cmd
}

func (c *cli) mergeCmd() *cobra.Command {
	var req plate.MergeRequest
	cmd := &cobra.Command{
		Use:   "merge LP_ID LP_ID...",
		Short: "Combine plates of the same product, batch and UoM into a new plate",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, a := range args {
				lpID, err := id.ParseLicensePlateID(a)
				if err != nil {
					return err
				}
				req.IDs = append(req.IDs, lpID)
			}
			req.ActorID = c.actor
			return c.run(cmd, func(ctx context.Context) (any, error) {
				return c.engine.Merge(ctx, req)
			})
		},
	}
	cmd.Flags().StringVar(&req.DestinationLocationID, "location", "", "Location of the merged plate")
	cmd.Flags().StringVar(&req.OperationRef, "operation", "", "Operation reference")
	return cmd
}

func (c *cli) statusCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "status LP_ID STATUS",
		Short: "Change a plate's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lpID, err := id.ParseLicensePlateID(args[0])
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context) (any, error) {
				return c.engine.ChangeStatus(ctx, lpID, lp.Status(args[1]), c.actor, reason)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the audit trail")
	return cmd
}

func (c *cli) qaCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "qa LP_ID QA_STATUS",
		Short: "Record a QA disposition; failed and quarantine cascade to the plate status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lpID, err := id.ParseLicensePlateID(args[0])
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context) (any, error) {
				return c.engine.UpdateQAStatus(ctx, lpID, lp.QAStatus(args[1]), c.actor, reason)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the audit trail")
	return cmd
}

func (c *cli) traceCmd() *cobra.Command {
	var (
		direction string
		depth     int
		tree      bool
	)
	cmd := &cobra.Command{
		Use:   "trace LP_ID",
		Short: "Follow a plate's genealogy forward or backward",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lpID, err := id.ParseLicensePlateID(args[0])
			if err != nil {
				return err
			}
			dir := genealogy.Direction(direction)
			if dir != genealogy.Forward && dir != genealogy.Backward {
				return fmt.Errorf("unknown direction %q: use forward or backward", direction)
			}
			return c.run(cmd, func(ctx context.Context) (any, error) {
				if tree {
					return c.engine.FullTree(ctx, lpID, dir, depth)
				}
				if dir == genealogy.Backward {
					return c.engine.BackwardTrace(ctx, lpID, depth)
				}
				return c.engine.ForwardTrace(ctx, lpID, depth)
			})
		},
	}
	cmd.Flags().StringVarP(&direction, "direction", "d", string(genealogy.Forward), "forward or backward")
	cmd.Flags().IntVar(&depth, "depth", 0, "Maximum depth (0 for the default)")
	cmd.Flags().BoolVar(&tree, "tree", false, "Print a nested tree instead of a flat trace")
	return cmd
}

func (c *cli) auditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit LP_ID",
		Short: "Show a plate's status history, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lpID, err := id.ParseLicensePlateID(args[0])
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context) (any, error) {
				return c.engine.AuditTrail(ctx, lpID)
			})
		},
	}
}

func parseQuantity(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid quantity %q: %w", s, err)
	}
	return d, nil
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return &t, nil
}
