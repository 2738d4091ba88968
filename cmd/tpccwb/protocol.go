package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/ruslano69/tpcc-workbench/pkg/backend"
	"github.com/ruslano69/tpcc-workbench/pkg/tpcc"
)

// cmdNewOrder - протокол New-Order
func cmdNewOrder(args []string) int {
	fs := flag.NewFlagSet("new-order", flag.ContinueOnError)
	common := addCommonFlags(fs)
	w := fs.Int64("w", 0, "warehouse id")
	d := fs.Int64("d", 0, "district id")
	c := fs.Int64("c", 0, "customer id")
	items := fs.String("items", "", "order lines: item:qty[:supply_warehouse],...")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *w <= 0 || *d <= 0 || *c <= 0 {
		return usageError(fs, "new-order requires --w, --d and --c")
	}
	lines, err := parseOrderLines(*items)
	if err != nil {
		return usageError(fs, "invalid --items: %v", err)
	}

	ctx := context.Background()
	a, err := buildApp(ctx, common)
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	outcome, err := a.service.NewOrder(ctx, backend.NewOrderRequest{
		WarehouseID: *w,
		DistrictID:  *d,
		CustomerID:  *c,
		Lines:       lines,
	})
	if err != nil {
		return fail(err)
	}
	if a.jsonOut {
		if err := printJSON(outcome); err != nil {
			return fail(err)
		}
		return exitOK
	}

	local := ""
	if outcome.Order.AllLocal {
		local = ", all local"
	}
	fmt.Printf("✓ Order %d placed: %d lines, total %.2f%s\n",
		outcome.Order.OrderID, len(outcome.Order.Lines), outcome.Order.TotalAmount, local)
	for _, line := range outcome.Order.Lines {
		fmt.Printf("  %6d  %-24s  x%-3d  %8.2f  (stock %d)\n",
			line.ItemID, line.ItemName, line.Quantity, line.Amount, line.StockRemaining)
	}
	printWarnings(outcome.Warnings)
	return exitOK
}

// parseOrderLines разбирает позиции заказа из "item:qty[:supply],..."
func parseOrderLines(spec string) ([]backend.NewOrderLine, error) {
	if spec == "" {
		return nil, fmt.Errorf("at least one item:qty pair is required")
	}
	var lines []backend.NewOrderLine
	for _, part := range strings.Split(spec, ",") {
		fields := strings.Split(strings.TrimSpace(part), ":")
		if len(fields) < 2 || len(fields) > 3 {
			return nil, fmt.Errorf("%q: expected item:qty or item:qty:supply_warehouse", part)
		}
		item, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q: bad item id", part)
		}
		qty, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q: bad quantity", part)
		}
		line := backend.NewOrderLine{ItemID: item, Quantity: qty}
		if len(fields) == 3 {
			supply, err := strconv.ParseInt(fields[2], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%q: bad supply warehouse", part)
			}
			line.SupplyWarehouseID = supply
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// cmdPayment - протокол Payment
func cmdPayment(args []string) int {
	fs := flag.NewFlagSet("payment", flag.ContinueOnError)
	common := addCommonFlags(fs)
	w := fs.Int64("w", 0, "warehouse id")
	d := fs.Int64("d", 0, "district id")
	c := fs.Int64("c", 0, "customer id")
	cw := fs.Int64("cw", 0, "customer home warehouse (default: --w)")
	cd := fs.Int64("cd", 0, "customer home district (default: --d)")
	amount := fs.Float64("amount", 0, "payment amount")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *w <= 0 || *d <= 0 || *c <= 0 || *amount <= 0 {
		return usageError(fs, "payment requires --w, --d, --c and --amount")
	}

	ctx := context.Background()
	a, err := buildApp(ctx, common)
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	outcome, err := a.service.Payment(ctx, tpcc.PaymentRequest{
		WarehouseID:         *w,
		DistrictID:          *d,
		CustomerWarehouseID: *cw,
		CustomerDistrictID:  *cd,
		CustomerID:          *c,
		Amount:              *amount,
	})
	if err != nil {
		return fail(err)
	}
	if a.jsonOut {
		if err := printJSON(outcome); err != nil {
			return fail(err)
		}
		return exitOK
	}

	fmt.Printf("✓ Payment %.2f recorded for customer %d.%d.%d\n",
		outcome.Amount, outcome.WarehouseID, outcome.DistrictID, outcome.CustomerID)
	fmt.Printf("  balance: %.2f → %.2f\n", outcome.PrevBalance, outcome.NewBalance)
	if !outcome.HistoryWritten {
		fmt.Println("  history row was not written (queued for replay)")
	}
	printWarnings(outcome.Warnings)
	return exitOK
}

// cmdOrderStatus - протокол Order-Status
func cmdOrderStatus(args []string) int {
	fs := flag.NewFlagSet("order-status", flag.ContinueOnError)
	common := addCommonFlags(fs)
	w := fs.Int64("w", 0, "warehouse id")
	d := fs.Int64("d", 0, "district id")
	c := fs.Int64("c", 0, "customer id")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *w <= 0 || *d <= 0 || *c <= 0 {
		return usageError(fs, "order-status requires --w, --d and --c")
	}

	ctx := context.Background()
	a, err := buildApp(ctx, common)
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	outcome, err := a.service.OrderStatus(ctx, tpcc.OrderStatusRequest{
		WarehouseID: *w,
		DistrictID:  *d,
		CustomerID:  *c,
	})
	if err != nil {
		return fail(err)
	}
	if a.jsonOut {
		if err := printJSON(outcome); err != nil {
			return fail(err)
		}
		return exitOK
	}

	fmt.Printf("Customer %d: %s %s %s, balance %.2f\n",
		outcome.CustomerID, outcome.FirstName, outcome.MiddleName, outcome.LastName, outcome.Balance)
	carrier := "not assigned"
	if outcome.CarrierID > 0 {
		carrier = strconv.FormatInt(outcome.CarrierID, 10)
	}
	fmt.Printf("Order %d from %s, carrier: %s\n", outcome.OrderID, outcome.EntryDate, carrier)
	for _, line := range outcome.Lines {
		delivered := "pending"
		if line.DeliveryDate != "" {
			delivered = line.DeliveryDate
		}
		fmt.Printf("  #%d  item %d  wh %d  x%d  %8.2f  %s\n",
			line.Number, line.ItemID, line.SupplyWarehouseID, line.Quantity, line.Amount, delivered)
	}
	return exitOK
}

// cmdDelivery - протокол Delivery
func cmdDelivery(args []string) int {
	fs := flag.NewFlagSet("delivery", flag.ContinueOnError)
	common := addCommonFlags(fs)
	w := fs.Int64("w", 0, "warehouse id")
	carrier := fs.Int64("carrier", 0, "carrier id to assign")
	districts := fs.String("districts", "", "districts to process, comma-separated (default: all)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *w <= 0 || *carrier <= 0 {
		return usageError(fs, "delivery requires --w and --carrier")
	}
	districtIDs, err := parseIDList(*districts)
	if err != nil {
		return usageError(fs, "invalid --districts: %v", err)
	}

	ctx := context.Background()
	a, err := buildApp(ctx, common)
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	outcome, err := a.service.Delivery(ctx, tpcc.DeliveryRequest{
		WarehouseID: *w,
		CarrierID:   *carrier,
		Districts:   districtIDs,
	})
	if err != nil {
		return fail(err)
	}
	if a.jsonOut {
		if err := printJSON(outcome); err != nil {
			return fail(err)
		}
		return exitOK
	}

	fmt.Printf("✓ Carrier %d assigned: %d orders delivered\n", outcome.CarrierID, len(outcome.Delivered))
	for _, order := range outcome.Delivered {
		fmt.Printf("  district %2d: order %d, customer %d, amount %.2f\n",
			order.DistrictID, order.OrderID, order.CustomerID, order.Amount)
	}
	if len(outcome.Skipped) > 0 {
		fmt.Printf("  districts with no pending orders: %v\n", outcome.Skipped)
	}
	return exitOK
}

// parseIDList разбирает список идентификаторов "1,2,3"
func parseIDList(spec string) ([]int64, error) {
	if spec == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(spec, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// cmdStockLevel - протокол Stock-Level
func cmdStockLevel(args []string) int {
	fs := flag.NewFlagSet("stock-level", flag.ContinueOnError)
	common := addCommonFlags(fs)
	w := fs.Int64("w", 0, "warehouse id")
	d := fs.Int64("d", 0, "district id")
	threshold := fs.Int64("threshold", 10, "stock threshold")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *w <= 0 || *d <= 0 {
		return usageError(fs, "stock-level requires --w and --d")
	}

	ctx := context.Background()
	a, err := buildApp(ctx, common)
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	outcome, err := a.service.StockLevel(ctx, tpcc.StockLevelRequest{
		WarehouseID: *w,
		DistrictID:  *d,
		Threshold:   *threshold,
	})
	if err != nil {
		return fail(err)
	}
	if a.jsonOut {
		if err := printJSON(outcome); err != nil {
			return fail(err)
		}
		return exitOK
	}

	if outcome.Method == tpcc.StockLevelMethodWarehouse {
		fmt.Printf("✓ %d items below threshold %d (warehouse-wide count, warehouse %d)\n",
			outcome.LowStockCount, outcome.Threshold, outcome.WarehouseID)
	} else {
		fmt.Printf("✓ %d items below threshold %d (orders %d..%d, warehouse %d, district %d)\n",
			outcome.LowStockCount, outcome.Threshold,
			outcome.OldestOrderID, outcome.NextOrderID-1, outcome.WarehouseID, outcome.DistrictID)
	}
	for _, item := range outcome.Items {
		fmt.Printf("  %6d  %-24s  %d\n", item.ItemID, item.Name, item.Quantity)
	}
	printWarnings(outcome.Warnings)
	return exitOK
}

// printWarnings печатает нефатальные отклонения операции
func printWarnings(warnings []string) {
	for _, warning := range warnings {
		fmt.Printf("  warning: %s\n", warning)
	}
}
