package main

import (
	"context"
	"flag"
	"fmt"
	"sort"

	"github.com/ruslano69/tpcc-workbench/pkg/tpcc"
)

// cmdOrders - листинг и статистика заказов
func cmdOrders(args []string) int {
	fs := flag.NewFlagSet("orders", flag.ContinueOnError)
	common := addCommonFlags(fs)
	w := fs.Int64("w", 0, "filter by warehouse id")
	d := fs.Int64("d", 0, "filter by district id")
	c := fs.Int64("c", 0, "filter by customer id")
	delivered := fs.Bool("delivered", false, "only delivered orders")
	pending := fs.Bool("pending", false, "only orders awaiting delivery")
	limit := fs.Int("limit", 0, "page size")
	offset := fs.Int("offset", 0, "page offset")
	stats := fs.Bool("stats", false, "print aggregate statistics instead of a listing")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *delivered && *pending {
		return usageError(fs, "--delivered and --pending are mutually exclusive")
	}

	ctx := context.Background()
	a, err := buildApp(ctx, common)
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	if *stats {
		result, err := a.service.OrderStats(ctx, tpcc.StatsFilter{WarehouseID: *w, DistrictID: *d})
		if err != nil {
			return fail(err)
		}
		if a.jsonOut {
			if err := printJSON(result); err != nil {
				return fail(err)
			}
			return exitOK
		}
		fmt.Printf("Orders: %d total, %d delivered, %d pending, %.1f lines/order\n",
			result.TotalOrders, result.DeliveredOrders, result.PendingOrders, result.AvgLinesPerOrder)
		return exitOK
	}

	filter := tpcc.OrdersFilter{
		WarehouseID: *w,
		DistrictID:  *d,
		CustomerID:  *c,
		Limit:       *limit,
		Offset:      *offset,
	}
	if *delivered {
		v := true
		filter.CarrierAssigned = &v
	}
	if *pending {
		v := false
		filter.CarrierAssigned = &v
	}

	listing, err := a.service.Orders(ctx, filter)
	if err != nil {
		return fail(err)
	}
	if a.jsonOut {
		if err := printJSON(listing); err != nil {
			return fail(err)
		}
		return exitOK
	}

	fmt.Printf("%-4s %-4s %-8s %-8s %-22s %-8s %s\n",
		"WH", "DIST", "ORDER", "CUST", "ENTRY DATE", "CARRIER", "LINES")
	for _, order := range listing.Orders {
		carrier := "-"
		if order.CarrierID > 0 {
			carrier = fmt.Sprintf("%d", order.CarrierID)
		}
		fmt.Printf("%-4d %-4d %-8d %-8d %-22s %-8s %d\n",
			order.WarehouseID, order.DistrictID, order.OrderID, order.CustomerID,
			order.EntryDate, carrier, order.LineCount)
	}
	printPage(listing.Page.TotalCount, len(listing.Orders), listing.Page.Offset, listing.Page.HasNext)
	return exitOK
}

// cmdInventory - листинг остатков
func cmdInventory(args []string) int {
	fs := flag.NewFlagSet("inventory", flag.ContinueOnError)
	common := addCommonFlags(fs)
	w := fs.Int64("w", 0, "filter by warehouse id")
	threshold := fs.Int64("below", 0, "only items with stock below this level")
	name := fs.String("name", "", "filter by item name substring")
	item := fs.Int64("item", 0, "show one item across warehouses")
	warehouses := fs.Bool("warehouses", false, "per-warehouse stock summary")
	limit := fs.Int("limit", 0, "page size")
	offset := fs.Int("offset", 0, "page offset")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	ctx := context.Background()
	a, err := buildApp(ctx, common)
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	if *item > 0 {
		details, err := a.service.ItemDetailsByID(ctx, *item)
		if err != nil {
			return fail(err)
		}
		if a.jsonOut {
			if err := printJSON(details); err != nil {
				return fail(err)
			}
			return exitOK
		}
		fmt.Printf("Item %d: %s, price %.2f\n", details.ItemID, details.Name, details.Price)
		for _, stock := range details.Stock {
			fmt.Printf("  warehouse %2d: %d on hand, ytd %d\n",
				stock.WarehouseID, stock.Quantity, stock.YTD)
		}
		return exitOK
	}

	if *warehouses {
		summary, err := a.service.WarehouseSummary(ctx)
		if err != nil {
			return fail(err)
		}
		if a.jsonOut {
			if err := printJSON(summary); err != nil {
				return fail(err)
			}
			return exitOK
		}
		for _, wh := range summary {
			fmt.Printf("%2d %-12s items: %d, units: %d\n",
				wh.WarehouseID, wh.Name, wh.DistinctItems, wh.TotalQuantity)
		}
		return exitOK
	}

	listing, err := a.service.Inventory(ctx, tpcc.InventoryFilter{
		WarehouseID:    *w,
		BelowThreshold: *threshold,
		NameContains:   *name,
		Limit:          *limit,
		Offset:         *offset,
	})
	if err != nil {
		return fail(err)
	}
	if a.jsonOut {
		if err := printJSON(listing); err != nil {
			return fail(err)
		}
		return exitOK
	}

	fmt.Printf("%-4s %-8s %-26s %-10s %-8s %s\n", "WH", "ITEM", "NAME", "PRICE", "STOCK", "YTD")
	for _, record := range listing.Records {
		fmt.Printf("%-4d %-8d %-26s %-10.2f %-8d %d\n",
			record.WarehouseID, record.ItemID, record.ItemName,
			record.Price, record.Quantity, record.YTD)
	}
	printPage(listing.Page.TotalCount, len(listing.Records), listing.Page.Offset, listing.Page.HasNext)
	return exitOK
}

// cmdDashboard - сводные метрики
func cmdDashboard(args []string) int {
	fs := flag.NewFlagSet("dashboard", flag.ContinueOnError)
	common := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	ctx := context.Background()
	a, err := buildApp(ctx, common)
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	dashboard, err := a.service.DashboardReport(ctx)
	if err != nil {
		return fail(err)
	}
	if a.jsonOut {
		if err := printJSON(dashboard); err != nil {
			return fail(err)
		}
		return exitOK
	}

	fmt.Printf("Dashboard (%s, generated %s)\n", a.be.BackendType(), dashboard.GeneratedAt)
	fmt.Println("")
	fmt.Println("Row counts:")
	tables := make([]string, 0, len(dashboard.TableCounts))
	for table := range dashboard.TableCounts {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		fmt.Printf("  %-12s %d\n", table, dashboard.TableCounts[table])
	}
	fmt.Println("")
	fmt.Printf("Pending deliveries:  %d\n", dashboard.PendingDeliveries)
	fmt.Printf("Orders today:        %d\n", dashboard.OrdersToday)
	fmt.Printf("Payments today:      %d (%.2f)\n", dashboard.PaymentsToday, dashboard.PaymentsAmountToday)
	printWarnings(dashboard.Warnings)
	return exitOK
}

// printPage печатает строку пагинации под листингом
func printPage(total int64, shown, offset int, hasNext bool) {
	more := ""
	if hasNext {
		more = ", more available"
	}
	fmt.Printf("-- %d of %d rows (offset %d%s)\n", shown, total, offset, more)
}
