// tpccwb - консольный интерфейс к ядру TPC-C workbench: протокольные
// операции, отчетные выборки и сьют проверок ACID поверх CockroachDB,
// TiDB или SQLite.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/ruslano69/tpcc-workbench/pkg/audit"
	"github.com/ruslano69/tpcc-workbench/pkg/backend"
	"github.com/ruslano69/tpcc-workbench/pkg/brokers"
	"github.com/ruslano69/tpcc-workbench/pkg/retry"
	"github.com/ruslano69/tpcc-workbench/pkg/tpcc"

	// Регистрация backend'ов в фабрике
	_ "github.com/ruslano69/tpcc-workbench/pkg/backend/cockroach"
	_ "github.com/ruslano69/tpcc-workbench/pkg/backend/sqlite"
	_ "github.com/ruslano69/tpcc-workbench/pkg/backend/tidb"
)

// Version заполняется при сборке через -ldflags
var Version = "dev"

// Коды выхода
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage(os.Stderr)
		return exitUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "new-order":
		return cmdNewOrder(rest)
	case "payment":
		return cmdPayment(rest)
	case "order-status":
		return cmdOrderStatus(rest)
	case "delivery":
		return cmdDelivery(rest)
	case "stock-level":
		return cmdStockLevel(rest)
	case "orders":
		return cmdOrders(rest)
	case "inventory":
		return cmdInventory(rest)
	case "dashboard":
		return cmdDashboard(rest)
	case "acid":
		return cmdACID(rest)
	case "version":
		fmt.Printf("tpccwb %s\n", Version)
		return exitOK
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", cmd)
		printUsage(os.Stderr)
		return exitUsage
	}
}

func printUsage(out *os.File) {
	fmt.Fprintln(out, "Usage: tpccwb <command> [flags]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Protocol commands:")
	fmt.Fprintln(out, "  new-order     place an order (--w --d --c --items 101:5,102:3)")
	fmt.Fprintln(out, "  payment       record a payment (--w --d --c --amount 150.00)")
	fmt.Fprintln(out, "  order-status  show a customer's latest order (--w --d --c)")
	fmt.Fprintln(out, "  delivery      deliver oldest pending orders (--w --carrier 3)")
	fmt.Fprintln(out, "  stock-level   count low-stock items (--w --d --threshold 15)")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Reporting commands:")
	fmt.Fprintln(out, "  orders        list orders with filters and pagination")
	fmt.Fprintln(out, "  inventory     list stock with filters and pagination")
	fmt.Fprintln(out, "  dashboard     aggregate operational metrics")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Diagnostics:")
	fmt.Fprintln(out, "  acid          run the ACID conformance suite")
	fmt.Fprintln(out, "  version       print version")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Common flags (every command):")
	fmt.Fprintln(out, "  --config <file>   YAML config (default: sqlite in-memory)")
	fmt.Fprintln(out, "  --backend <type>  override backend type: cockroach, tidb, sqlite")
	fmt.Fprintln(out, "  --dsn <dsn>       override connection string")
	fmt.Fprintln(out, "  --json            machine-readable output")
}

// ========== Общие флаги и сборка приложения ==========

// commonFlags - флаги, общие для всех команд
type commonFlags struct {
	config      *string
	backendType *string
	dsn         *string
	jsonOut     *bool
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		config:      fs.String("config", "", "path to YAML config file"),
		backendType: fs.String("backend", "", "backend type override (cockroach, tidb, sqlite)"),
		dsn:         fs.String("dsn", "", "connection string override"),
		jsonOut:     fs.Bool("json", false, "JSON output"),
	}
}

// app - собранные зависимости одной команды
type app struct {
	config  *Config
	be      backend.Backend
	events  audit.Logger
	broker  brokers.MessageBroker
	service *tpcc.Service
	jsonOut bool
}

// buildApp загружает конфигурацию, подключается к backend'у и собирает
// сервис со всеми настроенными зависимостями
func buildApp(ctx context.Context, flags *commonFlags) (*app, error) {
	config, err := LoadConfig(*flags.config)
	if err != nil {
		return nil, err
	}
	if *flags.backendType != "" {
		config.Backend.Type = *flags.backendType
	}
	if *flags.dsn != "" {
		config.Backend.DSN = os.ExpandEnv(*flags.dsn)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	be, err := backend.New(ctx, config.backendConfig())
	if err != nil {
		return nil, err
	}

	var guarded backend.Backend = be
	if config.Retry.Enabled || config.Breaker.Enabled {
		guard, err := backend.NewGuard(be, config.guardConfig())
		if err != nil {
			be.Close()
			return nil, err
		}
		guarded = guard
	}

	events, err := config.buildLogger()
	if err != nil {
		guarded.Close()
		return nil, err
	}

	service := tpcc.NewService(guarded, events, tpcc.ServiceConfig{
		Region:            config.Workload.Region,
		SimulateRollbacks: config.Workload.SimulateRollbacks,
		Seed:              config.Workload.Seed,
	})

	a := &app{
		config:  config,
		be:      guarded,
		events:  events,
		service: service,
		jsonOut: *flags.jsonOut,
	}

	if config.Telemetry.Enabled {
		broker, err := brokers.New(config.brokerConfig())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create telemetry broker: %w", err)
		}
		if err := broker.Connect(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect telemetry broker: %w", err)
		}
		a.broker = broker
		service.SetPublisher(broker)
	}

	if config.Retry.DLQFile != "" {
		dlq, err := retry.NewDLQ(retry.DLQConfig{
			Enabled:  true,
			FilePath: config.Retry.DLQFile,
			MaxSize:  10000,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open dead letter queue: %w", err)
		}
		service.SetDeadLetter(dlq)
	}

	return a, nil
}

// Close освобождает ресурсы в обратном порядке сборки
func (a *app) Close() {
	if a.broker != nil {
		a.broker.Close()
	}
	if a.events != nil {
		a.events.Flush()
		a.events.Close()
	}
	if a.be != nil {
		a.be.Close()
	}
}

// ========== Вывод ==========

// printJSON пишет значение в stdout как JSON с отступами
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// fail печатает ошибку и возвращает операционный код выхода
func fail(err error) int {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return exitError
}

// usageError печатает ошибку использования и возвращает соответствующий код
func usageError(fs *flag.FlagSet, format string, args ...any) int {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	fs.Usage()
	return exitUsage
}
