package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mdobak/go-xerrors"

	"rtl-ml/config"
	"rtl-ml/utils"
)

const usage = "Expected 'serve', 'classify' or 'capture' subcommand"

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "serve":
		serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
		protocol := serveCmd.String("proto", "http", "Protocol to use (http or https)")
		port := serveCmd.String("p", "", "Port to use (default from server.addr in the config, :5000)")
		configPath := serveCmd.String("config", "", "YAML config file (default $RTLML_CONFIG)")
		replay := serveCmd.String("replay", "", "Replay records from this dataset directory instead of rtl_tcp")
		serveCmd.Parse(os.Args[2:])
		err = withConfig(*configPath, func(cfg *config.Config) error {
			return serve(ctx, cfg, *protocol, *port, *replay)
		})
	case "classify":
		classifyCmd := flag.NewFlagSet("classify", flag.ExitOnError)
		configPath := classifyCmd.String("config", "", "YAML config file (default $RTLML_CONFIG)")
		replay := classifyCmd.String("replay", "", "Replay records from this dataset directory instead of rtl_tcp")
		freq := classifyCmd.Float64("freq", 0, "Classify a single frequency in Hz instead of the configured targets")
		name := classifyCmd.String("name", "manual", "Target name used with -freq")
		asJSON := classifyCmd.Bool("json", false, "Print results as JSON")
		classifyCmd.Parse(os.Args[2:])
		err = withConfig(*configPath, func(cfg *config.Config) error {
			return classify(ctx, cfg, classifyOptions{replay: *replay, freq: *freq, name: *name, json: *asJSON})
		})
	case "capture":
		captureCmd := flag.NewFlagSet("capture", flag.ExitOnError)
		configPath := captureCmd.String("config", "", "YAML config file (default $RTLML_CONFIG)")
		out := captureCmd.String("out", "", "Dataset directory (default from config)")
		samples := captureCmd.Int("samples", 0, "Captures per class (default from config)")
		labels := captureCmd.String("labels", "", "Comma-separated subset of the capture plan")
		captureCmd.Parse(os.Args[2:])
		err = withConfig(*configPath, func(cfg *config.Config) error {
			return captureDataset(ctx, cfg, *out, *samples, *labels)
		})
	default:
		fmt.Println(usage)
		os.Exit(1)
	}

	if err != nil {
		logger := utils.GetLogger()
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "command failed", slog.String("command", os.Args[1]), slog.Any("error", err))
		os.Exit(1)
	}
}

func withConfig(path string, run func(*config.Config) error) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	return run(cfg)
}
