package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"sigs.k8s.io/yaml"

	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/cgusim"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/clocktree"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/daemon"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/event"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/hardwareconfig"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/metrics"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/regmap"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/registry"
)

// Git commit of current build set at build time
var GitCommit = "Undefined"

const (
	defaultTable   = "ingenic/x1830"
	defaultCGUBase = 0x10000000
	defaultCGUSize = 0x100
)

type cliParams struct {
	table           string
	simulate        bool
	devMemPath      string
	cguBase         int64
	cguSize         uint
	extRate         uint64
	rtcRate         uint64
	assignments     string
	bindAddress     string
	refreshInterval time.Duration
	pollInterval    time.Duration
	pollRetries     int
	dump            bool
	once            bool
}

// Parse Command line flags
func (cp *cliParams) flagInit() {
	flag.StringVar(&cp.table, "table", defaultTable,
		fmt.Sprintf("Embedded clock table %v or path to a clock table file", hardwareconfig.EmbeddedTables()))
	flag.BoolVar(&cp.simulate, "simulate", false,
		"Drive a simulated CGU instead of the hardware")
	flag.StringVar(&cp.devMemPath, "devmem", regmap.DefaultDevMemPath,
		"Memory device used to map the CGU registers")
	flag.Int64Var(&cp.cguBase, "cgu-base", defaultCGUBase,
		"Physical base address of the CGU register region")
	flag.UintVar(&cp.cguSize, "cgu-size", defaultCGUSize,
		"Size in bytes of the CGU register region")
	flag.Uint64Var(&cp.extRate, "ext-rate", 0,
		"Override the rate of the ext oscillator in Hz (0 keeps the table value)")
	flag.Uint64Var(&cp.rtcRate, "rtc-rate", 0,
		"Override the rate of the rtc oscillator in Hz (0 keeps the table value)")
	flag.StringVar(&cp.assignments, "assignments", "",
		"Clock assignments file, applied at start and whenever it changes")
	flag.StringVar(&cp.bindAddress, "bind-address", daemon.DefaultBindAddress,
		"Address serving /metrics, /ready and /clocks")
	flag.DurationVar(&cp.refreshInterval, "refresh-interval", daemon.DefaultRefreshInterval,
		"Interval to refresh clock metrics")
	flag.DurationVar(&cp.pollInterval, "poll-interval", clocktree.DefaultPollInterval,
		"Delay between two reads of a busy or stable bit")
	flag.IntVar(&cp.pollRetries, "poll-retries", clocktree.DefaultPollRetries,
		"Reads of a busy or stable bit before a change times out")
	flag.BoolVar(&cp.dump, "dump", true,
		"Print the clock tree after start")
	flag.BoolVar(&cp.once, "once", false,
		"Apply assignments, print the tree and exit")
	flag.Parse()
	cp.debugPrint()
}

func (cp *cliParams) debugPrint() {
	glog.Infof("table: %s", cp.table)
	glog.Infof("simulate: %t", cp.simulate)
	if !cp.simulate {
		glog.Infof("register region: %s at %#x, %#x bytes", cp.devMemPath, cp.cguBase, cp.cguSize)
	}
	glog.Infof("assignments: %q", cp.assignments)
	glog.Infof("poll: %d x %s", cp.pollRetries, cp.pollInterval)
}

func (cp *cliParams) treeOptions(notifier event.Notifier) []clocktree.Option {
	opts := []clocktree.Option{
		clocktree.WithNotifier(notifier),
		clocktree.WithPollInterval(cp.pollInterval),
		clocktree.WithPollRetries(cp.pollRetries),
	}
	if cp.extRate != 0 {
		opts = append(opts, clocktree.WithExternalRate("ext", cp.extRate))
	}
	if cp.rtcRate != 0 {
		opts = append(opts, clocktree.WithExternalRate("rtc", cp.rtcRate))
	}
	return opts
}

func main() {
	cp := &cliParams{}
	cp.flagInit()
	glog.Infof("Git commit: %s", GitCommit)

	nodeName := os.Getenv("NODE_NAME")
	if nodeName == "" {
		nodeName, _ = os.Hostname()
	}

	ct, err := hardwareconfig.Load(cp.table)
	if err != nil {
		glog.Fatalf("load clock table: %v", err)
	}
	table, err := ct.Table()
	if err != nil {
		glog.Fatalf("clock table %s: %v", ct.Name, err)
	}

	var port regmap.Port
	if cp.simulate {
		glog.Info("Driving a simulated CGU")
		port = cgusim.New(table, uint32(cp.cguSize), cgusim.WithRegisters(ct.Registers()))
	} else {
		mem, openErr := openRegisters(cp.devMemPath, cp.cguBase, uint32(cp.cguSize))
		if openErr != nil {
			glog.Fatalf("%v", openErr)
		}
		defer mem.Close()
		port = mem
	}

	notifier := event.NewChangeNotifier()
	notifier.Register(event.LogSubscriber{})
	notifier.Register(metrics.NewRecorder())

	clocks := registry.New()
	tree, err := clocktree.Bind(table, port, clocks, cp.treeOptions(notifier)...)
	if err != nil {
		glog.Fatalf("bind clock tree: %v", err)
	}
	glog.Infof("Published %d clocks from %s", clocks.Len(), ct.Name)

	d := daemon.New(daemon.Config{
		NodeName:        nodeName,
		BindAddress:     cp.bindAddress,
		RefreshInterval: cp.refreshInterval,
		AssignmentsPath: cp.assignments,
	}, tree)
	if err = d.Start(); err != nil {
		glog.Fatalf("apply clock assignments: %v", err)
	}

	if cp.dump || cp.once {
		out, marshalErr := yaml.Marshal(tree.Snapshot())
		if marshalErr != nil {
			glog.Errorf("marshal clock tree: %v", marshalErr)
		} else {
			fmt.Print(string(out))
		}
	}
	if cp.once {
		glog.Flush()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()
	if err = d.Run(ctx); err != nil {
		glog.Errorf("clock daemon stopped: %v", err)
	}
	glog.Info("signal received, shutting down")
	glog.Flush()
}
