package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"nodetrace/beacon"
	"nodetrace/config"
	"nodetrace/contact"
	"nodetrace/eventstream"
	"nodetrace/exposure"
	"nodetrace/models"
	"nodetrace/presence"
	"nodetrace/radio"
	"nodetrace/storage"
)

var (
	logLevel = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	showHelp = flag.Bool("h", false, "Show help")
)

func main() {
	flag.Parse()
	if *showHelp {
		showUsage()
		return
	}

	level, err := logging.LevelFromString(*logLevel)
	if err != nil {
		log.Fatalf("invalid log level %q: %v", *logLevel, err)
	}
	logging.SetAllLoggers(level)

	cfg, cfgPath, err := config.LoadOrCreate()
	if err != nil {
		log.Fatalf("startup failed while loading config: %v", err)
	}
	dataDir := filepath.Dir(cfgPath)

	store, dbPath, err := storage.Open(dataDir)
	if err != nil {
		log.Fatalf("startup failed while opening database: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("database close error: %v", err)
		}
	}()

	directory, fileDirectory, err := openDirectory(cfg)
	if err != nil {
		log.Fatalf("startup failed while configuring exposure directory: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	command := "run"
	if args := flag.Args(); len(args) > 0 {
		command = args[0]
	}

	switch command {
	case "run":
		fmt.Printf("Device ID:       %s\n", cfg.DeviceID)
		fmt.Printf("Device Name:     %s\n", cfg.DeviceName)
		fmt.Printf("Mode:            %s\n", cfg.Mode)
		fmt.Printf("Config File:     %s\n", cfgPath)
		fmt.Printf("Database File:   %s\n", dbPath)
		run(ctx, cfg, store, directory, fileDirectory)
	case "report":
		reportExposure(ctx, cfg, store, directory)
	case "contacts":
		listContacts(store)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", command)
		showUsage()
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println("Usage: nodetrace [flags] [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run        scan/advertise and record contacts (default)")
	fmt.Println("  report     publish recent contact ids to the exposure directory")
	fmt.Println("  contacts   print stored contacts")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

// openDirectory returns a nil directory when neither source is configured.
func openDirectory(cfg *config.DeviceConfig) (contact.ExposureDirectory, *exposure.FileDirectory, error) {
	switch {
	case cfg.ExposureURL != "":
		client, err := exposure.BuildHTTP2Client(exposure.DefaultHTTPTimeout)
		if err != nil {
			return nil, nil, err
		}
		directory, err := exposure.NewHTTPDirectory(cfg.ExposureURL, client)
		if err != nil {
			return nil, nil, err
		}
		return directory, nil, nil
	case cfg.ExposureFile != "":
		directory, err := exposure.NewFileDirectory(cfg.ExposureFile)
		if err != nil {
			return nil, nil, err
		}
		return directory, directory, nil
	default:
		return nil, nil, nil
	}
}

func newManager(cfg *config.DeviceConfig, store *storage.Store, directory contact.ExposureDirectory, hub *eventstream.Hub) (*contact.Manager, error) {
	var location contact.LocationProvider
	if cfg.Location != nil {
		location = contact.StaticLocation{Location: &models.Location{
			Latitude:  cfg.Location.Latitude,
			Longitude: cfg.Location.Longitude,
		}}
	}

	managerCfg := contact.ManagerConfig{
		Store:     store,
		Directory: directory,
		Location:  location,
		Retention: cfg.Retention(),
	}
	if hub != nil {
		managerCfg.OnEvent = func(event presence.Event) {
			hub.Publish(eventstream.FromPresence(event))
		}
		managerCfg.OnRecorded = func(c models.Contact) {
			hub.Publish(eventstream.FromContact(eventstream.TypeContactRecorded, c))
		}
		managerCfg.OnExposed = func(contacts []models.Contact) {
			for _, c := range contacts {
				hub.Publish(eventstream.FromContact(eventstream.TypeContactExposed, c))
			}
		}
	}
	return contact.NewManager(managerCfg)
}

func run(ctx context.Context, cfg *config.DeviceConfig, store *storage.Store, directory contact.ExposureDirectory, fileDirectory *exposure.FileDirectory) {
	hub := eventstream.NewHub()
	defer hub.Close()

	manager, err := newManager(cfg, store, directory, hub)
	if err != nil {
		log.Fatalf("startup failed while creating contact manager: %v", err)
	}

	monitor := presence.NewMonitor(presence.MonitorConfig{
		OutOfRangeTimeout: cfg.OutOfRangeTimeout(),
		SweepInterval:     cfg.SweepInterval(),
	})
	defer monitor.Close()
	// The manager drains until the monitor closes its channel, so shutdown
	// never leaves the sweep loop or the radio blocked on a full queue.
	managerDone := make(chan struct{})
	go func() {
		defer close(managerDone)
		manager.Run(context.Background(), monitor.Events())
	}()

	if directory != nil {
		go manager.RunRiskChecks(ctx, cfg.RiskCheckInterval())
	} else {
		fmt.Println("Exposure:        no directory configured, risk checks disabled")
		if _, err := manager.PruneExpired(); err != nil {
			log.Printf("retention prune failed: %v", err)
		}
	}
	if fileDirectory != nil {
		go func() {
			err := fileDirectory.Watch(ctx, func() {
				if _, err := manager.CheckRisk(ctx); err != nil && ctx.Err() == nil {
					log.Printf("risk check after exposure file change failed: %v", err)
				}
			})
			if err != nil {
				log.Printf("exposure file watch stopped: %v", err)
			}
		}()
	}

	server := &http.Server{
		Addr:              cfg.EventsListenAddr,
		Handler:           eventstream.NewMux(hub, store, monitor.Tracker()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("event server stopped: %v", err)
		}
	}()
	fmt.Printf("Events:          ws://%s/events\n", cfg.EventsListenAddr)

	lan := radio.NewLANRadio(radio.LANConfig{
		DeviceName: cfg.DeviceName,
		RSSI:       cfg.SimulatedRSSI,
	})
	controller := radio.NewController(lan, monitor, beacon.NewMatcher())
	mode, err := cfg.RadioMode()
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	if err := controller.SetMode(mode); err != nil {
		log.Printf("radio start failed: %v", err)
	}
	if id, ok := controller.LocalID(); ok {
		fmt.Printf("Node ID:         %s\n", id)
	}

	fmt.Println("Status:          running (press Ctrl+C to stop)")
	<-ctx.Done()
	fmt.Println("Status:          shutting down")

	if err := controller.Close(); err != nil {
		log.Printf("radio stop error: %v", err)
	}
	monitor.Close()
	<-managerDone
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("event server shutdown error: %v", err)
	}
}

func reportExposure(ctx context.Context, cfg *config.DeviceConfig, store *storage.Store, directory contact.ExposureDirectory) {
	if directory == nil {
		log.Fatalf("report failed: no exposure directory configured")
	}
	manager, err := newManager(cfg, store, directory, nil)
	if err != nil {
		log.Fatalf("report failed: %v", err)
	}
	reported, err := manager.ReportExposure(ctx)
	if err != nil {
		log.Fatalf("report failed: %v", err)
	}
	fmt.Printf("Reported %d contacts as exposed\n", reported)
}

func listContacts(store *storage.Store) {
	contacts, err := store.ListContacts()
	if err != nil {
		log.Fatalf("list contacts failed: %v", err)
	}
	if len(contacts) == 0 {
		fmt.Println("No contacts recorded")
		return
	}
	for _, c := range contacts {
		fmt.Printf("%s  %-24q  start=%s  duration=%s  rssi=%d  status=%s\n",
			c.ID,
			c.DisplayName,
			time.UnixMilli(c.EncounterStartedAt).Format(time.RFC3339),
			time.Duration(c.DurationMS)*time.Millisecond,
			c.AverageRSSI,
			c.HealthStatus,
		)
	}
}
