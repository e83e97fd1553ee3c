package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/echemlab/specimen/internal/api"
	"github.com/echemlab/specimen/internal/config"
	"github.com/echemlab/specimen/internal/logx"
	"github.com/echemlab/specimen/internal/session"
	"github.com/echemlab/specimen/internal/xasproject"
)

const appVersion = `1.0.0`

var (
	confLoc = flag.String("config-file", `/opt/specimen/etc/specimenhttpd.conf`, "Location of the configuration file")
	verbose = flag.Bool("v", false, "Verbose mode, print log output to stdout")
	ver     = flag.Bool("version", false, "Print the version information and exit")

	debugOn bool
)

func main() {
	flag.Parse()
	if *ver {
		fmt.Printf("specimenhttpd %s\n", appVersion)
		return
	}
	debugOn = *verbose

	cfg, err := config.Load(*confLoc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration %s: %v\n", *confLoc, err)
		os.Exit(-1)
	}

	lg := logx.New(os.Stderr)
	if lvl, err := logx.ParseLevel(cfg.Global.Log_Level); err == nil {
		lg.SetLevel(lvl)
	}
	if cfg.Global.Log_File != `` {
		fout, err := os.OpenFile(cfg.Global.Log_File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
		if err != nil {
			lg.Fatal("failed to open log file %s: %v", cfg.Global.Log_File, err)
		}
		defer fout.Close()
		if err = lg.AddWriter(fout); err != nil {
			lg.Fatal("failed to add log writer: %v", err)
		}
	}
	debugout("loaded configuration from %s\n", *confLoc)

	limits := session.Limits{
		MaxFiles:      cfg.Global.Max_Files_Per_Session,
		MaxFileSizeMB: cfg.Global.Max_File_Size_MB,
		MaxMemoryMB:   cfg.Global.Max_Session_Memory_MB,
		TTL:           cfg.TTL(),
	}
	mgr := session.NewManager(limits, lg)
	mgr.StartReaper(cfg.CleanupInterval())
	defer mgr.StopReaper()
	debugout("session reaper running every %v\n", cfg.CleanupInterval())

	var holder xasproject.Holder
	if cfg.Global.XAS_Project_Root != `` {
		if _, err = holder.Open(cfg.Global.XAS_Project_Root, cfg.Global.Raw_Data_Folder, lg); err != nil {
			lg.Warn("failed to open XAS project %s: %v", cfg.Global.XAS_Project_Root, err)
		} else {
			debugout("opened XAS project %s\n", cfg.Global.XAS_Project_Root)
		}
	}

	srv := api.NewServer(cfg, mgr, &holder, nil, nil, nil, lg)
	hsrv := &http.Server{
		Addr:         cfg.Global.Bind,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}
	lg.Info("specimenhttpd %s listening on %s", appVersion, cfg.Global.Bind)
	if err = hsrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		lg.Fatal("server error: %v", err)
	}
}

func debugout(format string, args ...interface{}) {
	if !debugOn {
		return
	}
	fmt.Printf(format, args...)
}
