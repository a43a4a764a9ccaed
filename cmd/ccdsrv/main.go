package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/joho/godotenv"
	"github.com/juju/loggo"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/openpmd/ccd/ccdhttp"
	"github.com/openpmd/ccd/container"
	_ "github.com/openpmd/ccd/container/h5"
	"github.com/openpmd/ccd/generichttp"
	"github.com/openpmd/ccd/imgrec"
	"github.com/openpmd/ccd/session"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "ccdsrv.yml"

	// EnvPrefix marks environment variables that override the file
	EnvPrefix = "CCDSRV_"

	k = koanf.New(".")
)

// RecorderSetup configures the FITS sidecar recorder
type RecorderSetup struct {
	Root    string `yaml:"Root" koanf:"root"`
	Prefix  string `yaml:"Prefix" koanf:"prefix"`
	Enabled bool   `yaml:"Enabled" koanf:"enabled"`
}

// Config holds the initialization parameters of the server
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr" koanf:"addr"`

	// Mount is the URL prefix of the series routes, e.g. "/ccd"
	Mount string `yaml:"Mount" koanf:"mount"`

	// Backend names the container backend, "hdf5" or "memory"
	Backend string `yaml:"Backend" koanf:"backend"`

	// Logging configures the loggers, e.g. "<root>=INFO;ccd.ccdhttp=DEBUG"
	Logging string `yaml:"Logging" koanf:"logging"`

	Session  session.Config `yaml:"Session" koanf:"session"`
	HTTP     ccdhttp.Config `yaml:"HTTP" koanf:"http"`
	Recorder RecorderSetup  `yaml:"Recorder" koanf:"recorder"`
}

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr:    ":8000",
		Mount:   "/ccd",
		Backend: "hdf5",
		Logging: "<root>=INFO",
		Session: session.Config{Directory: ".", CreateDirectory: true},
		HTTP:    ccdhttp.Config{MaxBody: ccdhttp.DefaultMaxBody},
	}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
	// a .env file next to the config seeds the environment; real variables win
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("error loading .env: %v", err)
	}
	// CCDSRV_SESSION_DIRECTORY => session.directory
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", -1)
	}), nil)
	if err != nil {
		log.Fatalf("error loading environment: %v", err)
	}
}

func root() {
	str := `ccdsrv records CCD images into openPMD series files and exposes an HTTP
interface to them.  Clients open a named series, push frames to it, and
close it; every frame is flushed to disk as soon as it is written so readers
can follow along.

Usage:
	ccdsrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `ccdsrv is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

Any key may be overridden from the environment with the CCDSRV_ prefix, with
underscores separating levels, e.g. CCDSRV_SESSION_DIRECTORY=/data/ccd.
Variables may also be placed in a .env file in the working directory.

Backend is "hdf5" for real files or "memory" for a dry run that keeps
nothing.

Series files are named {name}_scan_{scan}_ccd.h5 when a scan number is given
and {name}_ccd.h5 otherwise.  With Session.AllowOverwrite false, opening a
series whose file exists fails with 409 Conflict.

When Recorder.Enabled is true every frame is also written as a FITS file to
Recorder.Root/yyyy-mm-dd/.  The recorder can be reconfigured at runtime with
the /autowrite/* routes.

GET {Mount}/list-of-routes lists every route.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("ccdsrv version %v\n", Version)
}

// BuildMux assembles the root router and the event hub
func BuildMux(c Config) (chi.Router, *ccdhttp.Hub, *session.Registry) {
	backend, err := container.Lookup(c.Backend)
	if err != nil {
		log.Fatal(err)
	}
	hub := ccdhttp.NewHub()
	scfg := c.Session
	scfg.Backend = backend
	scfg.OnEvent = hub.Publish
	var rec *imgrec.Recorder
	if c.Recorder.Root != "" {
		rec = &imgrec.Recorder{Root: c.Recorder.Root, Prefix: c.Recorder.Prefix, Enabled: c.Recorder.Enabled}
		scfg.Recorder = rec
	}
	reg := session.New(scfg)

	srv := ccdhttp.New(reg, hub, rec, c.HTTP)
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Mount(generichttp.SubMuxSanitize(c.Mount), srv.Handler())
	return r, hub, reg
}

func run() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	if err := loggo.ConfigureLoggers(c.Logging); err != nil {
		log.Fatalf("logging config %q: %v", c.Logging, err)
	}
	mux, hub, reg := BuildMux(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)
	defer reg.CloseAll()
	log.Printf("now listening for requests at %s%s", c.Addr, c.Mount)
	if err := http.ListenAndServe(c.Addr, mux); err != nil {
		log.Println(err)
	}
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
