/*
Package ccdhttp exposes a session registry over HTTP.

Routes, relative to where the handler is mounted:

	GET    /series                          open series
	POST   /series                          open a series, JSON OpenRequest
	GET    /series/{name}                   one series
	DELETE /series/{name}                   close a series
	GET    /series/{name}/file              download the series file
	POST   /series/{name}/calibration       JSON ccd.Recalibration
	POST   /series/{name}/images/{number}   add an image
	GET    /events                          websocket stream of session.Event
	GET    /events/clients                  number of connected event clients
	GET    /list-of-routes

Image bodies are chosen by Content-Type: application/json holds nested
arrays of numbers, application/cbor an RFC 8746 typed array (or nested
arrays), anything else is an encoded image file (PNG, TIFF, FITS, ...).  With
AllowPaths, ?path= names a file on the server instead of a body.
*/
package ccdhttp

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/openpmd/ccd/ccd"
	"github.com/openpmd/ccd/generichttp"
	"github.com/openpmd/ccd/imgnorm"
	"github.com/openpmd/ccd/imgrec"
	"github.com/openpmd/ccd/server"
	"github.com/openpmd/ccd/server/middleware/locker"
	"github.com/openpmd/ccd/session"
)

var logger = loggo.GetLogger("ccd.ccdhttp")

// DefaultMaxBody caps image uploads
const DefaultMaxBody = 256 << 20

// Config modifies the server
type Config struct {
	// AllowPaths permits images named by a server-side path
	AllowPaths bool `yaml:"AllowPaths" koanf:"allowpaths"`

	// MaxBody is the largest accepted request body in bytes; 0 means DefaultMaxBody
	MaxBody int64 `yaml:"MaxBody" koanf:"maxbody"`
}

// OpenRequest is the body of POST /series
type OpenRequest struct {
	Name         string      `json:"name"`
	Scan         *int        `json:"scan,omitempty"`
	Model        string      `json:"model,omitempty"`
	Serial       string      `json:"serial,omitempty"`
	Operator     string      `json:"operator,omitempty"`
	Resolution   *[2]float64 `json:"resolution,omitempty"`
	Region       *[4]float64 `json:"region,omitempty"`
	ExposureTime *float64    `json:"exposureTime,omitempty"`
}

// Options converts the request to series options
func (o OpenRequest) Options() ccd.Options {
	return ccd.Options{
		Identity:     ccd.Identity{Name: o.Name, Model: o.Model, Serial: o.Serial, Operator: o.Operator},
		Resolution:   o.Resolution,
		Region:       o.Region,
		ExposureTime: o.ExposureTime,
	}
}

// Server is the HTTP façade over a registry
type Server struct {
	reg  *session.Registry
	hub  *Hub
	cfg  Config
	rt   generichttp.RouteTable
	lock *locker.Locker
}

// New builds the route table.  hub and rec may be nil.
func New(reg *session.Registry, hub *Hub, rec *imgrec.Recorder, cfg Config) *Server {
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = DefaultMaxBody
	}
	s := &Server{reg: reg, hub: hub, cfg: cfg, lock: locker.New()}
	s.rt = generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/series"}:                         s.list,
		{Method: http.MethodPost, Path: "/series"}:                        s.open,
		{Method: http.MethodGet, Path: "/series/{name}"}:                  s.info,
		{Method: http.MethodDelete, Path: "/series/{name}"}:               s.close,
		{Method: http.MethodPost, Path: "/series/{name}/calibration"}:     s.recalibrate,
		{Method: http.MethodPost, Path: "/series/{name}/images/{number}"}: s.add,
		{Method: http.MethodGet, Path: "/series/{name}/file"}:             s.download,
	}
	if hub != nil {
		s.rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/events"}] = hub.ServeHTTP
		s.rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/events/clients"}] = generichttp.GetInt(func() (int, error) {
			return hub.Clients(), nil
		})
	}
	if rec != nil {
		imgrec.NewHTTPWrapper(rec).Inject(s)
	}
	locker.Inject(s, s.lock)
	return s
}

// RT implements generichttp.HTTPer
func (s *Server) RT() generichttp.RouteTable {
	return s.rt
}

// Handler returns a router serving every route behind the lock
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.lock.Check)
	s.rt.Bind(r)
	return r
}

// StatusOf maps an error to an HTTP status code
func StatusOf(err error) int {
	switch {
	case errors.Is(err, errors.NotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.AlreadyExists),
		errors.Is(err, session.ErrDuplicateName),
		errors.Is(err, ccd.ErrNotWritable):
		return http.StatusConflict
	case errors.Is(err, imgnorm.ErrDecode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, imgnorm.ErrMissingInput),
		errors.Is(err, imgnorm.ErrShape),
		errors.Is(err, errors.NotValid),
		errors.Is(err, errors.NotSupported):
		return http.StatusBadRequest
	case errors.Is(err, errors.Forbidden):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func fail(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusOf(err)
	if code == http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", r.Method, r.URL.Path, errors.ErrorStack(err))
	}
	http.Error(w, err.Error(), code)
}

func respond(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("encoding response: %v", err)
	}
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	out := []session.Info{}
	for _, name := range s.reg.Names() {
		info, err := s.reg.Info(name)
		if err != nil {
			// closed between listing and lookup
			continue
		}
		out = append(out, info)
	}
	respond(w, http.StatusOK, out)
}

func (s *Server) open(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	req := OpenRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	path, err := s.reg.OpenWrite(req.Name, req.Scan, req.Options())
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, map[string]string{"name": req.Name, "path": path})
}

func (s *Server) info(w http.ResponseWriter, r *http.Request) {
	info, err := s.reg.Info(chi.URLParam(r, "name"))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, info)
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	info, err := s.reg.Info(chi.URLParam(r, "name"))
	if err != nil {
		fail(w, r, err)
		return
	}
	server.ReplyWithFile(w, r, info.Path, "application/x-hdf5")
}

func (s *Server) close(w http.ResponseWriter, r *http.Request) {
	if err := s.reg.Close(chi.URLParam(r, "name")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) recalibrate(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	u := ccd.Recalibration{}
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.reg.Recalibrate(chi.URLParam(r, "name"), u); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) add(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	name := chi.URLParam(r, "name")
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		http.Error(w, "image number: "+err.Error(), http.StatusBadRequest)
		return
	}
	path, src, err := s.imageSource(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.reg.Add(name, number, path, src); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// imageSource reads the image of an add request, either a server-side path
// or the body
func (s *Server) imageSource(r *http.Request) (string, imgnorm.Source, error) {
	if path := r.URL.Query().Get("path"); path != "" {
		if !s.cfg.AllowPaths {
			return "", imgnorm.Source{}, errors.Forbiddenf("server-side paths")
		}
		return path, imgnorm.Source{}, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxBody+1))
	if err != nil {
		return "", imgnorm.Source{}, errors.Trace(err)
	}
	if int64(len(body)) > s.cfg.MaxBody {
		return "", imgnorm.Source{}, errors.NotValidf("body larger than %d bytes", s.cfg.MaxBody)
	}
	if len(body) == 0 {
		return "", imgnorm.Source{}, errors.Trace(imgnorm.ErrMissingInput)
	}
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/json":
		var v interface{}
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return "", imgnorm.Source{}, errors.NewNotValid(err, "json body")
		}
		src, err := imgnorm.FromNested(v)
		return "", src, err
	case "application/cbor":
		src, err := decodeCBOR(body)
		return "", src, err
	}
	return "", imgnorm.FromBytes(body), nil
}
