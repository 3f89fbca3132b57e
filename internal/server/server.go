// Package server exposes a jifdb database over HTTP.
//
// Routes come from the embedded OpenAPI document: every operation in it is
// bound to a handler by operationId, and request bodies are checked against
// the operation's schema before the handler runs. The document itself is
// served at GET /openapi.json.
package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"

	"github.com/calvinalkan/jifdb/pkg/jifdb"
)

//go:embed openapi.yaml
var openapiYAML []byte

// Options configures a [Server].
type Options struct {
	// AutoSave saves a collection after every request that changes it.
	// Without it changes stay in memory until saved through
	// POST /collections/{name}/save or the database is closed.
	AutoSave bool

	// Logger receives one access log line per request. Default: discard.
	Logger *slog.Logger
}

// Server serves one open [jifdb.DB]. The caller owns the database and
// closes it after the server stops.
type Server struct {
	db   *jifdb.DB
	doc  *openapi3.T
	app  *fiber.App
	opts Options
}

// LoadDocument loads and validates the embedded OpenAPI document.
func LoadDocument() (*openapi3.T, error) {
	loader := openapi3.NewLoader()

	doc, err := loader.LoadFromData(openapiYAML)
	if err != nil {
		return nil, fmt.Errorf("load openapi: %w", err)
	}

	err = doc.Validate(loader.Context)
	if err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}

	return doc, nil
}

// New builds a server for db.
func New(db *jifdb.DB, opts Options) (*Server, error) {
	if db == nil {
		return nil, errors.New("server: db is nil")
	}

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	doc, err := LoadDocument()
	if err != nil {
		return nil, err
	}

	s := &Server{db: db, doc: doc, opts: opts}

	s.app = fiber.New(fiber.Config{
		AppName:               "jifdb",
		DisableStartupMessage: true,
		UnescapePath:          true,
		Immutable:             true, // path params become registry keys
		ErrorHandler:          s.handleError,
	})

	s.app.Use(s.accessLog)
	s.app.Get("/openapi.json", s.serveDocument)

	err = s.registerRoutes()
	if err != nil {
		return nil, err
	}

	return s, nil
}

// App returns the underlying fiber app, mainly for app.Test in tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully. Returns nil after a shutdown triggered by ctx.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- s.app.Listener(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		err := s.app.Shutdown()
		<-errCh

		return err
	}
}

// registerRoutes binds every operation in the document to its handler.
// Both an operation without a handler and a handler without an operation
// are errors.
func (s *Server) registerRoutes() error {
	handlers := map[string]fiber.Handler{
		"listCollections": s.listCollections,
		"dropCollection":  s.dropCollection,
		"saveCollection":  s.saveCollection,
		"readDocuments":   s.readDocuments,
		"createDocument":  s.createDocument,
		"readDocument":    s.readDocument,
		"updateDocument":  s.updateDocument,
		"replaceDocument": s.replaceDocument,
		"deleteDocument":  s.deleteDocument,
	}

	paths := make([]string, 0, len(s.doc.Paths))
	for path := range s.doc.Paths {
		paths = append(paths, path)
	}

	slices.Sort(paths)

	for _, path := range paths {
		route := fiberPath(path)

		for method, op := range s.doc.Paths[path].Operations() {
			handler, ok := handlers[op.OperationID]
			if !ok {
				return fmt.Errorf("no handler for operation %q (%s %s)", op.OperationID, method, path)
			}

			delete(handlers, op.OperationID)

			s.app.Add(method, route, s.checkBody(op), handler)
		}
	}

	if len(handlers) > 0 {
		unbound := make([]string, 0, len(handlers))
		for id := range handlers {
			unbound = append(unbound, id)
		}

		slices.Sort(unbound)

		return fmt.Errorf("handlers without operation: %s", strings.Join(unbound, ", "))
	}

	return nil
}

// fiberPath turns "/a/{b}/c" into "/a/:b/c".
func fiberPath(path string) string {
	segments := strings.Split(path, "/")

	for i, seg := range segments {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			segments[i] = ":" + seg[1:len(seg)-1]
		}
	}

	return strings.Join(segments, "/")
}

// checkBody rejects requests whose body does not match op's JSON schema.
func (s *Server) checkBody(op *openapi3.Operation) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if op.RequestBody == nil || op.RequestBody.Value == nil {
			return c.Next()
		}

		rb := op.RequestBody.Value
		body := c.Body()

		if len(body) == 0 {
			if rb.Required {
				return fiber.NewError(fiber.StatusBadRequest, "request body is required")
			}

			return c.Next()
		}

		ct := strings.TrimSpace(strings.Split(c.Get(fiber.HeaderContentType), ";")[0])

		media := rb.Content.Get(ct)
		if media == nil {
			return fiber.NewError(fiber.StatusUnsupportedMediaType, "unsupported media type: "+ct)
		}

		var value any

		err := json.Unmarshal(body, &value)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body: "+err.Error())
		}

		if media.Schema != nil && media.Schema.Value != nil {
			err = media.Schema.Value.VisitJSON(value)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "request body: "+err.Error())
			}
		}

		return c.Next()
	}
}

func (s *Server) serveDocument(c *fiber.Ctx) error {
	data, err := json.Marshal(s.doc)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	return c.Send(data)
}

func (s *Server) accessLog(c *fiber.Ctx) error {
	start := time.Now()

	err := c.Next()
	if err != nil {
		// Run the error handler now so the logged status is the real one.
		handlerErr := s.handleError(c, err)
		if handlerErr != nil {
			return handlerErr
		}
	}

	s.opts.Logger.Info("request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration", time.Since(start),
	)

	return nil
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := statusFor(err)

	return c.Status(code).JSON(fiber.Map{
		"error":   http.StatusText(code),
		"message": err.Error(),
	})
}

func statusFor(err error) int {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}

	switch {
	case errors.Is(err, jifdb.ErrInvalidName), errors.Is(err, jifdb.ErrInvalidDocument):
		return fiber.StatusBadRequest
	case errors.Is(err, jifdb.ErrNotFound), errors.Is(err, jifdb.ErrUnknownCollection):
		return fiber.StatusNotFound
	case errors.Is(err, jifdb.ErrCorrupted):
		return fiber.StatusConflict
	case errors.Is(err, jifdb.ErrNotOpen), errors.Is(err, jifdb.ErrCollectionClosed):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
