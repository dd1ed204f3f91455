package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/albertbausili/hearth/pkg/hearth"
	"github.com/albertbausili/hearth/pkg/session"
)

// registerRoutes installs the built-in routes. manager may be nil when
// sessions are disabled.
func registerRoutes(r *hearth.Router, manager *session.Manager) {
	r.GET("/health", func(_ *hearth.Request, resp *hearth.Response) error {
		return writeJSON(resp, 200, map[string]string{"status": "healthy"})
	})

	r.GET("/", func(_ *hearth.Request, resp *hearth.Response) {
		resp.SetHeader("Content-Type", "text/plain; charset=utf-8")
		resp.SetBodyString("hearth " + Version + "\n")
	})

	r.GET("/hello/:name", func(req *hearth.Request, resp *hearth.Response) {
		resp.SetHeader("Content-Type", "text/plain; charset=utf-8")
		resp.SetBodyString("Hello, " + req.Param("name") + "!\n")
	})

	r.POST("/echo", func(req *hearth.Request, resp *hearth.Response) {
		if ct, ok := req.LookupHeader("Content-Type"); ok {
			resp.SetHeader("Content-Type", ct)
		}
		resp.SetBody(req.Body())
	})

	r.GET("/routes", func(_ *hearth.Request, resp *hearth.Response) error {
		type route struct {
			Method  string `json:"method"`
			Path    string `json:"path"`
			Pattern bool   `json:"pattern"`
		}
		var out []route
		for _, ri := range r.Routes() {
			out = append(out, route{Method: ri.Method.String(), Path: ri.Path, Pattern: ri.Pattern})
		}
		return writeJSON(resp, 200, out)
	})

	if manager == nil {
		return
	}

	// /session counts visits in the caller's session.
	r.GET("/session", func(req *hearth.Request, resp *hearth.Response) error {
		s, err := manager.GetSession(req, resp)
		if err != nil {
			return err
		}
		visits, _ := strconv.Atoi(s.Get("visits"))
		visits++
		if err := s.Set(req.Context(), manager.Storage(), "visits", strconv.Itoa(visits)); err != nil {
			return err
		}
		return writeJSON(resp, 200, map[string]any{"id": s.ID(), "visits": visits})
	})

	r.DELETE("/session", func(req *hearth.Request, resp *hearth.Response) error {
		s, err := manager.GetSession(req, resp)
		if err != nil {
			return err
		}
		if err := manager.Destroy(req.Context(), s.ID()); err != nil {
			return err
		}
		resp.SetStatus(204)
		return nil
	})
}

func writeJSON(resp *hearth.Response, status int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	resp.SetStatus(status)
	resp.SetHeader("Content-Type", "application/json")
	resp.SetBody(body)
	return nil
}
