package api

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wippyai/tck-bridge/analysis"
	"github.com/wippyai/tck-bridge/invoke"
)

const invocationHeader = "X-Invocation-Id"

// modelText serves operations whose only input is the model itself. The
// body is the model, either raw text or a JSON string.
func (s *Server) modelText(op string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, ok := readBody(c)
		if !ok {
			return
		}
		text := string(body)
		if strings.HasPrefix(c.ContentType(), "application/json") {
			if err := json.Unmarshal(body, &text); err != nil {
				reject(c, http.StatusUnprocessableEntity, "body must be a JSON string or plain text")
				return
			}
		}
		s.run(c, op, map[string]any{"sysdecl": text})
	}
}

// operation serves op with a JSON object of named parameters.
func (s *Server) operation(op string) gin.HandlerFunc {
	return func(c *gin.Context) {
		values, ok := readValues(c)
		if !ok {
			return
		}
		s.run(c, op, values)
	}
}

func (s *Server) namedOperation(c *gin.Context) {
	name := c.Param("name")
	if _, ok := s.runner.Catalog().Lookup(name); !ok {
		reject(c, http.StatusNotFound, "unknown operation "+name)
		return
	}
	values, ok := readValues(c)
	if !ok {
		return
	}
	s.run(c, name, values)
}

func (s *Server) run(c *gin.Context, op string, values map[string]any) {
	out, err := s.runner.Run(c.Request.Context(), op, values)
	if out != nil {
		c.Header(invocationHeader, out.ID.String())
	}
	if err != nil {
		c.JSON(statusCode(out.Status), failure(out))
		return
	}

	field := "result"
	if o, ok := s.runner.Catalog().Lookup(op); ok {
		field = o.ResultField
	}
	c.JSON(http.StatusOK, gin.H{
		"id":          out.ID.String(),
		"status":      out.Status,
		"stats":       string(out.Output),
		"duration_ms": out.Duration.Milliseconds(),
		field:         out.Value.Interface(),
	})
}

type operationView struct {
	*analysis.Operation
	Path string `json:"path"`
}

func (s *Server) listOperations(c *gin.Context) {
	cat := s.runner.Catalog()
	ops := make([]operationView, 0, len(cat.Operations))
	for _, op := range cat.Operations {
		ops = append(ops, operationView{Operation: op, Path: "/v1/operations/" + op.Name})
	}
	c.JSON(http.StatusOK, gin.H{"release": cat.Release, "operations": ops})
}

func (s *Server) describeOperation(c *gin.Context) {
	op, ok := s.runner.Catalog().Lookup(c.Param("name"))
	if !ok {
		reject(c, http.StatusNotFound, "unknown operation "+c.Param("name"))
		return
	}
	c.JSON(http.StatusOK, operationView{Operation: op, Path: "/v1/operations/" + op.Name})
}

type invokeRequest struct {
	Symbol    string   `json:"symbol" binding:"required"`
	Returns   string   `json:"returns" binding:"required"`
	Params    []string `json:"params"`
	Args      []any    `json:"args"`
	TimeoutMS int64    `json:"timeout_ms" binding:"gte=0"`
}

func (s *Server) rawInvoke(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodySize)

	var req invokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		reject(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	// Absent lists mean a call with no parameters.
	if req.Args == nil {
		req.Args = []any{}
	}

	var opts []invoke.CallOption
	if req.TimeoutMS > 0 {
		opts = append(opts, invoke.Timeout(time.Duration(req.TimeoutMS)*time.Millisecond))
	}

	out, err := s.caller.Call(c.Request.Context(), req.Symbol, req.Params, req.Returns, req.Args, opts...)
	c.Header(invocationHeader, out.ID.String())
	if err != nil {
		c.JSON(statusCode(out.Status), failure(out))
		return
	}

	outs := make(map[string]int32, len(out.Out))
	for _, o := range out.Out {
		outs[strconv.Itoa(o.Index)] = o.Value
	}
	c.JSON(http.StatusOK, gin.H{
		"id":          out.ID.String(),
		"status":      out.Status,
		"output":      string(out.Output),
		"value":       out.Value.Interface(),
		"out":         outs,
		"duration_ms": out.Duration.Milliseconds(),
	})
}

func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodySize))
	if err != nil {
		var tooBig *http.MaxBytesError
		if stderrors.As(err, &tooBig) {
			reject(c, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			reject(c, http.StatusBadRequest, "read body: "+err.Error())
		}
		return nil, false
	}
	return body, true
}

// readValues decodes a JSON object, keeping numbers exact so integer range
// checks see the value the client sent.
func readValues(c *gin.Context) (map[string]any, bool) {
	body, ok := readBody(c)
	if !ok {
		return nil, false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		reject(c, http.StatusUnprocessableEntity, "request body cannot be empty")
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var values map[string]any
	if err := dec.Decode(&values); err != nil || values == nil {
		reject(c, http.StatusUnprocessableEntity, "body must be a JSON object")
		return nil, false
	}
	if dec.More() {
		reject(c, http.StatusUnprocessableEntity, "trailing data after JSON object")
		return nil, false
	}
	return values, true
}

// statusCode maps a failed invocation to an HTTP status. Problems with the
// request are the client's; problems running it are the gateway's.
func statusCode(s invoke.Status) int {
	switch s {
	case invoke.StatusMalformedRequest, invoke.StatusTypeMismatch, invoke.StatusValueOverflow, invoke.StatusUnknownType:
		return http.StatusUnprocessableEntity
	case invoke.StatusLibraryLoad:
		return http.StatusServiceUnavailable
	case invoke.StatusTimedOut:
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func failure(out *invoke.Outcome) gin.H {
	h := gin.H{
		"id":        out.ID.String(),
		"status":    out.Status,
		"retryable": out.Status.Retryable(),
	}
	if out.Err != nil {
		h["error"] = out.Err.Error()
	}
	if len(out.Output) > 0 {
		h["stats"] = string(out.Output)
	}
	return h
}

func reject(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}

