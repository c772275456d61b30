// Package httpapi exposes the dispatcher's command surface over REST,
// grounded on guiperry-HASHER's cmd/driver/hasher-host/main.go Gin
// wiring: gin.New()+gin.Recovery(), a versioned route group, and JSON
// handlers built from the same Orchestrator-style "one method per route"
// shape.
package httpapi

import (
	"encoding/binary"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/brahimab8/sensorbusd/pkg/core"
	"github.com/brahimab8/sensorbusd/pkg/dispatch"
	"github.com/brahimab8/sensorbusd/pkg/protocol"
)

// snapshotWriter is the subset of *redisbridge.Bridge the debug snapshot
// route needs; kept as an interface so httpapi doesn't require a bridge
// to be wired in tests that only exercise the dispatcher routes.
type snapshotWriter interface {
	WriteSnapshotFile(path string) error
}

// Server wraps a *core.Core with a Gin router.
type Server struct {
	core   *core.Core
	bridge snapshotWriter
	engine *gin.Engine
}

// New builds the router and registers routes under /api/v1. bridge may be
// nil, in which case the debug snapshot route responds 503.
func New(c *core.Core, bridge snapshotWriter) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{core: c, bridge: bridge, engine: router}
	api := router.Group("/api/v1")
	api.GET("/sensors", s.handleListSensors)
	api.POST("/sensors/:id/start", s.handleStart)
	api.POST("/sensors/:id/stop", s.handleStop)
	api.POST("/sensors/:id/period", s.handleSetPeriod)
	api.GET("/sensors/:id/read", s.handleReadSensor)
	api.GET("/uptime", s.handleUptime)
	api.GET("/ping", s.handlePing)
	api.POST("/debug/snapshot", s.handleWriteSnapshot)
	return s
}

// Handler returns the underlying http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) handleListSensors(c *gin.Context) {
	snaps := s.core.Snapshot()
	out := make([]gin.H, 0, len(snaps))
	for _, d := range snaps {
		out = append(out, gin.H{
			"runtime_id":   d.RuntimeID,
			"type_id":      d.TypeID,
			"streaming":    d.Streaming,
			"state":        int(d.State),
			"seq":          d.Seq,
			"period_ms":    d.PeriodMs,
			"last_emit_ms": d.LastEmitMs,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sensors": out})
}

func sensorIDFromParam(c *gin.Context) (uint8, bool) {
	v, err := strconv.Atoi(c.Param("id"))
	if err != nil || v < 0 || v > 255 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sensor id"})
		return 0, false
	}
	return uint8(v), true
}

func (s *Server) respondFromDispatch(c *gin.Context, opcode uint8, args []byte) {
	payload := append([]byte{opcode}, args...)
	typ, resp := s.core.Dispatch(payload[0], payload[1:])
	if typ == protocol.TypeAck {
		c.JSON(http.StatusOK, gin.H{"ack": true, "payload": resp})
		return
	}
	code := dispatch.UnknownError
	if len(resp) == 1 {
		code = dispatch.ErrorCode(resp[0])
	}
	c.JSON(http.StatusBadRequest, gin.H{"ack": false, "error_code": int(code)})
}

func (s *Server) handleStart(c *gin.Context) {
	id, ok := sensorIDFromParam(c)
	if !ok {
		return
	}
	s.respondFromDispatch(c, core.CmdStart, []byte{id})
}

func (s *Server) handleStop(c *gin.Context) {
	id, ok := sensorIDFromParam(c)
	if !ok {
		return
	}
	s.respondFromDispatch(c, core.CmdStop, []byte{id})
}

func (s *Server) handleSetPeriod(c *gin.Context) {
	id, ok := sensorIDFromParam(c)
	if !ok {
		return
	}
	var body struct {
		PeriodMs uint32 `json:"period_ms"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	period := make([]byte, 2)
	binary.LittleEndian.PutUint16(period, uint16(body.PeriodMs))
	s.respondFromDispatch(c, core.CmdSetPeriod, append([]byte{id}, period...))
}

func (s *Server) handleReadSensor(c *gin.Context) {
	id, ok := sensorIDFromParam(c)
	if !ok {
		return
	}
	s.respondFromDispatch(c, core.CmdReadSensor, []byte{id})
}

func (s *Server) handleUptime(c *gin.Context) {
	s.respondFromDispatch(c, core.CmdGetUptime, nil)
}

func (s *Server) handlePing(c *gin.Context) {
	s.respondFromDispatch(c, core.CmdPing, nil)
}

// handleWriteSnapshot CBOR-encodes the current descriptor table and writes
// it to a timestamped file under /tmp, for on-request debugging.
func (s *Server) handleWriteSnapshot(c *gin.Context) {
	if s.bridge == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "redis bridge not configured"})
		return
	}
	path := "/tmp/sensorbusd-snapshot-" + strconv.FormatInt(time.Now().UnixNano(), 10) + ".cbor"
	if err := s.bridge.WriteSnapshotFile(path); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path})
}
