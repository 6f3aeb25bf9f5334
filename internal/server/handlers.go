package server

import (
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

type protocolRequest struct {
	Protocol string `json:"protocol" binding:"required"`
}

type writeScriptRequest struct {
	Content                 string   `json:"content" binding:"required"`
	Protocol                string   `json:"protocol" binding:"required"`
	ProtocolImplementations []string `json:"protocolImplementations"`
}

type execRequest struct {
	Protocol                string   `json:"protocol" binding:"required"`
	ProtocolImplementations []string `json:"protocolImplementations"`
}

type stopProcessRequest struct {
	PID      int    `json:"pid" binding:"required"`
	Protocol string `json:"protocol" binding:"required"`
}

type stopCleanupRequest struct {
	ContainerID string `json:"container_id"`
	Protocol    string `json:"protocol" binding:"required"`
}

type readLogRequest struct {
	Protocol     string `json:"protocol" binding:"required"`
	LastPosition int64  `json:"lastPosition"`
}

// handlePreStartCleanup removes leftovers from a previous run: any
// stale container under the protocol's stable name and the previous log
// file. Always succeeds unless the request itself is malformed.
func (s *Server) handlePreStartCleanup(c *gin.Context) {
	var req protocolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stopped := ""
	if err := removeContainer(containerName(req.Protocol)); err == nil {
		stopped = containerName(req.Protocol)
	} else if s.logger != nil {
		s.logger.Debug("pre-start cleanup: %v", err)
	}

	cleared := false
	if err := os.Remove(s.logPath(req.Protocol)); err == nil {
		cleared = true
	}
	s.procs.Remove(req.Protocol)

	if s.logger != nil {
		s.logger.Info("pre-start cleanup done for %s", req.Protocol)
	}
	c.JSON(http.StatusOK, gin.H{
		"stopped_container": stopped,
		"cleared_output":    cleared,
		"message":           "cleanup complete",
	})
}

// handleWriteScript stages the launch script under the protocol's work
// directory.
func (s *Server) handleWriteScript(c *gin.Context) {
	var req writeScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dir := s.protocolDir(req.Protocol)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	path := s.scriptPath(req.Protocol)
	if err := os.WriteFile(path, []byte(req.Content), 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if s.logger != nil {
		s.logger.Info("staged %s script at %s", req.Protocol, path)
	}
	c.JSON(http.StatusOK, gin.H{"path": path})
}

// handleExecuteCommand launches the staged fuzzer. One live launch per
// protocol; a second launch without teardown is rejected.
func (s *Server) handleExecuteCommand(c *gin.Context) {
	var req execRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, exists := s.procs.Get(req.Protocol); exists {
		c.JSON(http.StatusConflict, gin.H{"error": "a fuzzer is already running for " + req.Protocol})
		return
	}

	handle, err := s.launch(req.Protocol, req.ProtocolImplementations)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("launch %s failed: %v", req.Protocol, err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.procs.Set(req.Protocol, handle)

	if s.logger != nil {
		s.logger.Info("launched %s fuzzer (container=%s pid=%d)",
			req.Protocol, handle.ContainerID, handle.PID)
	}
	c.JSON(http.StatusOK, gin.H{
		"container_id": handle.ContainerID,
		"pid":          handle.PID,
	})
}

func (s *Server) handleStopProcess(c *gin.Context) {
	var req stopProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := stopPID(req.PID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.procs.Remove(req.Protocol)
	c.JSON(http.StatusOK, gin.H{"message": "process stopped"})
}

// handleStopAndCleanup force-removes the fuzzer container. An empty
// container id is a no-op so callers can stop unconditionally.
func (s *Server) handleStopAndCleanup(c *gin.Context) {
	var req stopCleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := removeContainer(req.ContainerID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.procs.Remove(req.Protocol)
	c.JSON(http.StatusOK, gin.H{"message": "container removed"})
}

// handleReadLog serves an incremental read of the protocol's log file.
// The returned position is authoritative: clients must feed it back
// unchanged. A lastPosition past the current size means the file was
// rotated, so the read restarts from the beginning.
func (s *Server) handleReadLog(c *gin.Context) {
	var req readLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	content, pos, err := s.readLogFrom(req.Protocol, req.LastPosition)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": content, "position": pos})
}

func (s *Server) readLogFrom(protocol string, lastPosition int64) (string, int64, error) {
	f, err := os.Open(s.logPath(protocol))
	if err != nil {
		if os.IsNotExist(err) {
			return "", lastPosition, nil
		}
		return "", 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", 0, err
	}
	offset := lastPosition
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return "", 0, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", 0, err
	}
	return string(data), offset + int64(len(data)), nil
}
