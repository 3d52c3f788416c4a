package api

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hwvendor/triage-orchestrator/pkg/models"
	"github.com/hwvendor/triage-orchestrator/pkg/store"
)

const maxEmbeddedArtifactSize = 32 << 20 // 32 MiB per uploaded log file

// submitAnalyzeHandler handles POST /analyze: a multipart submission that
// registers a new Issue (with any embedded log files) and immediately
// admits a Task for it.
func (s *Server) submitAnalyzeHandler(c *gin.Context) {
	description := c.PostForm("description")
	if description == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "description is required"})
		return
	}

	priority := models.PriorityLow
	if p := c.PostForm("priority"); p != "" {
		priority = models.IssuePriority(p)
	}

	issue := &models.Issue{
		RecordID:     uuid.NewString(),
		Description:  description,
		Priority:     priority,
		DeviceSerial: c.PostForm("device_sn"),
		Source:       models.SourceAPI,
		WebhookURL:   c.PostForm("webhook_url"),
		CreatedBy:    requestedBy(c, c.PostForm("username")),
		CreatedAt:    time.Now(),
	}

	if form, err := c.MultipartForm(); err == nil {
		for _, fh := range form.File["log_files"] {
			artifact, err := readLogArtifact(fh)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			issue.LogArtifacts = append(issue.LogArtifacts, artifact)
		}
	}

	if err := s.store.CreateIssue(c.Request.Context(), issue); err != nil {
		writeStoreError(c, err)
		return
	}

	task, err := admitTask(c.Request.Context(), s.store, issue, "", issue.CreatedBy)
	if err != nil {
		writeStoreError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, AnalyzeResponse{TaskID: task.TaskID, Status: string(task.State)})
}

func readLogArtifact(fh *multipart.FileHeader) (models.LogArtifact, error) {
	if fh.Size > maxEmbeddedArtifactSize {
		return models.LogArtifact{}, errors.New("log file " + fh.Filename + " exceeds the maximum embedded size")
	}
	f, err := fh.Open()
	if err != nil {
		return models.LogArtifact{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return models.LogArtifact{}, err
	}
	return models.LogArtifact{Name: fh.Filename, Payload: data, Size: int64(len(data))}, nil
}

// getAnalyzeHandler handles GET /analyze/:task_id: the current progress
// snapshot, or the full AnalysisResult once the task has reached done.
func (s *Server) getAnalyzeHandler(c *gin.Context) {
	taskID := c.Param("task_id")
	task, err := s.store.GetTask(c.Request.Context(), taskID)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	if task.State != models.StateDone {
		c.JSON(http.StatusOK, task)
		return
	}
	result, err := s.store.GetResult(c.Request.Context(), taskID)
	if err != nil && !errors.Is(err, store.ErrResultNotFound) {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task, "result": result})
}
