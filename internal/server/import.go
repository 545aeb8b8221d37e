package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type createImportRequest struct {
	DatasetID string `json:"dataset_id"`
	UserID    string `json:"user_id"`
	FilePath  string `json:"file_path"`
	Sheet     int    `json:"sheet"`
}

func (s *Server) CreateImport(c *gin.Context) {
	var req createImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	datasetID, err := snowflake.ParseString(strings.TrimSpace(req.DatasetID))
	if err != nil {
		AbortWithError(c, newValidationError("dataset_id", "invalid_dataset_id", "invalid dataset id"))
		return
	}
	userID, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
	if err != nil {
		AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid user id"))
		return
	}
	filePath := strings.TrimSpace(req.FilePath)
	if filePath == "" {
		AbortWithError(c, newValidationError("file_path", "required", "file_path is required"))
		return
	}

	job, err := s.importer.CreateImport(c.Request.Context(), userID, datasetID, filePath, req.Sheet)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

func (s *Server) GetImport(c *gin.Context) {
	jobID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid import job id"))
		return
	}

	job, err := s.jobs.FindJob(c.Request.Context(), jobID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job":      job,
		"progress": job.Progress(),
	})
}

type approveImportRequest struct {
	ApprovedBy string `json:"approved_by"`
}

func (s *Server) ApproveImport(c *gin.Context) {
	jobID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid import job id"))
		return
	}

	var req approveImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	approver, err := snowflake.ParseString(strings.TrimSpace(req.ApprovedBy))
	if err != nil {
		AbortWithError(c, newValidationError("approved_by", "invalid_approved_by", "invalid approver id"))
		return
	}

	if err := s.orchestrator.Approve(c.Request.Context(), jobID, approver); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) GetLatestSchema(c *gin.Context) {
	datasetID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid dataset id"))
		return
	}

	schema, err := s.datasets.LatestSchema(c.Request.Context(), datasetID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, schema)
}
