package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	"github.com/jfilter/timetiles-sub015/pkg/repository"
)

func (s *Server) ListImports(c *gin.Context) {
	var conds []repository.Condition

	if raw := strings.TrimSpace(c.Query("dataset_id")); raw != "" {
		datasetID, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("dataset_id", "invalid_dataset_id", "invalid dataset id"))
			return
		}
		conds = append(conds, repository.Eq("dataset_id", datasetID))
	}
	if stage := strings.TrimSpace(c.Query("stage")); stage != "" {
		conds = append(conds, repository.Eq("stage", stage))
	}

	jobs, err := s.jobStore.Find(c.Request.Context(), conds...)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": jobs})
}

func (s *Server) ListDatasets(c *gin.Context) {
	datasets, err := s.datasetStore.Find(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": datasets})
}
