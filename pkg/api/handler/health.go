package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/dskvich/kalypso-relay/pkg/api/response"
	"github.com/dskvich/kalypso-relay/pkg/version"
)

// Features reports which optional parts of the service have credentials.
type Features struct {
	Chat   bool `json:"chat"`
	Audio  bool `json:"audio"`
	Access bool `json:"access"`
}

type healthResponse struct {
	Status   string   `json:"status"`
	Service  string   `json:"service"`
	Version  string   `json:"version"`
	Features Features `json:"features"`
}

type health struct {
	service  string
	features Features
	writer   response.JSONWriter
}

func NewHealth(service string, features Features) *health {
	return &health{
		service:  service,
		features: features,
		writer:   response.JSONWriter{},
	}
}

func (h *health) Check(c *gin.Context) {
	h.writer.WriteSuccessResponse(c, healthResponse{
		Status:   "healthy",
		Service:  h.service,
		Version:  version.BuildVersion,
		Features: h.features,
	})
}

func (h *health) Version(c *gin.Context) {
	h.writer.WriteSuccessResponse(c, version.Get(h.service))
}
