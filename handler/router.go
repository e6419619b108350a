package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chaos-io/bgremove/config"
	"github.com/chaos-io/bgremove/cutout"
	"github.com/chaos-io/bgremove/middleware"
)

// BuildInfo 版本信息，由 main 在构建时注入
type BuildInfo struct {
	Version   string
	BuildTime string
	GitCommit string
	GitBranch string
}

// NewRouter 创建路由
func NewRouter(cfg *config.Config, pipeline *cutout.Pipeline, info BuildInfo) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())
	r.MaxMultipartMemory = cfg.Server.MaxUpload

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": info.Version,
		})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    info.Version,
			"build_time": info.BuildTime,
			"git_commit": info.GitCommit,
			"git_branch": info.GitBranch,
		})
	})

	cutoutHandler := NewCutoutHandler(cfg, pipeline)
	cutoutHandler.Register(r.Group("/api/v1"))

	return r
}
